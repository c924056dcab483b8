package sharing

import (
	"time"

	"github.com/google/uuid"
)

// Access is what a share token lets its holder do.
type Access string

const (
	AccessRead     Access = "read"
	AccessAnnotate Access = "annotate"
)

// ShareGrant lets a caregiver hand a completed screening report to someone
// else, typically a clinician, via an unguessable token. Grants never expose
// the assessment before it reaches COMPLETED, and revocation is permanent.
type ShareGrant struct {
	ID             uuid.UUID  `json:"id"`
	AssessmentID   uuid.UUID  `json:"assessment_id"`
	CreatedBy      uuid.UUID  `json:"created_by"`
	Token          string     `json:"token"`
	Access         Access     `json:"access"`
	RecipientEmail string     `json:"recipient_email,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
}

// Annotation is a remark a share recipient leaves on a report, optionally
// pinned to one domain.
type Annotation struct {
	ID         uuid.UUID `json:"id"`
	ShareID    uuid.UUID `json:"share_id"`
	DomainID   string    `json:"domain_id,omitempty"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateShareInput is the caregiver-facing share request.
type CreateShareInput struct {
	Access         Access `json:"access"`
	RecipientEmail string `json:"recipient_email"`
}

// AnnotationInput is what a token holder posts.
type AnnotationInput struct {
	DomainID   string `json:"domain_id"`
	AuthorName string `json:"author_name"`
	Body       string `json:"body"`
}
