package sharing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bloomscreen/bloomscreen/internal/domain/assessment"
)

var (
	ErrNotFound  = errors.New("share not found")
	ErrRevoked   = errors.New("share revoked")
	ErrNotReady  = errors.New("report not ready")
	ErrForbidden = errors.New("share does not allow this")
)

// AssessmentSource resolves assessments for report views. Satisfied by
// *assessment.Service.
type AssessmentSource interface {
	Get(ctx context.Context, id uuid.UUID) (*assessment.Assessment, error)
}

// Report is what a token holder sees: the completed assessment plus every
// annotation left on it, across all grants for the same assessment.
type Report struct {
	Assessment  *assessment.Assessment `json:"assessment"`
	Access      Access                 `json:"access"`
	Annotations []*Annotation          `json:"annotations"`
}

type Service struct {
	shares      ShareRepository
	annotations AnnotationRepository
	assessments AssessmentSource
}

func NewService(shares ShareRepository, annotations AnnotationRepository, assessments AssessmentSource) *Service {
	return &Service{shares: shares, annotations: annotations, assessments: assessments}
}

// newToken returns a 256-bit random token. UUIDs are deliberately not used
// here: share tokens live in URLs and should not look like internal ids.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate share token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CreateShare issues a grant for an assessment. Grants may be created before
// the screening finishes; the token just stays unusable until then.
func (s *Service) CreateShare(ctx context.Context, assessmentID, createdBy uuid.UUID, in CreateShareInput) (*ShareGrant, error) {
	if _, err := s.assessments.Get(ctx, assessmentID); err != nil {
		return nil, err
	}
	switch in.Access {
	case AccessRead, AccessAnnotate:
	case "":
		in.Access = AccessRead
	default:
		return nil, fmt.Errorf("%w: access must be read or annotate", assessment.ErrValidation)
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	g := &ShareGrant{
		AssessmentID:   assessmentID,
		CreatedBy:      createdBy,
		Token:          token,
		Access:         in.Access,
		RecipientEmail: in.RecipientEmail,
	}
	if err := s.shares.Create(ctx, g); err != nil {
		return nil, err
	}
	return s.shares.GetByID(ctx, g.ID)
}

func (s *Service) Revoke(ctx context.Context, id uuid.UUID) error {
	return s.shares.Revoke(ctx, id)
}

func (s *Service) ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]*ShareGrant, error) {
	return s.shares.ListByAssessment(ctx, assessmentID)
}

// resolve loads a live grant by token.
func (s *Service) resolve(ctx context.Context, token string) (*ShareGrant, error) {
	g, err := s.shares.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if g.RevokedAt != nil {
		return nil, ErrRevoked
	}
	return g, nil
}

// View renders the shared report. The gate is the assessment status: nothing
// is visible through a token until the screening is COMPLETED, no matter
// what the grant allows.
func (s *Service) View(ctx context.Context, token string) (*Report, error) {
	g, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	a, err := s.assessments.Get(ctx, g.AssessmentID)
	if err != nil {
		return nil, err
	}
	if a.Status != assessment.StatusCompleted {
		return nil, fmt.Errorf("%w: assessment is %s", ErrNotReady, a.Status)
	}
	notes, err := s.annotations.ListByAssessment(ctx, g.AssessmentID)
	if err != nil {
		return nil, err
	}
	return &Report{Assessment: a, Access: g.Access, Annotations: notes}, nil
}

// Annotate appends a remark through an annotate-capable token. The same
// COMPLETED gate applies as for viewing.
func (s *Service) Annotate(ctx context.Context, token string, in AnnotationInput) (*Annotation, error) {
	g, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if g.Access != AccessAnnotate {
		return nil, fmt.Errorf("%w: grant is read-only", ErrForbidden)
	}
	a, err := s.assessments.Get(ctx, g.AssessmentID)
	if err != nil {
		return nil, err
	}
	if a.Status != assessment.StatusCompleted {
		return nil, fmt.Errorf("%w: assessment is %s", ErrNotReady, a.Status)
	}
	if in.Body == "" {
		return nil, fmt.Errorf("%w: body is required", assessment.ErrValidation)
	}
	if in.DomainID != "" {
		if _, ok := a.DomainScores[in.DomainID]; !ok {
			return nil, fmt.Errorf("%w: unknown domain %s", assessment.ErrValidation, in.DomainID)
		}
	}

	note := &Annotation{
		ShareID:    g.ID,
		DomainID:   in.DomainID,
		AuthorName: in.AuthorName,
		Body:       in.Body,
	}
	if err := s.annotations.Create(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}
