package child

import (
	"time"

	"github.com/google/uuid"
)

// Child is a screening subject. CaregiverID is the account that registered
// the child and owns every assessment created for them.
type Child struct {
	ID          uuid.UUID  `json:"id"`
	CaregiverID uuid.UUID  `json:"caregiver_id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth time.Time  `json:"date_of_birth"`
	Gender      string     `json:"gender,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}
