package assessment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Assessment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error)
	Update(ctx context.Context, a *Assessment) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByChild pages a child's assessments, newest first. A non-nil
	// caregiverID narrows the listing to that caregiver's assessments;
	// uuid.Nil lists them all.
	ListByChild(ctx context.Context, childID, caregiverID uuid.UUID, limit, offset int) ([]*Assessment, int, error)
}

type ResponseRepository interface {
	// CreateBatch appends a tier's full response set. Fails with ErrConflict
	// when any (assessment, tier, question) row already exists.
	CreateBatch(ctx context.Context, responses []*Response) error
	ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]*Response, error)
	DeleteByAssessment(ctx context.Context, assessmentID uuid.UUID) error
}
