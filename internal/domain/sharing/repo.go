package sharing

import (
	"context"

	"github.com/google/uuid"
)

type ShareRepository interface {
	Create(ctx context.Context, g *ShareGrant) error
	GetByToken(ctx context.Context, token string) (*ShareGrant, error)
	GetByID(ctx context.Context, id uuid.UUID) (*ShareGrant, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]*ShareGrant, error)
}

type AnnotationRepository interface {
	Create(ctx context.Context, a *Annotation) error
	ListByShare(ctx context.Context, shareID uuid.UUID) ([]*Annotation, error)
	ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]*Annotation, error)
}
