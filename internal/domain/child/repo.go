package child

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Child) error
	GetByID(ctx context.Context, id uuid.UUID) (*Child, error)
	Update(ctx context.Context, c *Child) error
	Archive(ctx context.Context, id uuid.UUID) error
	ListByCaregiver(ctx context.Context, caregiverID uuid.UUID, limit, offset int) ([]*Child, int, error)
}
