package child

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for lookups of unknown or archived children.
var ErrNotFound = errors.New("child not found")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, c *Child) error {
	if c.CaregiverID == uuid.Nil {
		return fmt.Errorf("caregiver_id is required")
	}
	if c.FirstName == "" {
		return fmt.Errorf("first_name is required")
	}
	if c.DateOfBirth.IsZero() {
		return fmt.Errorf("date_of_birth is required")
	}
	if c.DateOfBirth.After(time.Now()) {
		return fmt.Errorf("date_of_birth cannot be in the future")
	}
	return s.repo.Create(ctx, c)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Child, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, c *Child) error {
	if c.FirstName == "" {
		return fmt.Errorf("first_name is required")
	}
	return s.repo.Update(ctx, c)
}

func (s *Service) Archive(ctx context.Context, id uuid.UUID) error {
	return s.repo.Archive(ctx, id)
}

func (s *Service) ListByCaregiver(ctx context.Context, caregiverID uuid.UUID, limit, offset int) ([]*Child, int, error) {
	return s.repo.ListByCaregiver(ctx, caregiverID, limit, offset)
}
