package patients

import (
	"context"

	"github.com/google/uuid"

	"github.com/medeasy/medeasy/internal/platform/search"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	// Update stores p when its version is still p.Version and bumps it.
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]*Patient, int, error)
}
