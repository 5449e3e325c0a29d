package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/medeasy/medeasy/internal/platform/search"
)

type Repository interface {
	// Create stores a new account. A taken username yields db.ErrConflict.
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	// FindByUsername matches the username case-insensitively.
	FindByUsername(ctx context.Context, username string) (*Account, error)
	// Update stores a, its roles and claims, when its version is still
	// a.Version and bumps it.
	Update(ctx context.Context, a *Account) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]*Account, int, error)
	// SetRefreshToken replaces the current refresh token. An empty token
	// clears it. The version is left untouched.
	SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error
}
