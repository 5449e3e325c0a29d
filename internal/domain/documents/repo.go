package documents

import (
	"context"

	"github.com/google/uuid"

	"github.com/medeasy/medeasy/internal/platform/search"
)

type Repository interface {
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	Update(ctx context.Context, d *Document) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]*Document, int, error)
	// DetachPatient clears the patient of its documents and returns how many
	// were changed.
	DetachPatient(ctx context.Context, patientID uuid.UUID) (int64, error)
}
