package measures

import (
	"context"

	"github.com/google/uuid"

	"github.com/medeasy/medeasy/internal/platform/search"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]*Patient, int, error)
}

// MeasureRepository stores one kind of physical measure.
type MeasureRepository[M Measure] interface {
	Create(ctx context.Context, m M) error
	GetByID(ctx context.Context, id uuid.UUID) (M, error)
	Update(ctx context.Context, m M) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]M, int, error)
}

type FormRepository interface {
	Create(ctx context.Context, f *MeasureForm) error
	GetByID(ctx context.Context, id uuid.UUID) (*MeasureForm, error)
	GetByName(ctx context.Context, name string) (*MeasureForm, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]*MeasureForm, int, error)
}

type GenericMeasureRepository interface {
	Create(ctx context.Context, m *GenericMeasure) error
	// List returns the measures of a patient for a form, most recent first.
	List(ctx context.Context, patientID, formID uuid.UUID, limit, offset int) ([]*GenericMeasure, int, error)
}
