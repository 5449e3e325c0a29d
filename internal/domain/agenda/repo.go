package agenda

import (
	"context"

	"github.com/google/uuid"

	"github.com/medeasy/medeasy/internal/platform/search"
)

type AppointmentRepository interface {
	// Create stores a and links its participants, which must exist.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Search matches f against appointments and participant against any of
	// their attendees.
	Search(ctx context.Context, f, participant search.Filter, sorts []search.Sort, limit, offset int) ([]*Appointment, int, error)
	ListByParticipant(ctx context.Context, participantID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	RemoveParticipant(ctx context.Context, appointmentID, participantID uuid.UUID) error
}

type ParticipantRepository interface {
	Create(ctx context.Context, p *Participant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Participant, error)
	FindByEmail(ctx context.Context, email string) (*Participant, error)
	Search(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]*Participant, int, error)
}
