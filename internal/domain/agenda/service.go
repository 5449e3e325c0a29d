package agenda

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medeasy/medeasy/internal/platform/auth"
	"github.com/medeasy/medeasy/internal/platform/cqrs"
	"github.com/medeasy/medeasy/internal/platform/db"
	"github.com/medeasy/medeasy/internal/platform/jsonpatch"
	"github.com/medeasy/medeasy/internal/platform/search"
	"github.com/medeasy/medeasy/internal/platform/validation"
)

type Service struct {
	appointments AppointmentRepository
	participants ParticipantRepository
	uow          db.UnitOfWork
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(appointments AppointmentRepository, participants ParticipantRepository, uow db.UnitOfWork, logger zerolog.Logger) *Service {
	return &Service{
		appointments: appointments,
		participants: participants,
		uow:          uow,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateAppointment stores a new appointment. Participants are matched by
// email and only created when unknown.
func (s *Service) CreateAppointment(ctx context.Context, info NewAppointmentInfo) (*Appointment, []validation.Failure, error) {
	if info.Status == "" {
		info.Status = StatusPlanned
	}
	result := validateNew(info)
	if err := result.Err(); err != nil {
		return nil, nil, err
	}

	actor := auth.Actor(ctx)
	now := s.now()
	a := &Appointment{ID: uuid.New()}
	a.apply(AppointmentInfo{Subject: info.Subject, Location: info.Location, StartDate: info.StartDate, EndDate: info.EndDate, Status: info.Status})
	a.Created(actor, now)

	err := s.uow.Do(ctx, func(ctx context.Context) error {
		a.Participants = make([]*Participant, 0, len(info.Participants))
		for _, pi := range info.Participants {
			p, err := s.resolveParticipant(ctx, pi, actor, now)
			if err != nil {
				return err
			}
			if !a.HasParticipant(p.ID) {
				a.Participants = append(a.Participants, p)
			}
		}
		return s.appointments.Create(ctx, a)
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info().Str("appointment_id", a.ID.String()).Int("participants", len(a.Participants)).Msg("appointment created")
	return a, result.Warnings(), nil
}

func (s *Service) resolveParticipant(ctx context.Context, info ParticipantInfo, actor string, now time.Time) (*Participant, error) {
	email := normalizeEmail(info.Email)
	if email != "" {
		p, err := s.participants.FindByEmail(ctx, email)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
	}
	p := &Participant{ID: uuid.New(), Name: info.Name, Email: email, PhoneNumber: info.PhoneNumber}
	p.Created(actor, now)
	if err := s.participants.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, sorts []search.Sort, limit, offset int) ([]*Appointment, int, error) {
	return s.SearchAppointments(ctx, nil, nil, sorts, limit, offset)
}

func (s *Service) SearchAppointments(ctx context.Context, f, participant search.Filter, sorts []search.Sort, limit, offset int) ([]*Appointment, int, error) {
	if err := search.Validate(f, sorts, appointmentColumns); err != nil {
		return nil, 0, err
	}
	if err := search.Validate(participant, nil, attendeeColumns); err != nil {
		return nil, 0, err
	}
	return s.appointments.Search(ctx, f, participant, sorts, limit, offset)
}

func (s *Service) PatchAppointment(ctx context.Context, id uuid.UUID, ops []jsonpatch.Operation, expected *int) (*Appointment, []validation.Failure, cqrs.ModifyCommandResult, error) {
	if err := jsonpatch.Restrict(ops, appointmentPatchable...); err != nil {
		return nil, nil, 0, err
	}

	var patched *Appointment
	var warnings []validation.Failure
	result := cqrs.ModifyDone
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetByID(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			result = cqrs.ModifyFailedNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if expected != nil && *expected != a.Version {
			result = cqrs.ModifyFailedConflict
			return nil
		}

		info, err := jsonpatch.Apply(a.Info(), ops)
		if errors.Is(err, jsonpatch.ErrTestFailed) {
			result = cqrs.ModifyFailedConflict
			return nil
		}
		if err != nil {
			return err
		}
		checked := appointmentValidator.Validate(info)
		if err := checked.Err(); err != nil {
			return err
		}
		warnings = checked.Warnings()

		a.apply(info)
		a.Updated(auth.Actor(ctx), s.now())
		switch err := s.appointments.Update(ctx, a); {
		case errors.Is(err, db.ErrVersionMismatch):
			result = cqrs.ModifyFailedConflict
			return nil
		case errors.Is(err, db.ErrNotFound):
			result = cqrs.ModifyFailedNotFound
			return nil
		case err != nil:
			return err
		}
		patched = a
		return nil
	})
	if err != nil {
		return nil, nil, 0, err
	}
	return patched, warnings, result, nil
}

func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) (cqrs.DeleteCommandResult, error) {
	err := s.appointments.Delete(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return cqrs.DeleteFailedNotFound, nil
	}
	if err != nil {
		return 0, err
	}
	return cqrs.DeleteDone, nil
}

// RemoveParticipant detaches a participant from an appointment. The last
// participant of an appointment cannot be removed.
func (s *Service) RemoveParticipant(ctx context.Context, appointmentID, participantID uuid.UUID) (cqrs.DeleteCommandResult, error) {
	result := cqrs.DeleteDone
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetByID(ctx, appointmentID)
		if errors.Is(err, db.ErrNotFound) {
			result = cqrs.DeleteFailedNotFound
			return nil
		}
		if err != nil {
			return err
		}
		switch {
		case !a.HasParticipant(participantID):
			result = cqrs.DeleteFailedNotFound
			return nil
		case len(a.Participants) == 1:
			result = cqrs.DeleteFailedConflict
			return nil
		}

		err = s.appointments.RemoveParticipant(ctx, appointmentID, participantID)
		if errors.Is(err, db.ErrNotFound) {
			result = cqrs.DeleteFailedNotFound
			return nil
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

func (s *Service) GetParticipant(ctx context.Context, id uuid.UUID) (*Participant, error) {
	return s.participants.GetByID(ctx, id)
}

func (s *Service) ListParticipants(ctx context.Context, sorts []search.Sort, limit, offset int) ([]*Participant, int, error) {
	return s.SearchParticipants(ctx, nil, sorts, limit, offset)
}

func (s *Service) SearchParticipants(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]*Participant, int, error) {
	if err := search.Validate(f, sorts, participantColumns); err != nil {
		return nil, 0, err
	}
	return s.participants.Search(ctx, f, sorts, limit, offset)
}

// AppointmentsOf lists the appointments of a participant, most recent first.
func (s *Service) AppointmentsOf(ctx context.Context, participantID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	if _, err := s.participants.GetByID(ctx, participantID); err != nil {
		return nil, 0, err
	}
	return s.appointments.ListByParticipant(ctx, participantID, limit, offset)
}
