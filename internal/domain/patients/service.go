package patients

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medeasy/medeasy/internal/platform/auth"
	"github.com/medeasy/medeasy/internal/platform/cqrs"
	"github.com/medeasy/medeasy/internal/platform/db"
	"github.com/medeasy/medeasy/internal/platform/events"
	"github.com/medeasy/medeasy/internal/platform/jsonpatch"
	"github.com/medeasy/medeasy/internal/platform/search"
	"github.com/medeasy/medeasy/internal/platform/validation"
)

const source = "patients"

type Service struct {
	repo      Repository
	uow       db.UnitOfWork
	bus       events.Publisher
	logger    zerolog.Logger
	now       func() time.Time
	validator *validation.Validator[Info]
}

func NewService(repo Repository, uow db.UnitOfWork, bus events.Publisher, logger zerolog.Logger) *Service {
	s := &Service{repo: repo, uow: uow, bus: bus, logger: logger, now: time.Now}
	s.validator = newInfoValidator(func() time.Time { return s.now() })
	return s
}

// Create stores a new patient and announces it. The returned failures are
// warnings, blocking failures come back as a *validation.FailedError.
func (s *Service) Create(ctx context.Context, info Info) (*Patient, []validation.Failure, error) {
	result := s.validator.Validate(info)
	if err := result.Err(); err != nil {
		return nil, nil, err
	}

	p := &Patient{ID: uuid.New()}
	p.apply(info)
	p.Created(auth.Actor(ctx), s.now())

	if err := s.uow.Do(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, p)
	}); err != nil {
		return nil, nil, err
	}

	s.publish(ctx, events.PatientCaseCreated, p)
	return p, result.Warnings(), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, sorts []search.Sort, limit, offset int) ([]*Patient, int, error) {
	return s.Search(ctx, nil, sorts, limit, offset)
}

func (s *Service) Search(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]*Patient, int, error) {
	if err := search.Validate(f, sorts, columns); err != nil {
		return nil, 0, err
	}
	return s.repo.Search(ctx, f, sorts, limit, offset)
}

// Patch applies a JSON Patch to a patient. expected, when set, is the
// version the client last saw.
func (s *Service) Patch(ctx context.Context, id uuid.UUID, ops []jsonpatch.Operation, expected *int) (*Patient, []validation.Failure, cqrs.ModifyCommandResult, error) {
	if err := jsonpatch.Restrict(ops, patchable...); err != nil {
		return nil, nil, 0, err
	}

	var patched *Patient
	var warnings []validation.Failure
	result := cqrs.ModifyDone
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			result = cqrs.ModifyFailedNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if expected != nil && *expected != p.Version {
			result = cqrs.ModifyFailedConflict
			return nil
		}

		info, err := jsonpatch.Apply(p.Info(), ops)
		if errors.Is(err, jsonpatch.ErrTestFailed) {
			result = cqrs.ModifyFailedConflict
			return nil
		}
		if err != nil {
			return err
		}
		checked := s.validator.Validate(info)
		if err := checked.Err(); err != nil {
			return err
		}
		warnings = checked.Warnings()

		p.apply(info)
		p.Updated(auth.Actor(ctx), s.now())
		switch err := s.repo.Update(ctx, p); {
		case errors.Is(err, db.ErrVersionMismatch):
			result = cqrs.ModifyFailedConflict
			return nil
		case errors.Is(err, db.ErrNotFound):
			result = cqrs.ModifyFailedNotFound
			return nil
		case err != nil:
			return err
		}
		patched = p
		return nil
	})
	if err != nil {
		return nil, nil, 0, err
	}
	return patched, warnings, result, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) (cqrs.DeleteCommandResult, error) {
	p, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return cqrs.DeleteFailedNotFound, nil
	}
	if err != nil {
		return 0, err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return cqrs.DeleteFailedNotFound, nil
		}
		return 0, err
	}

	s.publish(ctx, events.PatientCaseDeleted, p)
	return cqrs.DeleteDone, nil
}

// publish only logs failures, the command is already committed.
func (s *Service) publish(ctx context.Context, name string, p *Patient) {
	if err := events.Publish(ctx, s.bus, name, source, p.Case()); err != nil {
		s.logger.Error().Err(err).Str("event", name).Str("patient_id", p.ID.String()).Msg("publish failed")
	}
}
