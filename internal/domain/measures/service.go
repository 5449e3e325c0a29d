package measures

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

const source = "measures"

// Service manages the patient copies, the measure forms and the generic
// measures.
type Service struct {
	patients PatientRepository
	forms    FormRepository
	generic  GenericMeasureRepository
	uow      db.UnitOfWork
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(patients PatientRepository, forms FormRepository, generic GenericMeasureRepository, uow db.UnitOfWork, logger zerolog.Logger) *Service {
	return &Service{patients: patients, forms: forms, generic: generic, uow: uow, logger: logger, now: time.Now}
}

func (s *Service) CreatePatient(ctx context.Context, info PatientInfo) (*Patient, []validation.Failure, error) {
	result := patientValidator.Validate(info)
	if err := result.Err(); err != nil {
		return nil, nil, err
	}
	p := &Patient{ID: info.ID, Name: info.Name, BirthDate: info.BirthDate}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Created(auth.Actor(ctx), s.now())
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, nil, err
	}
	return p, result.Warnings(), nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) SearchPatients(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]*Patient, int, error) {
	if err := search.Validate(f, sorts, patientColumns); err != nil {
		return nil, 0, err
	}
	return s.patients.Search(ctx, f, sorts, limit, offset)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) (cqrs.DeleteCommandResult, error) {
	err := s.patients.Delete(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return cqrs.DeleteFailedNotFound, nil
	}
	if err != nil {
		return 0, err
	}
	return cqrs.DeleteDone, nil
}

// Subscribe keeps the patient copies in sync with the patients service.
func (s *Service) Subscribe(bus events.Bus) {
	bus.Subscribe(events.PatientCaseCreated, s.onPatientCaseCreated)
	bus.Subscribe(events.PatientCaseDeleted, s.onPatientCaseDeleted)
}

func (s *Service) onPatientCaseCreated(ctx context.Context, e events.Event) error {
	var c events.PatientCase
	if err := e.Decode(&c); err != nil {
		return err
	}
	_, _, err := s.CreatePatient(auth.WithPrincipal(ctx, "", e.Source, nil), patientFromCase(c))
	if errors.Is(err, db.ErrConflict) {
		s.logger.Debug().Str("patient_id", c.ID.String()).Msg("patient already known")
		return nil
	}
	return err
}

func (s *Service) onPatientCaseDeleted(ctx context.Context, e events.Event) error {
	var c events.PatientCase
	if err := e.Decode(&c); err != nil {
		return err
	}
	result, err := s.DeletePatient(ctx, c.ID)
	if err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", c.ID.String()).Stringer("result", result).Msg("patient case deleted")
	return nil
}

func (s *Service) CreateForm(ctx context.Context, info FormInfo) (*MeasureForm, []validation.Failure, error) {
	result := validateForm(info)
	if err := result.Err(); err != nil {
		return nil, nil, err
	}
	f := &MeasureForm{ID: uuid.New(), Name: info.Name, Fields: info.Fields}
	f.Created(auth.Actor(ctx), s.now())
	if err := s.forms.Create(ctx, f); err != nil {
		return nil, nil, err
	}
	return f, result.Warnings(), nil
}

func (s *Service) GetForm(ctx context.Context, id uuid.UUID) (*MeasureForm, error) {
	return s.forms.GetByID(ctx, id)
}

func (s *Service) SearchForms(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]*MeasureForm, int, error) {
	if err := search.Validate(f, sorts, formColumns); err != nil {
		return nil, 0, err
	}
	return s.forms.Search(ctx, f, sorts, limit, offset)
}

// DeleteForm fails with a conflict while measures still use the form.
func (s *Service) DeleteForm(ctx context.Context, id uuid.UUID) (cqrs.DeleteCommandResult, error) {
	switch err := s.forms.Delete(ctx, id); {
	case errors.Is(err, db.ErrNotFound):
		return cqrs.DeleteFailedNotFound, nil
	case errors.Is(err, db.ErrConflict):
		return cqrs.DeleteFailedConflict, nil
	case err != nil:
		return 0, err
	}
	return cqrs.DeleteDone, nil
}

// CreateGenericMeasure records data for the form named formName.
func (s *Service) CreateGenericMeasure(ctx context.Context, patientID uuid.UUID, formName string, info GenericMeasureInfo) (*GenericMeasure, cqrs.CreateCommandResult, error) {
	var m *GenericMeasure
	result := cqrs.CreateDone
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		form, err := s.forms.GetByName(ctx, formName)
		if errors.Is(err, db.ErrNotFound) {
			result = cqrs.CreateFailedNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := s.patients.GetByID(ctx, patientID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				result = cqrs.CreateFailedNotFound
				return nil
			}
			return err
		}

		check := form.Check(info.Data)
		if info.DateOfMeasure.IsZero() {
			check.AddError("dateOfMeasure", validation.Required("dateOfMeasure"))
		}
		if err := check.Err(); err != nil {
			return err
		}

		m = &GenericMeasure{
			ID:            uuid.New(),
			PatientID:     patientID,
			FormID:        form.ID,
			DateOfMeasure: info.DateOfMeasure.UTC(),
			Data:          info.Data,
		}
		m.Created(auth.Actor(ctx), s.now())
		return s.generic.Create(ctx, m)
	})
	if err != nil {
		return nil, 0, err
	}
	return m, result, nil
}

// GenericMeasures lists the measures of a patient for the form named formName.
func (s *Service) GenericMeasures(ctx context.Context, patientID uuid.UUID, formName string, limit, offset int) ([]*GenericMeasure, int, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, 0, err
	}
	form, err := s.forms.GetByName(ctx, formName)
	if err != nil {
		return nil, 0, err
	}
	return s.generic.List(ctx, patientID, form.ID, limit, offset)
}

// MeasureService manages one kind of physical measure.
type MeasureService[M Measure, I any] struct {
	kind     *Kind[M, I]
	repo     MeasureRepository[M]
	patients PatientRepository
	uow      db.UnitOfWork
	bus      events.Publisher
	logger   zerolog.Logger
	now      func() time.Time
}

func NewMeasureService[M Measure, I any](kind *Kind[M, I], repo MeasureRepository[M], patients PatientRepository, uow db.UnitOfWork, bus events.Publisher, logger zerolog.Logger) *MeasureService[M, I] {
	return &MeasureService[M, I]{
		kind:     kind,
		repo:     repo,
		patients: patients,
		uow:      uow,
		bus:      bus,
		logger:   logger.With().Str("measure", kind.Name).Logger(),
		now:      time.Now,
	}
}

// Create stores a measure of an existing patient.
func (s *MeasureService[M, I]) Create(ctx context.Context, info I) (M, []validation.Failure, error) {
	var zero M
	result := s.kind.validator.Validate(info)
	if err := result.Err(); err != nil {
		return zero, nil, err
	}

	m := s.kind.fresh()
	s.kind.apply(m, info)
	sample := m.sample()
	sample.ID = uuid.New()
	sample.Created(auth.Actor(ctx), s.now())

	if err := s.uow.Do(ctx, func(ctx context.Context) error {
		if _, err := s.patients.GetByID(ctx, sample.PatientID); err != nil {
			return err
		}
		return s.repo.Create(ctx, m)
	}); err != nil {
		return zero, nil, err
	}

	s.publish(ctx, s.kind.created, m)
	return m, result.Warnings(), nil
}

func (s *MeasureService[M, I]) Get(ctx context.Context, id uuid.UUID) (M, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *MeasureService[M, I]) Search(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]M, int, error) {
	if err := search.Validate(f, sorts, s.kind.columns); err != nil {
		return nil, 0, err
	}
	return s.repo.Search(ctx, f, sorts, limit, offset)
}

// OfPatient lists the measures of a patient, most recent first.
func (s *MeasureService[M, I]) OfPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]M, int, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, 0, err
	}
	f := search.Where("patientId", search.EqualTo, patientID)
	return s.repo.Search(ctx, f, []search.Sort{{Field: "dateOfMeasure", Desc: true}}, limit, offset)
}

// Patch applies a JSON Patch to a measure. The patient cannot be changed.
func (s *MeasureService[M, I]) Patch(ctx context.Context, id uuid.UUID, ops []jsonpatch.Operation, expected *int) (M, []validation.Failure, cqrs.ModifyCommandResult, error) {
	var zero M
	if err := jsonpatch.Restrict(ops, s.kind.patchable...); err != nil {
		return zero, nil, 0, err
	}

	patched := zero
	var warnings []validation.Failure
	result := cqrs.ModifyDone
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		m, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			result = cqrs.ModifyFailedNotFound
			return nil
		}
		if err != nil {
			return err
		}
		sample := m.sample()
		if expected != nil && *expected != sample.Version {
			result = cqrs.ModifyFailedConflict
			return nil
		}

		info, err := jsonpatch.Apply(s.kind.info(m), ops)
		if errors.Is(err, jsonpatch.ErrTestFailed) {
			result = cqrs.ModifyFailedConflict
			return nil
		}
		if err != nil {
			return err
		}
		checked := s.kind.validator.Validate(info)
		if err := checked.Err(); err != nil {
			return err
		}
		warnings = checked.Warnings()

		s.kind.apply(m, info)
		sample.Updated(auth.Actor(ctx), s.now())
		switch err := s.repo.Update(ctx, m); {
		case errors.Is(err, db.ErrVersionMismatch):
			result = cqrs.ModifyFailedConflict
			return nil
		case errors.Is(err, db.ErrNotFound):
			result = cqrs.ModifyFailedNotFound
			return nil
		case err != nil:
			return err
		}
		patched = m
		return nil
	})
	if err != nil {
		return zero, nil, 0, err
	}
	if result == cqrs.ModifyDone {
		s.publish(ctx, s.kind.updated, patched)
	}
	return patched, warnings, result, nil
}

func (s *MeasureService[M, I]) Delete(ctx context.Context, id uuid.UUID) (cqrs.DeleteCommandResult, error) {
	m, err := s.repo.GetByID(ctx, id)
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
	s.publish(ctx, s.kind.deleted, m)
	return cqrs.DeleteDone, nil
}

func (s *MeasureService[M, I]) publish(ctx context.Context, name string, m M) {
	sample := m.sample()
	payload := events.MeasureChanged{ID: sample.ID, PatientID: sample.PatientID}
	if err := events.Publish(ctx, s.bus, name, source, payload); err != nil {
		s.logger.Error().Err(err).Str("event", name).Str("measure_id", sample.ID.String()).Msg("publish failed")
	}
}
