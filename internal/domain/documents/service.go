package documents

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medeasy/medeasy/internal/platform/auth"
	"github.com/medeasy/medeasy/internal/platform/blobstore"
	"github.com/medeasy/medeasy/internal/platform/cqrs"
	"github.com/medeasy/medeasy/internal/platform/db"
	"github.com/medeasy/medeasy/internal/platform/events"
	"github.com/medeasy/medeasy/internal/platform/jsonpatch"
	"github.com/medeasy/medeasy/internal/platform/search"
	"github.com/medeasy/medeasy/internal/platform/validation"
)

type Service struct {
	repo   Repository
	blobs  blobstore.Store
	uow    db.UnitOfWork
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, blobs blobstore.Store, uow db.UnitOfWork, logger zerolog.Logger) *Service {
	return &Service{repo: repo, blobs: blobs, uow: uow, logger: logger, now: time.Now}
}

// Create stores the content and its metadata. Size and hash are computed
// from the content.
func (s *Service) Create(ctx context.Context, info NewDocumentInfo) (*Document, []validation.Failure, error) {
	if info.MimeType == "" && len(info.Content) > 0 {
		info.MimeType = DefaultMimeType
	}
	result := validateNew(info)
	if err := result.Err(); err != nil {
		return nil, nil, err
	}

	d := &Document{
		ID:       uuid.New(),
		Name:     info.Name,
		MimeType: info.MimeType,
		Size:     int64(len(info.Content)),
		Hash:     blobstore.Hash(info.Content),
	}
	d.apply(Info{Name: info.Name, MimeType: info.MimeType, PatientID: info.PatientID})
	d.Created(auth.Actor(ctx), s.now())

	err := s.uow.Do(ctx, func(ctx context.Context) error {
		if err := s.blobs.Put(ctx, d.key(), info.Content, d.MimeType); err != nil {
			return err
		}
		return s.repo.Create(ctx, d)
	})
	if err != nil {
		// S3 content is not covered by the transaction
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), d.key()); derr != nil && !errors.Is(derr, blobstore.ErrBlobNotFound) {
			s.logger.Warn().Err(derr).Str("document_id", d.ID.String()).Msg("orphan blob")
		}
		return nil, nil, err
	}
	return d, result.Warnings(), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.repo.GetByID(ctx, id)
}

// Content returns a document with its bytes.
func (s *Service) Content(ctx context.Context, id uuid.UUID) (*Document, []byte, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.blobs.Get(ctx, d.key())
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, db.NotFound("document content", id)
	}
	if err != nil {
		return nil, nil, err
	}
	return d, data, nil
}

func (s *Service) List(ctx context.Context, sorts []search.Sort, limit, offset int) ([]*Document, int, error) {
	return s.Search(ctx, nil, sorts, limit, offset)
}

func (s *Service) Search(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]*Document, int, error) {
	if err := search.Validate(f, sorts, columns); err != nil {
		return nil, 0, err
	}
	return s.repo.Search(ctx, f, sorts, limit, offset)
}

// OfPatient lists the documents of a patient, most recently updated first.
func (s *Service) OfPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Document, int, error) {
	f := search.Where("patientId", search.EqualTo, patientID)
	return s.repo.Search(ctx, f, []search.Sort{{Field: "updatedDate", Desc: true}}, limit, offset)
}

func (s *Service) Patch(ctx context.Context, id uuid.UUID, ops []jsonpatch.Operation, expected *int) (*Document, []validation.Failure, cqrs.ModifyCommandResult, error) {
	if err := jsonpatch.Restrict(ops, patchable...); err != nil {
		return nil, nil, 0, err
	}

	var patched *Document
	var warnings []validation.Failure
	result := cqrs.ModifyDone
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		d, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			result = cqrs.ModifyFailedNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if expected != nil && *expected != d.Version {
			result = cqrs.ModifyFailedConflict
			return nil
		}

		info, err := jsonpatch.Apply(d.Info(), ops)
		if errors.Is(err, jsonpatch.ErrTestFailed) {
			result = cqrs.ModifyFailedConflict
			return nil
		}
		if err != nil {
			return err
		}
		checked := infoValidator.Validate(info)
		if err := checked.Err(); err != nil {
			return err
		}
		warnings = checked.Warnings()

		d.apply(info)
		d.Updated(auth.Actor(ctx), s.now())
		switch err := s.repo.Update(ctx, d); {
		case errors.Is(err, db.ErrVersionMismatch):
			result = cqrs.ModifyFailedConflict
			return nil
		case errors.Is(err, db.ErrNotFound):
			result = cqrs.ModifyFailedNotFound
			return nil
		case err != nil:
			return err
		}
		patched = d
		return nil
	})
	if err != nil {
		return nil, nil, 0, err
	}
	return patched, warnings, result, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) (cqrs.DeleteCommandResult, error) {
	result := cqrs.DeleteDone
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		err := s.repo.Delete(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			result = cqrs.DeleteFailedNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.blobs.Delete(ctx, id.String()); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

// Subscribe detaches the documents of deleted patient cases.
func (s *Service) Subscribe(bus events.Bus) {
	bus.Subscribe(events.PatientCaseDeleted, s.onPatientCaseDeleted)
}

func (s *Service) onPatientCaseDeleted(ctx context.Context, e events.Event) error {
	var c events.PatientCase
	if err := e.Decode(&c); err != nil {
		return err
	}
	n, err := s.repo.DetachPatient(ctx, c.ID)
	if err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", c.ID.String()).Int64("documents", n).Msg("documents detached")
	return nil
}
