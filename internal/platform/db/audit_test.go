package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestAudit_CreatedAndUpdated(t *testing.T) {
	var a Audit
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	a.Created("bruce", created)

	if a.Version != 1 || a.CreatedBy != "bruce" || a.UpdatedBy != "bruce" {
		t.Errorf("unexpected audit after create: %+v", a)
	}
	if a.CreatedDate.Location() != time.UTC {
		t.Errorf("expected UTC dates, got %s", a.CreatedDate.Location())
	}

	a.Updated("dick", created.Add(time.Hour))
	if a.UpdatedBy != "dick" || a.CreatedBy != "bruce" {
		t.Errorf("unexpected audit after update: %+v", a)
	}
	if !a.UpdatedDate.After(a.CreatedDate) {
		t.Error("expected updated date after created date")
	}
	if len(a.Fields()) != len(a.Values()) {
		t.Error("fields and values must line up")
	}
}

type existsRow bool

func (r existsRow) Scan(dest ...interface{}) error {
	*dest[0].(*bool) = bool(r)
	return nil
}

type existsQuerier struct {
	fakeQuerier
	exists bool
}

func (q *existsQuerier) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return existsRow(q.exists)
}

func TestUpdateOutcome(t *testing.T) {
	id := uuid.New()
	ctx := context.Background()

	if err := UpdateOutcome(ctx, &existsQuerier{}, "patient", "patient", id, pgconn.NewCommandTag("UPDATE 1")); err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if err := UpdateOutcome(ctx, &existsQuerier{exists: false}, "patient", "patient", id, pgconn.NewCommandTag("UPDATE 0")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := UpdateOutcome(ctx, &existsQuerier{exists: true}, "patient", "patient", id, pgconn.NewCommandTag("UPDATE 0")); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestDeleteOutcome(t *testing.T) {
	id := uuid.New()
	if err := DeleteOutcome("patient", id, pgconn.NewCommandTag("DELETE 1")); err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if err := DeleteOutcome("patient", id, pgconn.NewCommandTag("DELETE 0")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
