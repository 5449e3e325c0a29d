package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrVersionMismatch = errors.New("version mismatch")
)

// AuditColumns lists the columns backing Audit, in scan order.
const AuditColumns = "created_by, created_date, updated_by, updated_date, version"

// Audit holds the bookkeeping columns of every entity. Version is the
// optimistic concurrency token, bumped on every update.
type Audit struct {
	CreatedBy   string    `json:"createdBy,omitempty" xml:"createdBy,omitempty"`
	CreatedDate time.Time `json:"createdDate" xml:"createdDate"`
	UpdatedBy   string    `json:"updatedBy,omitempty" xml:"updatedBy,omitempty"`
	UpdatedDate time.Time `json:"updatedDate" xml:"updatedDate"`
	Version     int       `json:"version" xml:"version"`
}

func (a *Audit) Created(by string, at time.Time) {
	at = at.UTC()
	a.CreatedBy, a.CreatedDate = by, at
	a.UpdatedBy, a.UpdatedDate = by, at
	a.Version = 1
}

func (a *Audit) Updated(by string, at time.Time) {
	a.UpdatedBy, a.UpdatedDate = by, at.UTC()
}

// Fields returns scan destinations matching AuditColumns.
func (a *Audit) Fields() []interface{} {
	return []interface{}{&a.CreatedBy, &a.CreatedDate, &a.UpdatedBy, &a.UpdatedDate, &a.Version}
}

// Values returns the insert arguments matching AuditColumns.
func (a *Audit) Values() []interface{} {
	return []interface{}{a.CreatedBy, a.CreatedDate, a.UpdatedBy, a.UpdatedDate, a.Version}
}

// NotFound wraps ErrNotFound for the entity kind with id.
func NotFound(kind string, id interface{}) error {
	return fmt.Errorf("%s %v: %w", kind, id, ErrNotFound)
}

// UpdateOutcome interprets the command tag of a versioned
// "UPDATE ... WHERE id = $1 AND version = $2": no affected row means either
// the row is gone or its version moved on.
func UpdateOutcome(ctx context.Context, conn Querier, table, kind string, id uuid.UUID, tag pgconn.CommandTag) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	err := conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+pgx.Identifier{table}.Sanitize()+" WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check %s %s: %w", kind, id, err)
	}
	if !exists {
		return NotFound(kind, id)
	}
	return fmt.Errorf("%s %s: %w", kind, id, ErrVersionMismatch)
}

// DeleteOutcome returns ErrNotFound when a DELETE removed nothing.
func DeleteOutcome(kind string, id uuid.UUID, tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return NotFound(kind, id)
	}
	return nil
}
