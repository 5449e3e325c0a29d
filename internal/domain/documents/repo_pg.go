package documents

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medeasy/medeasy/internal/platform/db"
	"github.com/medeasy/medeasy/internal/platform/search"
)

type repoPG struct{ pool db.Querier }

func NewRepoPG(pool db.Querier) Repository {
	return &repoPG{pool: pool}
}

const documentCols = `id, patient_id, name, mime_type, size, hash, ` + db.AuditColumns

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	dest := append([]interface{}{&d.ID, &d.PatientID, &d.Name, &d.MimeType, &d.Size, &d.Hash}, d.Audit.Fields()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) Create(ctx context.Context, d *Document) error {
	args := append([]interface{}{d.ID, d.PatientID, d.Name, d.MimeType, d.Size, d.Hash}, d.Audit.Values()...)
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO document (`+documentCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, args...)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	d, err := scanDocument(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+documentCols+` FROM document WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.NotFound("document", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return d, nil
}

func (r *repoPG) Update(ctx context.Context, d *Document) error {
	conn := db.Conn(ctx, r.pool)
	tag, err := conn.Exec(ctx, `
		UPDATE document SET patient_id=$3, name=$4, mime_type=$5, updated_by=$6, updated_date=$7, version = version + 1
		WHERE id = $1 AND version = $2`,
		d.ID, d.Version, d.PatientID, d.Name, d.MimeType, d.UpdatedBy, d.UpdatedDate)
	if err != nil {
		return fmt.Errorf("update document %s: %w", d.ID, err)
	}
	if err := db.UpdateOutcome(ctx, conn, "document", "document", d.ID, tag); err != nil {
		return err
	}
	d.Version++
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM document WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return db.DeleteOutcome("document", id, tag)
}

func (r *repoPG) Search(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]*Document, int, error) {
	q := search.NewQuery("document", documentCols)
	if err := q.Filter(f, columns); err != nil {
		return nil, 0, err
	}
	if err := q.OrderBy(sorts, columns, "name, id"); err != nil {
		return nil, 0, err
	}
	items, total, err := db.QueryPage(ctx, db.Conn(ctx, r.pool), q.Page(limit, offset), scanDocument)
	if err != nil {
		return nil, 0, fmt.Errorf("search documents: %w", err)
	}
	return items, total, nil
}

func (r *repoPG) DetachPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE document SET patient_id = NULL, updated_date = NOW(), version = version + 1
		WHERE patient_id = $1`, patientID)
	if err != nil {
		return 0, fmt.Errorf("detach documents of %s: %w", patientID, err)
	}
	return tag.RowsAffected(), nil
}
