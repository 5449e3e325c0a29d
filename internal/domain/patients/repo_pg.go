package patients

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

func NewRepoPG(pool db.Querier) Repository { return &repoPG{pool: pool} }

const patientCols = `id, COALESCE(firstname, ''), lastname, birth_date, COALESCE(birth_place, ''),
	main_doctor_id, ` + db.AuditColumns

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	dest := append([]interface{}{&p.ID, &p.Firstname, &p.Lastname, &p.BirthDate, &p.BirthPlace, &p.MainDoctorID}, p.Audit.Fields()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &p, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	args := append([]interface{}{p.ID, nullable(p.Firstname), p.Lastname, p.BirthDate, nullable(p.BirthPlace), p.MainDoctorID}, p.Audit.Values()...)
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO patient (id, firstname, lastname, birth_date, birth_place, main_doctor_id, `+db.AuditColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, args...)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.NotFound("patient", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return p, nil
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	conn := db.Conn(ctx, r.pool)
	tag, err := conn.Exec(ctx, `
		UPDATE patient SET firstname=$3, lastname=$4, birth_date=$5, birth_place=$6, main_doctor_id=$7,
			updated_by=$8, updated_date=$9, version = version + 1
		WHERE id = $1 AND version = $2`,
		p.ID, p.Version, nullable(p.Firstname), p.Lastname, p.BirthDate, nullable(p.BirthPlace), p.MainDoctorID,
		p.UpdatedBy, p.UpdatedDate)
	if err != nil {
		return fmt.Errorf("update patient %s: %w", p.ID, err)
	}
	if err := db.UpdateOutcome(ctx, conn, "patient", "patient", p.ID, tag); err != nil {
		return err
	}
	p.Version++
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	return db.DeleteOutcome("patient", id, tag)
}

func (r *repoPG) Search(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]*Patient, int, error) {
	q := search.NewQuery("patient", patientCols)
	if err := q.Filter(f, columns); err != nil {
		return nil, 0, err
	}
	if err := q.OrderBy(sorts, columns, "id"); err != nil {
		return nil, 0, err
	}
	items, total, err := db.QueryPage(ctx, db.Conn(ctx, r.pool), q.Page(limit, offset), scanPatient)
	if err != nil {
		return nil, 0, fmt.Errorf("search patients: %w", err)
	}
	return items, total, nil
}
