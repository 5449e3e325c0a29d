package measures

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medeasy/medeasy/internal/platform/db"
	"github.com/medeasy/medeasy/internal/platform/search"
)

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(i+1)
	}
	return strings.Join(parts, ",")
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool db.Querier }

func NewPatientRepoPG(pool db.Querier) PatientRepository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `id, name, birth_date, ` + db.AuditColumns

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	dest := append([]interface{}{&p.ID, &p.Name, &p.BirthDate}, p.Audit.Fields()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	args := append([]interface{}{p.ID, p.Name, p.BirthDate}, p.Audit.Values()...)
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO patient (`+patientCols+`) VALUES (`+placeholders(len(args))+`)`, args...)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("patient %s: %w", p.ID, db.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.NotFound("patient", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return p, nil
}

// Delete removes the patient and, through the foreign keys, its measures.
func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	return db.DeleteOutcome("patient", id, tag)
}

func (r *patientRepoPG) Search(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]*Patient, int, error) {
	q := search.NewQuery("patient", patientCols)
	if err := q.Filter(f, patientColumns); err != nil {
		return nil, 0, err
	}
	if err := q.OrderBy(sorts, patientColumns, "name, id"); err != nil {
		return nil, 0, err
	}
	items, total, err := db.QueryPage(ctx, db.Conn(ctx, r.pool), q.Page(limit, offset), scanPatient)
	if err != nil {
		return nil, 0, fmt.Errorf("search patients: %w", err)
	}
	return items, total, nil
}

// =========== Physical Measure Repository ===========

type measureRepoPG[M Measure, I any] struct {
	pool db.Querier
	kind *Kind[M, I]
	cols string
}

func NewMeasureRepoPG[M Measure, I any](pool db.Querier, kind *Kind[M, I]) MeasureRepository[M] {
	cols := "id, patient_id, date_of_measure, " + strings.Join(kind.valueCols, ", ") + ", " + db.AuditColumns
	return &measureRepoPG[M, I]{pool: pool, kind: kind, cols: cols}
}

func (r *measureRepoPG[M, I]) scan(row pgx.Row) (M, error) {
	m := r.kind.fresh()
	s := m.sample()
	dest := append([]interface{}{&s.ID, &s.PatientID, &s.DateOfMeasure}, m.values()...)
	dest = append(dest, s.Audit.Fields()...)
	if err := row.Scan(dest...); err != nil {
		var zero M
		return zero, err
	}
	return m, nil
}

func (r *measureRepoPG[M, I]) Create(ctx context.Context, m M) error {
	s := m.sample()
	args := append([]interface{}{s.ID, s.PatientID, s.DateOfMeasure}, m.values()...)
	args = append(args, s.Audit.Values()...)
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO `+r.kind.table+` (`+r.cols+`) VALUES (`+placeholders(len(args))+`)`, args...)
	if db.IsForeignKeyViolation(err) {
		return db.NotFound("patient", s.PatientID)
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", r.kind.table, err)
	}
	return nil
}

func (r *measureRepoPG[M, I]) GetByID(ctx context.Context, id uuid.UUID) (M, error) {
	m, err := r.scan(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+r.cols+` FROM `+r.kind.table+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return m, db.NotFound(r.kind.table, id)
	}
	if err != nil {
		return m, fmt.Errorf("get %s %s: %w", r.kind.table, id, err)
	}
	return m, nil
}

func (r *measureRepoPG[M, I]) Update(ctx context.Context, m M) error {
	s := m.sample()
	args := []interface{}{s.ID, s.Version, s.DateOfMeasure, s.UpdatedBy, s.UpdatedDate}
	sets := []string{"date_of_measure = $3", "updated_by = $4", "updated_date = $5"}
	for i, col := range r.kind.valueCols {
		args = append(args, m.values()[i])
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}

	conn := db.Conn(ctx, r.pool)
	tag, err := conn.Exec(ctx, `UPDATE `+r.kind.table+` SET `+strings.Join(sets, ", ")+`, version = version + 1
		WHERE id = $1 AND version = $2`, args...)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", r.kind.table, s.ID, err)
	}
	if err := db.UpdateOutcome(ctx, conn, r.kind.table, r.kind.table, s.ID, tag); err != nil {
		return err
	}
	s.Version++
	return nil
}

func (r *measureRepoPG[M, I]) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM `+r.kind.table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", r.kind.table, id, err)
	}
	return db.DeleteOutcome(r.kind.table, id, tag)
}

func (r *measureRepoPG[M, I]) Search(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]M, int, error) {
	q := search.NewQuery(r.kind.table, r.cols)
	if err := q.Filter(f, r.kind.columns); err != nil {
		return nil, 0, err
	}
	if err := q.OrderBy(sorts, r.kind.columns, "date_of_measure DESC, id"); err != nil {
		return nil, 0, err
	}
	items, total, err := db.QueryPage(ctx, db.Conn(ctx, r.pool), q.Page(limit, offset), r.scan)
	if err != nil {
		return nil, 0, fmt.Errorf("search %s: %w", r.kind.table, err)
	}
	return items, total, nil
}

// =========== Form Repository ===========

type formRepoPG struct{ pool db.Querier }

func NewFormRepoPG(pool db.Querier) FormRepository {
	return &formRepoPG{pool: pool}
}

const formCols = `id, name, fields, ` + db.AuditColumns

func scanForm(row pgx.Row) (*MeasureForm, error) {
	var f MeasureForm
	dest := append([]interface{}{&f.ID, &f.Name, &f.Fields}, f.Audit.Fields()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *formRepoPG) Create(ctx context.Context, f *MeasureForm) error {
	args := append([]interface{}{f.ID, f.Name, f.Fields}, f.Audit.Values()...)
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO measure_form (`+formCols+`) VALUES (`+placeholders(len(args))+`)`, args...)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("form %s: %w", f.Name, db.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert form: %w", err)
	}
	return nil
}

func (r *formRepoPG) get(ctx context.Context, where string, arg interface{}) (*MeasureForm, error) {
	f, err := scanForm(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+formCols+` FROM measure_form WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.NotFound("form", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("get form %v: %w", arg, err)
	}
	return f, nil
}

func (r *formRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MeasureForm, error) {
	return r.get(ctx, "id = $1", id)
}

func (r *formRepoPG) GetByName(ctx context.Context, name string) (*MeasureForm, error) {
	return r.get(ctx, "LOWER(name) = LOWER($1)", name)
}

func (r *formRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM measure_form WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("form %s has measures: %w", id, db.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("delete form %s: %w", id, err)
	}
	return db.DeleteOutcome("form", id, tag)
}

func (r *formRepoPG) Search(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]*MeasureForm, int, error) {
	q := search.NewQuery("measure_form", formCols)
	if err := q.Filter(f, formColumns); err != nil {
		return nil, 0, err
	}
	if err := q.OrderBy(sorts, formColumns, "name, id"); err != nil {
		return nil, 0, err
	}
	items, total, err := db.QueryPage(ctx, db.Conn(ctx, r.pool), q.Page(limit, offset), scanForm)
	if err != nil {
		return nil, 0, fmt.Errorf("search forms: %w", err)
	}
	return items, total, nil
}

// =========== Generic Measure Repository ===========

type genericRepoPG struct{ pool db.Querier }

func NewGenericMeasureRepoPG(pool db.Querier) GenericMeasureRepository {
	return &genericRepoPG{pool: pool}
}

const genericCols = `id, patient_id, form_id, date_of_measure, data, ` + db.AuditColumns

func scanGeneric(row pgx.Row) (*GenericMeasure, error) {
	var m GenericMeasure
	dest := append([]interface{}{&m.ID, &m.PatientID, &m.FormID, &m.DateOfMeasure, &m.Data}, m.Audit.Fields()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *genericRepoPG) Create(ctx context.Context, m *GenericMeasure) error {
	args := append([]interface{}{m.ID, m.PatientID, m.FormID, m.DateOfMeasure, m.Data}, m.Audit.Values()...)
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO generic_measure (`+genericCols+`) VALUES (`+placeholders(len(args))+`)`, args...)
	if err != nil {
		return fmt.Errorf("insert generic measure: %w", err)
	}
	return nil
}

func (r *genericRepoPG) List(ctx context.Context, patientID, formID uuid.UUID, limit, offset int) ([]*GenericMeasure, int, error) {
	q := search.NewQuery("generic_measure", genericCols)
	q.Add("patient_id = " + q.Arg(patientID))
	q.Add("form_id = " + q.Arg(formID))
	if err := q.OrderBy(nil, nil, "date_of_measure DESC, id"); err != nil {
		return nil, 0, err
	}
	items, total, err := db.QueryPage(ctx, db.Conn(ctx, r.pool), q.Page(limit, offset), scanGeneric)
	if err != nil {
		return nil, 0, fmt.Errorf("list generic measures: %w", err)
	}
	return items, total, nil
}
