package agenda

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medeasy/medeasy/internal/platform/db"
	"github.com/medeasy/medeasy/internal/platform/search"
)

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// =========== Participant Repository ===========

type participantRepoPG struct{ pool db.Querier }

func NewParticipantRepoPG(pool db.Querier) ParticipantRepository {
	return &participantRepoPG{pool: pool}
}

const participantCols = `id, name, COALESCE(email, ''), COALESCE(phone_number, ''), ` + db.AuditColumns

func scanParticipant(row pgx.Row) (*Participant, error) {
	var p Participant
	dest := append([]interface{}{&p.ID, &p.Name, &p.Email, &p.PhoneNumber}, p.Audit.Fields()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *participantRepoPG) Create(ctx context.Context, p *Participant) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	args := append([]interface{}{p.ID, p.Name, nullable(p.Email), nullable(p.PhoneNumber)}, p.Audit.Values()...)
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO participant (id, name, email, phone_number, `+db.AuditColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, args...)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("participant %s: %w", p.Email, db.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (r *participantRepoPG) get(ctx context.Context, where string, arg interface{}) (*Participant, error) {
	p, err := scanParticipant(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+participantCols+` FROM participant WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.NotFound("participant", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("get participant %v: %w", arg, err)
	}
	return p, nil
}

func (r *participantRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Participant, error) {
	return r.get(ctx, "id = $1", id)
}

func (r *participantRepoPG) FindByEmail(ctx context.Context, email string) (*Participant, error) {
	return r.get(ctx, "LOWER(email) = LOWER($1)", email)
}

func (r *participantRepoPG) Search(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]*Participant, int, error) {
	q := search.NewQuery("participant", participantCols)
	if err := q.Filter(f, participantColumns); err != nil {
		return nil, 0, err
	}
	if err := q.OrderBy(sorts, participantColumns, "name, id"); err != nil {
		return nil, 0, err
	}
	items, total, err := db.QueryPage(ctx, db.Conn(ctx, r.pool), q.Page(limit, offset), scanParticipant)
	if err != nil {
		return nil, 0, fmt.Errorf("search participants: %w", err)
	}
	return items, total, nil
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool db.Querier }

func NewAppointmentRepoPG(pool db.Querier) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const appointmentCols = `a.id, a.subject, a.location, a.start_date, a.end_date, a.status,
	a.created_by, a.created_date, a.updated_by, a.updated_date, a.version`

const attendeeExists = `SELECT 1 FROM appointment_attendee aa JOIN participant p ON p.id = aa.participant_id
	WHERE aa.appointment_id = a.id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	dest := append([]interface{}{&a.ID, &a.Subject, &a.Location, &a.StartDate, &a.EndDate, &a.Status}, a.Audit.Fields()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	conn := db.Conn(ctx, r.pool)
	args := append([]interface{}{a.ID, a.Subject, a.Location, a.StartDate, a.EndDate, a.Status}, a.Audit.Values()...)
	if _, err := conn.Exec(ctx, `
		INSERT INTO appointment (id, subject, location, start_date, end_date, status, `+db.AuditColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, args...); err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	for _, p := range a.Participants {
		if _, err := conn.Exec(ctx, `INSERT INTO appointment_attendee (appointment_id, participant_id) VALUES ($1, $2)`, a.ID, p.ID); err != nil {
			return fmt.Errorf("link participant %s: %w", p.ID, err)
		}
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	conn := db.Conn(ctx, r.pool)
	a, err := scanAppointment(conn.QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointment a WHERE a.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.NotFound("appointment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment %s: %w", id, err)
	}
	if err := r.loadParticipants(ctx, conn, []*Appointment{a}); err != nil {
		return nil, err
	}
	return a, nil
}

// loadParticipants fills the attendees of items with one query.
func (r *appointmentRepoPG) loadParticipants(ctx context.Context, conn db.Querier, items []*Appointment) error {
	if len(items) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Appointment, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, a := range items {
		a.Participants = []*Participant{}
		byID[a.ID] = a
		ids = append(ids, a.ID)
	}

	rows, err := conn.Query(ctx, `
		SELECT aa.appointment_id, p.id, p.name, COALESCE(p.email, ''), COALESCE(p.phone_number, ''),
			p.created_by, p.created_date, p.updated_by, p.updated_date, p.version
		FROM appointment_attendee aa JOIN participant p ON p.id = aa.participant_id
		WHERE aa.appointment_id = ANY($1)
		ORDER BY p.name`, ids)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var appointmentID uuid.UUID
		var p Participant
		dest := append([]interface{}{&appointmentID, &p.ID, &p.Name, &p.Email, &p.PhoneNumber}, p.Audit.Fields()...)
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		if a, ok := byID[appointmentID]; ok {
			a.Participants = append(a.Participants, &p)
		}
	}
	return rows.Err()
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	conn := db.Conn(ctx, r.pool)
	tag, err := conn.Exec(ctx, `
		UPDATE appointment SET subject=$3, location=$4, start_date=$5, end_date=$6, status=$7,
			updated_by=$8, updated_date=$9, version = version + 1
		WHERE id = $1 AND version = $2`,
		a.ID, a.Version, a.Subject, a.Location, a.StartDate, a.EndDate, a.Status, a.UpdatedBy, a.UpdatedDate)
	if err != nil {
		return fmt.Errorf("update appointment %s: %w", a.ID, err)
	}
	if err := db.UpdateOutcome(ctx, conn, "appointment", "appointment", a.ID, tag); err != nil {
		return err
	}
	a.Version++
	return nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment %s: %w", id, err)
	}
	return db.DeleteOutcome("appointment", id, tag)
}

func (r *appointmentRepoPG) page(ctx context.Context, q *search.Query, limit, offset int) ([]*Appointment, int, error) {
	conn := db.Conn(ctx, r.pool)
	items, total, err := db.QueryPage(ctx, conn, q.Page(limit, offset), scanAppointment)
	if err != nil {
		return nil, 0, fmt.Errorf("search appointments: %w", err)
	}
	if err := r.loadParticipants(ctx, conn, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *appointmentRepoPG) Search(ctx context.Context, f, participant search.Filter, sorts []search.Sort, limit, offset int) ([]*Appointment, int, error) {
	q := search.NewQuery("appointment a", appointmentCols)
	if err := q.Filter(f, appointmentColumns); err != nil {
		return nil, 0, err
	}
	if err := q.Exists(attendeeExists, participant, attendeeColumns); err != nil {
		return nil, 0, err
	}
	if err := q.OrderBy(sorts, appointmentColumns, "a.start_date, a.id"); err != nil {
		return nil, 0, err
	}
	return r.page(ctx, q, limit, offset)
}

func (r *appointmentRepoPG) ListByParticipant(ctx context.Context, participantID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	q := search.NewQuery("appointment a", appointmentCols)
	q.Add("EXISTS (SELECT 1 FROM appointment_attendee aa WHERE aa.appointment_id = a.id AND aa.participant_id = " + q.Arg(participantID) + ")")
	if err := q.OrderBy(nil, appointmentColumns, "a.start_date DESC, a.id"); err != nil {
		return nil, 0, err
	}
	return r.page(ctx, q, limit, offset)
}

func (r *appointmentRepoPG) RemoveParticipant(ctx context.Context, appointmentID, participantID uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM appointment_attendee WHERE appointment_id = $1 AND participant_id = $2`, appointmentID, participantID)
	if err != nil {
		return fmt.Errorf("remove participant %s from %s: %w", participantID, appointmentID, err)
	}
	return db.DeleteOutcome("attendee", participantID, tag)
}
