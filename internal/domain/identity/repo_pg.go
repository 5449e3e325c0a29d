package identity

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

const accountCols = `id, username, COALESCE(name, ''), email, password_hash, is_active, locked, email_confirmed,
	COALESCE(refresh_token, ''), tenant_id, ` + db.AuditColumns

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	dest := append([]interface{}{&a.ID, &a.Username, &a.Name, &a.Email, &a.PasswordHash, &a.IsActive, &a.Locked,
		&a.EmailConfirmed, &a.RefreshToken, &a.TenantID}, a.Audit.Fields()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &a, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *repoPG) Create(ctx context.Context, a *Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	conn := db.Conn(ctx, r.pool)
	args := append([]interface{}{a.ID, a.Username, nullable(a.Name), a.Email, a.PasswordHash, a.IsActive, a.Locked,
		a.EmailConfirmed, nullable(a.RefreshToken), a.TenantID}, a.Audit.Values()...)
	_, err := conn.Exec(ctx, `
		INSERT INTO account (id, username, name, email, password_hash, is_active, locked, email_confirmed,
			refresh_token, tenant_id, `+db.AuditColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`, args...)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("username %q: %w", a.Username, db.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return r.saveGrants(ctx, conn, a)
}

// saveGrants replaces the roles and claims of a. Unknown role codes are
// created on the fly.
func (r *repoPG) saveGrants(ctx context.Context, conn db.Querier, a *Account) error {
	if _, err := conn.Exec(ctx, `DELETE FROM account_role WHERE account_id = $1`, a.ID); err != nil {
		return fmt.Errorf("clear roles of %s: %w", a.ID, err)
	}
	for _, code := range a.Roles {
		if _, err := conn.Exec(ctx, `
			INSERT INTO role (id, code, created_by) VALUES ($1, $2, $3) ON CONFLICT (code) DO NOTHING`,
			uuid.New(), code, a.UpdatedBy); err != nil {
			return fmt.Errorf("insert role %s: %w", code, err)
		}
	}
	if len(a.Roles) > 0 {
		if _, err := conn.Exec(ctx, `
			INSERT INTO account_role (account_id, role_id) SELECT $1, id FROM role WHERE code = ANY($2)`,
			a.ID, a.Roles); err != nil {
			return fmt.Errorf("link roles of %s: %w", a.ID, err)
		}
	}

	if _, err := conn.Exec(ctx, `DELETE FROM account_claim WHERE account_id = $1`, a.ID); err != nil {
		return fmt.Errorf("clear claims of %s: %w", a.ID, err)
	}
	for _, c := range a.Claims {
		if _, err := conn.Exec(ctx, `
			INSERT INTO account_claim (id, account_id, type, value, start_date, end_date) VALUES ($1,$2,$3,$4,$5,$6)`,
			uuid.New(), a.ID, c.Type, c.Value, c.Start, c.End); err != nil {
			return fmt.Errorf("insert claim %s of %s: %w", c.Type, a.ID, err)
		}
	}
	return nil
}

// loadGrants fills the roles and claims of items with one query each.
func (r *repoPG) loadGrants(ctx context.Context, conn db.Querier, items []*Account) error {
	if len(items) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Account, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, a := range items {
		a.Roles = []string{}
		a.Claims = []AccountClaim{}
		byID[a.ID] = a
		ids = append(ids, a.ID)
	}

	rows, err := conn.Query(ctx, `
		SELECT ar.account_id, r.code FROM account_role ar JOIN role r ON r.id = ar.role_id
		WHERE ar.account_id = ANY($1) ORDER BY r.code`, ids)
	if err != nil {
		return fmt.Errorf("load roles: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		var code string
		if err := rows.Scan(&id, &code); err != nil {
			rows.Close()
			return fmt.Errorf("scan role: %w", err)
		}
		if a, ok := byID[id]; ok {
			a.Roles = append(a.Roles, code)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load roles: %w", err)
	}

	rows, err = conn.Query(ctx, `
		SELECT account_id, type, value, start_date, end_date FROM account_claim
		WHERE account_id = ANY($1) ORDER BY type, start_date`, ids)
	if err != nil {
		return fmt.Errorf("load claims: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		var c AccountClaim
		if err := rows.Scan(&id, &c.Type, &c.Value, &c.Start, &c.End); err != nil {
			return fmt.Errorf("scan claim: %w", err)
		}
		if a, ok := byID[id]; ok {
			a.Claims = append(a.Claims, c)
		}
	}
	return rows.Err()
}

func (r *repoPG) one(ctx context.Context, where string, arg interface{}) (*Account, error) {
	conn := db.Conn(ctx, r.pool)
	a, err := scanAccount(conn.QueryRow(ctx, `SELECT `+accountCols+` FROM account WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.NotFound("account", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %v: %w", arg, err)
	}
	if err := r.loadGrants(ctx, conn, []*Account{a}); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.one(ctx, `id = $1`, id)
}

func (r *repoPG) FindByUsername(ctx context.Context, username string) (*Account, error) {
	return r.one(ctx, `LOWER(username) = LOWER($1)`, username)
}

func (r *repoPG) Update(ctx context.Context, a *Account) error {
	conn := db.Conn(ctx, r.pool)
	tag, err := conn.Exec(ctx, `
		UPDATE account SET name=$3, email=$4, is_active=$5, locked=$6, email_confirmed=$7, tenant_id=$8,
			updated_by=$9, updated_date=$10, version = version + 1
		WHERE id = $1 AND version = $2`,
		a.ID, a.Version, nullable(a.Name), a.Email, a.IsActive, a.Locked, a.EmailConfirmed, a.TenantID,
		a.UpdatedBy, a.UpdatedDate)
	if err != nil {
		return fmt.Errorf("update account %s: %w", a.ID, err)
	}
	if err := db.UpdateOutcome(ctx, conn, "account", "account", a.ID, tag); err != nil {
		return err
	}
	a.Version++
	return r.saveGrants(ctx, conn, a)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM account WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account %s: %w", id, err)
	}
	return db.DeleteOutcome("account", id, tag)
}

func (r *repoPG) Search(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]*Account, int, error) {
	q := search.NewQuery("account", accountCols)
	if err := q.Filter(f, columns); err != nil {
		return nil, 0, err
	}
	if err := q.OrderBy(sorts, columns, "username"); err != nil {
		return nil, 0, err
	}
	conn := db.Conn(ctx, r.pool)
	items, total, err := db.QueryPage(ctx, conn, q.Page(limit, offset), scanAccount)
	if err != nil {
		return nil, 0, fmt.Errorf("search accounts: %w", err)
	}
	if err := r.loadGrants(ctx, conn, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repoPG) SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE account SET refresh_token = $2 WHERE id = $1`, id, nullable(token))
	if err != nil {
		return fmt.Errorf("set refresh token of %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return db.NotFound("account", id)
	}
	return nil
}
