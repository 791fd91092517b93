package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gatekeep.org/internal/auth"
	"gatekeep.org/internal/ids"
)

type roleStore struct {
	db *sql.DB
}

func (s *roleStore) Create(ctx context.Context, r *auth.Role) error {
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description)
		values ($1, $2, $3)
		returning created_at, updated_at
	`, r.ID, r.Name, nullIfEmpty(r.Description))
	if err := row.Scan(&r.CreatedAt, &r.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *roleStore) GetByID(ctx context.Context, id string) (*auth.Role, error) {
	return s.getOne(ctx, `
		select id, name, coalesce(description, ''), created_at, updated_at
		from roles where id = $1
	`, id)
}

func (s *roleStore) GetByName(ctx context.Context, name string) (*auth.Role, error) {
	return s.getOne(ctx, `
		select id, name, coalesce(description, ''), created_at, updated_at
		from roles where name = $1
	`, name)
}

func (s *roleStore) List(ctx context.Context) ([]*auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, coalesce(r.description, ''), r.created_at, r.updated_at,
		       c.action, c.scope, c.resource
		from roles r
		left join role_claims rc on rc.role_id = r.id
		left join claims c on c.id = rc.claim_id
		order by r.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		roles []*auth.Role
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			r       auth.Role
			action  sql.NullString
			scopeV  sql.NullString
			resName sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt, &action, &scopeV, &resName); err != nil {
			return nil, err
		}
		i, ok := index[r.ID]
		if !ok {
			roles = append(roles, &r)
			i = len(roles) - 1
			index[r.ID] = i
		}
		if action.Valid && scopeV.Valid && resName.Valid {
			roles[i].Claims = append(roles[i].Claims, auth.Claim{
				Action:   auth.Action(action.String),
				Scope:    auth.Scope(scopeV.String),
				Resource: resName.String,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *roleStore) Update(ctx context.Context, id string, upd auth.RoleUpdate) error {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		if *upd.Description == "" {
			sets = append(sets, "description = NULL")
		} else {
			sets = append(sets, fmt.Sprintf("description = $%d", idx))
			args = append(args, *upd.Description)
			idx++
		}
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = now()")
	query := fmt.Sprintf(`update roles set %s where id = $%d`, strings.Join(sets, ", "), idx)
	args = append(args, id)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *roleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// SetClaims replaces the role's claim grants atomically, registering any
// claim not yet in the catalog.
func (s *roleStore) SetClaims(ctx context.Context, roleID string, claims []auth.Claim) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1`, roleID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.ErrNotFound
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from role_claims where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, c := range claims {
		claimID, err := ensureClaim(ctx, tx, c)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into role_claims (role_id, claim_id)
			values ($1, $2)
		`, roleID, claimID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// EnsureClaims seeds the claim catalog; claims already present are left as-is.
func (s *roleStore) EnsureClaims(ctx context.Context, claims []auth.Claim) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range claims {
		if _, err := ensureClaim(ctx, tx, c); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func ensureClaim(ctx context.Context, tx *sql.Tx, c auth.Claim) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `
		select id from claims where action = $1 and scope = $2 and resource = $3
	`, string(c.Action), string(c.Scope), c.Resource).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	id = ids.New()
	if _, err := tx.ExecContext(ctx, `
		insert into claims (id, action, scope, resource)
		values ($1, $2, $3, $4)
	`, id, string(c.Action), string(c.Scope), c.Resource); err != nil {
		return "", err
	}
	return id, nil
}

func (s *roleStore) getOne(ctx context.Context, query string, args ...any) (*auth.Role, error) {
	var r auth.Role
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	claims, err := s.loadClaims(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.Claims = claims
	return &r, nil
}

func (s *roleStore) loadClaims(ctx context.Context, roleID string) ([]auth.Claim, error) {
	rows, err := s.db.QueryContext(ctx, `
		select c.action, c.scope, c.resource
		from role_claims rc
		join claims c on c.id = rc.claim_id
		where rc.role_id = $1
		order by c.resource, c.action, c.scope
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []auth.Claim
	for rows.Next() {
		var action, scopeV, resource string
		if err := rows.Scan(&action, &scopeV, &resource); err != nil {
			return nil, err
		}
		claims = append(claims, auth.Claim{
			Action:   auth.Action(action),
			Scope:    auth.Scope(scopeV),
			Resource: resource,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return claims, nil
}
