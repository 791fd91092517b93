package pg

import (
	"context"
	"database/sql"
	"errors"

	"gatekeep.org/internal/auth"
)

type accountStore struct {
	db *sql.DB
}

func (s *accountStore) Create(ctx context.Context, a *auth.UserAccount) error {
	row := s.db.QueryRowContext(ctx, `
		insert into user_accounts (id, user_id, organisation_id, establishment_id, enabled)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, a.ID, a.UserID, a.OrganisationID, a.EstablishmentID, a.Enabled)
	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

// GetByID loads the account with its user and full role-claim closure, so
// authorization decisions need no further round trips.
func (s *accountStore) GetByID(ctx context.Context, id string) (*auth.UserAccount, error) {
	var a auth.UserAccount
	var u auth.User
	err := s.db.QueryRowContext(ctx, `
		select a.id, a.user_id, a.organisation_id, a.establishment_id, a.enabled, a.created_at, a.updated_at,
		       u.id, u.email, u.password_digest, u.enabled, u.email_validated_at, u.terms_accepted_at, u.privacy_accepted_at, u.created_at, u.updated_at
		from user_accounts a
		join users u on u.id = a.user_id
		where a.id = $1
	`, id).Scan(
		&a.ID, &a.UserID, &a.OrganisationID, &a.EstablishmentID, &a.Enabled, &a.CreatedAt, &a.UpdatedAt,
		&u.ID, &u.Email, &u.PasswordDigest, &u.Enabled, &u.EmailValidatedAt, &u.TermsAcceptedAt, &u.PrivacyAcceptedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.User = &u
	roles, err := s.loadRoles(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	a.Roles = roles
	return &a, nil
}

func (s *accountStore) ListByUser(ctx context.Context, userID string) ([]*auth.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, organisation_id, establishment_id, enabled, created_at, updated_at
		from user_accounts
		where user_id = $1
		order by created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*auth.UserAccount
	for rows.Next() {
		var a auth.UserAccount
		if err := rows.Scan(&a.ID, &a.UserID, &a.OrganisationID, &a.EstablishmentID, &a.Enabled, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

// SetRoles replaces the account's role set atomically.
func (s *accountStore) SetRoles(ctx context.Context, accountID string, roleIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from user_accounts where id = $1`, accountID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.ErrNotFound
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from account_roles where account_id = $1`, accountID); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into account_roles (account_id, role_id)
			values ($1, $2)
		`, accountID, roleID); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return auth.ErrNotFound
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *accountStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `
		update user_accounts set enabled = $2, updated_at = now() where id = $1
	`, id, enabled)
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

// DisableCascade disables the account and, when no enabled account remains
// for the user, the user too, in one transaction. Enabling never cascades.
func (s *accountStore) DisableCascade(ctx context.Context, accountID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var userID string
	err = tx.QueryRowContext(ctx, `
		update user_accounts set enabled = false, updated_at = now()
		where id = $1
		returning user_id
	`, accountID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, auth.ErrNotFound
	}
	if err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
		update users set enabled = false, updated_at = now()
		where id = $1
		  and not exists (
			select 1 from user_accounts
			where user_id = $1 and enabled = true
		  )
	`, userID)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return aff > 0, nil
}

func (s *accountStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from user_accounts where id = $1`, id)
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

func (s *accountStore) loadRoles(ctx context.Context, accountID string) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, coalesce(r.description, ''), r.created_at, r.updated_at,
		       c.action, c.scope, c.resource
		from account_roles ar
		join roles r on r.id = ar.role_id
		left join role_claims rc on rc.role_id = r.id
		left join claims c on c.id = rc.claim_id
		where ar.account_id = $1
		order by r.name
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		roles []auth.Role
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
			roles = append(roles, r)
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
