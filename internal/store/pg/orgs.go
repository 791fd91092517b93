package pg

import (
	"context"
	"database/sql"
	"errors"

	"gatekeep.org/internal/auth"
)

type organisationStore struct {
	db *sql.DB
}

func (s *organisationStore) Create(ctx context.Context, o *auth.Organisation) error {
	row := s.db.QueryRowContext(ctx, `
		insert into organisations (id, name, enabled)
		values ($1, $2, $3)
		returning created_at, updated_at
	`, o.ID, o.Name, o.Enabled)
	if err := row.Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *organisationStore) GetByID(ctx context.Context, id string) (*auth.Organisation, error) {
	var o auth.Organisation
	err := s.db.QueryRowContext(ctx, `
		select id, name, enabled, created_at, updated_at
		from organisations where id = $1
	`, id).Scan(&o.ID, &o.Name, &o.Enabled, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *organisationStore) List(ctx context.Context) ([]*auth.Organisation, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, enabled, created_at, updated_at
		from organisations
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []*auth.Organisation
	for rows.Next() {
		var o auth.Organisation
		if err := rows.Scan(&o.ID, &o.Name, &o.Enabled, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		orgs = append(orgs, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orgs, nil
}

func (s *organisationStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return setEnabled(ctx, s.db, "organisations", id, enabled)
}

// DisableCascade disables the organisation, its establishments, every enabled
// account under it, and any user left without an enabled account, in one
// transaction. It reports the number of accounts disabled.
func (s *organisationStore) DisableCascade(ctx context.Context, id string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update organisations set enabled = false, updated_at = now() where id = $1
	`, id)
	if err != nil {
		return 0, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if aff == 0 {
		return 0, auth.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		update establishments set enabled = false, updated_at = now()
		where organisation_id = $1 and enabled = true
	`, id); err != nil {
		return 0, err
	}

	res, err = tx.ExecContext(ctx, `
		update user_accounts set enabled = false, updated_at = now()
		where organisation_id = $1 and enabled = true
	`, id)
	if err != nil {
		return 0, err
	}
	accountsDisabled, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := disableOrphanedUsers(ctx, tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return accountsDisabled, nil
}

type establishmentStore struct {
	db *sql.DB
}

func (s *establishmentStore) Create(ctx context.Context, e *auth.Establishment) error {
	row := s.db.QueryRowContext(ctx, `
		insert into establishments (id, organisation_id, name, enabled)
		values ($1, $2, $3, $4)
		returning created_at, updated_at
	`, e.ID, e.OrganisationID, e.Name, e.Enabled)
	if err := row.Scan(&e.CreatedAt, &e.UpdatedAt); err != nil {
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

func (s *establishmentStore) GetByID(ctx context.Context, id string) (*auth.Establishment, error) {
	var e auth.Establishment
	err := s.db.QueryRowContext(ctx, `
		select id, organisation_id, name, enabled, created_at, updated_at
		from establishments where id = $1
	`, id).Scan(&e.ID, &e.OrganisationID, &e.Name, &e.Enabled, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *establishmentStore) ListByOrganisation(ctx context.Context, organisationID string) ([]*auth.Establishment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, organisation_id, name, enabled, created_at, updated_at
		from establishments
		where organisation_id = $1
		order by name
	`, organisationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ests []*auth.Establishment
	for rows.Next() {
		var e auth.Establishment
		if err := rows.Scan(&e.ID, &e.OrganisationID, &e.Name, &e.Enabled, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		ests = append(ests, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ests, nil
}

func (s *establishmentStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return setEnabled(ctx, s.db, "establishments", id, enabled)
}

// DisableCascade disables the establishment and every enabled account
// attached to it, cascading to users left without an enabled account.
func (s *establishmentStore) DisableCascade(ctx context.Context, id string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update establishments set enabled = false, updated_at = now() where id = $1
	`, id)
	if err != nil {
		return 0, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if aff == 0 {
		return 0, auth.ErrNotFound
	}

	res, err = tx.ExecContext(ctx, `
		update user_accounts set enabled = false, updated_at = now()
		where establishment_id = $1 and enabled = true
	`, id)
	if err != nil {
		return 0, err
	}
	accountsDisabled, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := disableOrphanedUsers(ctx, tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return accountsDisabled, nil
}

func setEnabled(ctx context.Context, db *sql.DB, table, id string, enabled bool) error {
	res, err := db.ExecContext(ctx, `update `+table+` set enabled = $2, updated_at = now() where id = $1`, id, enabled)
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

// disableOrphanedUsers disables every enabled user left with no enabled
// account; run inside the cascade transactions.
func disableOrphanedUsers(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		update users u set enabled = false, updated_at = now()
		where u.enabled = true
		  and exists (select 1 from user_accounts a where a.user_id = u.id)
		  and not exists (select 1 from user_accounts a where a.user_id = u.id and a.enabled = true)
	`)
	return err
}
