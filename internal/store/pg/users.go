package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gatekeep.org/internal/auth"
)

type userStore struct {
	db *sql.DB
}

const userColumns = `id, email, password_digest, enabled, email_validated_at, terms_accepted_at, privacy_accepted_at, created_at, updated_at`

const userColumnsPrefixed = `u.id, u.email, u.password_digest, u.enabled, u.email_validated_at, u.terms_accepted_at, u.privacy_accepted_at, u.created_at, u.updated_at`

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, password_digest, enabled, email_validated_at, terms_accepted_at, privacy_accepted_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning created_at, updated_at
	`, u.ID, u.Email, u.PasswordDigest, u.Enabled, u.EmailValidatedAt, u.TermsAcceptedAt, u.PrivacyAcceptedAt)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *userStore) GetByID(ctx context.Context, id string) (*auth.User, error) {
	return s.getOne(ctx, `select `+userColumns+` from users where id = $1`, id)
}

func (s *userStore) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.getOne(ctx, `select `+userColumns+` from users where lower(email) = lower($1)`, email)
}

func (s *userStore) Update(ctx context.Context, id string, upd auth.UserUpdate) error {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Email != nil {
		sets = append(sets, fmt.Sprintf("email = $%d", idx))
		args = append(args, strings.ToLower(*upd.Email))
		idx++
	}
	if upd.PasswordDigest != nil {
		sets = append(sets, fmt.Sprintf("password_digest = $%d", idx))
		args = append(args, *upd.PasswordDigest)
		idx++
	}
	if upd.Enabled != nil {
		sets = append(sets, fmt.Sprintf("enabled = $%d", idx))
		args = append(args, *upd.Enabled)
		idx++
	}
	if upd.EmailValidatedAt != nil {
		sets = append(sets, fmt.Sprintf("email_validated_at = $%d", idx))
		args = append(args, *upd.EmailValidatedAt)
		idx++
	}
	if upd.TermsAcceptedAt != nil {
		sets = append(sets, fmt.Sprintf("terms_accepted_at = $%d", idx))
		args = append(args, *upd.TermsAcceptedAt)
		idx++
	}
	if upd.PrivacyAcceptedAt != nil {
		sets = append(sets, fmt.Sprintf("privacy_accepted_at = $%d", idx))
		args = append(args, *upd.PrivacyAcceptedAt)
		idx++
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = now()")
	query := fmt.Sprintf(`update users set %s where id = $%d`, strings.Join(sets, ", "), idx)
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

// GetScoped applies the AuthScope published in the context as a visibility
// filter: ANY sees everyone, ORGANISATION/ESTABLISHMENT see users holding an
// account under that tenant, OWN sees only the caller's own user.
func (s *userStore) GetScoped(ctx context.Context, id string) (*auth.User, error) {
	scope, ok := auth.ScopeFromContext(ctx)
	if !ok || scope.Scope == auth.ScopeAny {
		return s.GetByID(ctx, id)
	}
	if scope.MatchesNothing() {
		return nil, nil
	}
	switch scope.Scope {
	case auth.ScopeOwn:
		if *scope.UserID != id {
			return nil, nil
		}
		return s.GetByID(ctx, id)
	case auth.ScopeOrganisation:
		return s.getOne(ctx, `
			select distinct `+userColumnsPrefixed+`
			from users u
			join user_accounts a on a.user_id = u.id
			where u.id = $1 and a.organisation_id = $2
		`, id, *scope.OrganisationID)
	case auth.ScopeEstablishment:
		return s.getOne(ctx, `
			select distinct `+userColumnsPrefixed+`
			from users u
			join user_accounts a on a.user_id = u.id
			where u.id = $1 and a.establishment_id = $2
		`, id, *scope.EstablishmentID)
	}
	return nil, nil
}

func (s *userStore) ListScoped(ctx context.Context) ([]*auth.User, error) {
	scope, ok := auth.ScopeFromContext(ctx)
	if !ok || scope.Scope == auth.ScopeAny {
		return s.list(ctx, `select `+userColumns+` from users order by email`)
	}
	if scope.MatchesNothing() {
		return nil, nil
	}
	switch scope.Scope {
	case auth.ScopeOwn:
		u, err := s.GetByID(ctx, *scope.UserID)
		if err != nil || u == nil {
			return nil, err
		}
		return []*auth.User{u}, nil
	case auth.ScopeOrganisation:
		return s.list(ctx, `
			select distinct `+userColumnsPrefixed+`
			from users u
			join user_accounts a on a.user_id = u.id
			where a.organisation_id = $1
			order by u.email
		`, *scope.OrganisationID)
	case auth.ScopeEstablishment:
		return s.list(ctx, `
			select distinct `+userColumnsPrefixed+`
			from users u
			join user_accounts a on a.user_id = u.id
			where a.establishment_id = $1
			order by u.email
		`, *scope.EstablishmentID)
	}
	return nil, nil
}

func (s *userStore) getOne(ctx context.Context, query string, args ...any) (*auth.User, error) {
	var u auth.User
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Email, &u.PasswordDigest, &u.Enabled,
		&u.EmailValidatedAt, &u.TermsAcceptedAt, &u.PrivacyAcceptedAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *userStore) list(ctx context.Context, query string, args ...any) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		var u auth.User
		if err := rows.Scan(
			&u.ID, &u.Email, &u.PasswordDigest, &u.Enabled,
			&u.EmailValidatedAt, &u.TermsAcceptedAt, &u.PrivacyAcceptedAt,
			&u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}
