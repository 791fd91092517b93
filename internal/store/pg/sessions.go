package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gatekeep.org/internal/auth"
)

type sessionStore struct {
	db *sql.DB
}

// Replace deletes every session for the account and inserts the new one in a
// single transaction, keeping at most one live session per account.
func (s *sessionStore) Replace(ctx context.Context, sess *auth.Session) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		delete from sessions where user_account_id = $1
	`, sess.UserAccountID)
	if err != nil {
		return 0, err
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		insert into sessions (token, user_account_id, login_date, expiration_date)
		values ($1, $2, $3, $4)
	`, sess.Token, sess.UserAccountID, sess.LoginDate, sess.ExpirationDate); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return 0, auth.ErrConflict
			case pgErrForeignKeyViolation:
				return 0, auth.ErrNotFound
			}
		}
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return deleted, nil
}

// GetByToken applies the published AuthScope, when one exists for the
// sessions resource, as an additional visibility filter on top of the exact
// token match.
func (s *sessionStore) GetByToken(ctx context.Context, token string) (*auth.Session, error) {
	query := `
		select s.token, s.user_account_id, s.login_date, s.expiration_date
		from sessions s
		where s.token = $1
	`
	args := []any{token}

	if scope, ok := auth.ScopeFromContext(ctx); ok && scope.Resource == "sessions" && scope.Scope != auth.ScopeAny {
		if scope.MatchesNothing() {
			return nil, nil
		}
		switch scope.Scope {
		case auth.ScopeOrganisation:
			query = `
				select s.token, s.user_account_id, s.login_date, s.expiration_date
				from sessions s
				join user_accounts a on a.id = s.user_account_id
				where s.token = $1 and a.organisation_id = $2
			`
			args = append(args, *scope.OrganisationID)
		case auth.ScopeEstablishment:
			query = `
				select s.token, s.user_account_id, s.login_date, s.expiration_date
				from sessions s
				join user_accounts a on a.id = s.user_account_id
				where s.token = $1 and a.establishment_id = $2
			`
			args = append(args, *scope.EstablishmentID)
		case auth.ScopeOwn:
			query = `
				select s.token, s.user_account_id, s.login_date, s.expiration_date
				from sessions s
				join user_accounts a on a.id = s.user_account_id
				where s.token = $1 and a.user_id = $2
			`
			args = append(args, *scope.UserID)
		}
	}

	var sess auth.Session
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&sess.Token, &sess.UserAccountID, &sess.LoginDate, &sess.ExpirationDate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *sessionStore) DeleteByToken(ctx context.Context, token string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from sessions where token = $1`, token)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sessionStore) DeleteAllByAccount(ctx context.Context, accountID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from sessions where user_account_id = $1`, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sessionStore) DeleteAllByUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from sessions
		where user_account_id in (
			select id from user_accounts where user_id = $1
		)
	`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sessionStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from sessions where expiration_date <= $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
