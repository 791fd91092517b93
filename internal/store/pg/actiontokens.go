package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gatekeep.org/internal/auth"
)

type actionTokenStore struct {
	db *sql.DB
}

func (s *actionTokenStore) Create(ctx context.Context, t *auth.ActionToken) error {
	roleIDs := []byte("[]")
	if len(t.RoleIDs) > 0 {
		data, err := json.Marshal(t.RoleIDs)
		if err != nil {
			return fmt.Errorf("marshal role ids: %w", err)
		}
		roleIDs = data
	}
	_, err := s.db.ExecContext(ctx, `
		insert into action_tokens (token, types, email, user_id, role_ids, organisation_id, establishment_id, created_at, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.Token, int64(t.Types), t.Email, t.UserID, roleIDs, t.OrganisationID, t.EstablishmentID, t.CreatedAt, t.ExpiresAt)
	if err != nil {
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

func (s *actionTokenStore) GetByToken(ctx context.Context, token string) (*auth.ActionToken, error) {
	var (
		t       auth.ActionToken
		types   int64
		roleIDs []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select token, types, email, user_id, role_ids, organisation_id, establishment_id, created_at, expires_at
		from action_tokens
		where token = $1
	`, token).Scan(&t.Token, &types, &t.Email, &t.UserID, &roleIDs, &t.OrganisationID, &t.EstablishmentID, &t.CreatedAt, &t.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.Types = auth.ActionType(types)
	if len(roleIDs) > 0 {
		if err := json.Unmarshal(roleIDs, &t.RoleIDs); err != nil {
			return nil, fmt.Errorf("decode role ids: %w", err)
		}
	}
	return &t, nil
}

func (s *actionTokenStore) Delete(ctx context.Context, token string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from action_tokens where token = $1`, token)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *actionTokenStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from action_tokens where expires_at <= $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
