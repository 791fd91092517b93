package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gatekeep.org/internal/obs"
)

// SessionManager creates, looks up and invalidates sessions, enforcing the
// single-live-session-per-account invariant.
type SessionManager struct {
	store SessionStore
	ttl   time.Duration
	now   func() time.Time
}

// NewSessionManager builds a SessionManager with the configured session TTL.
func NewSessionManager(store SessionStore, ttl time.Duration) (*SessionManager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: session store is required", ErrInvalidInput)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: session ttl must be greater than zero", ErrInvalidInput)
	}
	return &SessionManager{store: store, ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the time source, for tests.
func (m *SessionManager) WithClock(fn func() time.Time) *SessionManager {
	if fn != nil {
		m.now = fn
	}
	return m
}

// Create deletes every existing session for the account, then inserts a new
// one keyed by the credential token. The replacement is atomic in the store.
func (m *SessionManager) Create(ctx context.Context, token, accountID string) (*Session, error) {
	token = strings.TrimSpace(token)
	accountID = strings.TrimSpace(accountID)
	if token == "" || accountID == "" {
		return nil, fmt.Errorf("%w: token and account id are required", ErrInvalidInput)
	}
	now := m.now().UTC()
	s := &Session{
		Token:          token,
		UserAccountID:  accountID,
		LoginDate:      now,
		ExpirationDate: now.Add(m.ttl),
	}
	deleted, err := m.store.Replace(ctx, s)
	if err != nil {
		return nil, err
	}
	if deleted > 0 {
		obs.SessionsReplaced(deleted)
		obs.LogRequest(map[string]any{
			"msg":        "sessions replaced",
			"account_id": accountID,
			"deleted":    deleted,
		})
	}
	return s, nil
}

// FindByToken returns the session for the token, or nil when absent. The
// lookup honors the caller's published AuthScope, so a narrowed caller never
// surfaces sessions outside its scope even by exact token match.
func (m *SessionManager) FindByToken(ctx context.Context, token string) (*Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	return m.store.GetByToken(ctx, token)
}

// GetByToken is the get-or-fail wrapper around FindByToken.
func (m *SessionManager) GetByToken(ctx context.Context, token string) (*Session, error) {
	s, err := m.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// IsActive reports whether the session is live now.
func (m *SessionManager) IsActive(s *Session) bool {
	return s != nil && s.ActiveAt(m.now())
}

// DeleteExpired bulk-deletes sessions past their expiration. Invoked at
// process startup and opportunistically thereafter.
func (m *SessionManager) DeleteExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now().UTC())
}

// DeleteByToken removes one session (logout).
func (m *SessionManager) DeleteByToken(ctx context.Context, token string) error {
	_, err := m.store.DeleteByToken(ctx, token)
	return err
}

// DeleteAllByAccount removes every session for one account.
func (m *SessionManager) DeleteAllByAccount(ctx context.Context, accountID string) (int64, error) {
	return m.store.DeleteAllByAccount(ctx, accountID)
}

// DeleteAllByUser fans out across every account owned by the user; used for
// cross-account logout.
func (m *SessionManager) DeleteAllByUser(ctx context.Context, userID string) (int64, error) {
	return m.store.DeleteAllByUser(ctx, userID)
}
