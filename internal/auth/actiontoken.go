package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"gatekeep.org/internal/obs"
)

// TokenPolicy holds the per-action-type default validity and route suffix,
// overridable per client.
type TokenPolicy struct {
	Validity map[ActionType]time.Duration
	Routes   map[ActionType]string
}

// ValidityFor computes the default expiry for a token carrying the given
// bits: the maximum configured validity across all action types present, so
// a token bundling several actions stays valid long enough for the most
// generous of them. Client overrides take precedence per bit.
func (p TokenPolicy) ValidityFor(client *Client, types ActionType) time.Duration {
	var max time.Duration
	for _, bit := range types.Types() {
		d := p.Validity[bit]
		if client != nil {
			if override, ok := client.Validity[bit]; ok && override > 0 {
				d = override
			}
		}
		if d > max {
			max = d
		}
	}
	return max
}

// RouteFor returns the link route for one action type, client override first.
func (p TokenPolicy) RouteFor(client *Client, t ActionType) string {
	return client.Route(t, p.Routes[t])
}

// CreateTokenRequest describes a token to issue. Either Email or UserID is
// required; an email-only token is usable by any matching signup later.
type CreateTokenRequest struct {
	Types           ActionType
	Email           string
	UserID          *string
	RoleIDs         []string
	OrganisationID  *string
	EstablishmentID *string
	// ExpiresIn overrides the policy-derived validity when positive.
	ExpiresIn time.Duration
	// Client carries the per-tenant validity overrides, when resolved.
	Client *Client
}

// ValidateTokenRequest carries the fields checked against a stored token.
type ValidateTokenRequest struct {
	Token string
	Email string
}

// ActionTokenService issues, validates and revokes the one-shot tokens that
// gate sensitive account-state transitions. Token state machine:
// Issued -> {Consumed | Expired | Revoked}, terminal states absorbing.
type ActionTokenService struct {
	store  ActionTokenStore
	policy TokenPolicy
	now    func() time.Time
}

// NewActionTokenService builds the service with the given validity policy.
func NewActionTokenService(store ActionTokenStore, policy TokenPolicy) (*ActionTokenService, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: action token store is required", ErrInvalidInput)
	}
	return &ActionTokenService{store: store, policy: policy, now: time.Now}, nil
}

// WithClock overrides the time source, for tests.
func (s *ActionTokenService) WithClock(fn func() time.Time) *ActionTokenService {
	if fn != nil {
		s.now = fn
	}
	return s
}

// Policy exposes the validity/route policy for link building.
func (s *ActionTokenService) Policy() TokenPolicy {
	return s.policy
}

// Create issues an opaque unguessable token. Issuing does not invalidate a
// still-outstanding earlier token of the same type for the same target.
func (s *ActionTokenService) Create(ctx context.Context, req CreateTokenRequest) (*ActionToken, error) {
	if req.Types == 0 {
		return nil, fmt.Errorf("%w: at least one action type is required", ErrInvalidInput)
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" && req.UserID == nil {
		return nil, fmt.Errorf("%w: email or user is required", ErrInvalidInput)
	}
	expiresIn := req.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = s.policy.ValidityFor(req.Client, req.Types)
	}
	if expiresIn <= 0 {
		return nil, fmt.Errorf("%w: no validity configured for %s", ErrInvalidInput, req.Types)
	}
	opaque, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	token := &ActionToken{
		Token:           opaque,
		Types:           req.Types,
		Email:           email,
		UserID:          req.UserID,
		RoleIDs:         req.RoleIDs,
		OrganisationID:  req.OrganisationID,
		EstablishmentID: req.EstablishmentID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(expiresIn),
	}
	if err := s.store.Create(ctx, token); err != nil {
		return nil, err
	}
	obs.ActionTokenIssued(req.Types.String())
	return token, nil
}

// Validate checks a presented token against the required type mask. It does
// not revoke: callers revoke explicitly after completing the guarded
// mutation, so a failed downstream mutation leaves the token usable.
func (s *ActionTokenService) Validate(ctx context.Context, req ValidateTokenRequest, required ActionType) (*ActionToken, error) {
	token, err := s.store.GetByToken(ctx, strings.TrimSpace(req.Token))
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrTokenNotFound
	}
	if !strings.EqualFold(strings.TrimSpace(req.Email), token.Email) {
		return nil, ErrTokenMismatch
	}
	if token.ExpiredAt(s.now()) {
		return nil, ErrTokenExpired
	}
	if !token.Types.Has(required) {
		return nil, ErrActionTypeMismatch
	}
	return token, nil
}

// Revoke deletes the token. Revoking an already-revoked token reports
// ErrTokenNotFound; call sites that treat revocation as idempotent catch it.
func (s *ActionTokenService) Revoke(ctx context.Context, token string) error {
	deleted, err := s.store.Delete(ctx, strings.TrimSpace(token))
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// Consume is Validate followed by Revoke in one logical operation, recording
// the consumption metric on success.
func (s *ActionTokenService) Consume(ctx context.Context, req ValidateTokenRequest, required ActionType) (*ActionToken, error) {
	token, err := s.Validate(ctx, req, required)
	if err != nil {
		return nil, err
	}
	if err := s.Revoke(ctx, token.Token); err != nil {
		return nil, err
	}
	obs.ActionTokenConsumed(token.Types.String())
	return token, nil
}

// DeleteExpired sweeps tokens past their expiry.
func (s *ActionTokenService) DeleteExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpired(ctx, s.now().UTC())
}

func newOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
