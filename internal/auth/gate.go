package auth

import (
	"context"
	"fmt"

	"gatekeep.org/internal/obs"
)

// RequestInfo carries the transport-level identification material extracted
// by the HTTP layer: an optional explicit client id, the Origin/Referer
// headers, and the bearer credential (header or cookie).
type RequestInfo struct {
	ClientID string
	Origin   string
	Referer  string
	Bearer   string
}

// Gate is the per-request authentication and authorization pipeline. It
// short-circuits on the first failure: client resolution, credential
// extraction, credential verification, session validation, account-enabled
// check, claim gate, scope computation.
type Gate struct {
	clients     *ClientRegistry
	credentials *CredentialService
	sessions    *SessionManager
	accounts    AccountStore
}

// NewGate composes the pipeline from its collaborators.
func NewGate(clients *ClientRegistry, credentials *CredentialService, sessions *SessionManager, accounts AccountStore) (*Gate, error) {
	if clients == nil || credentials == nil || sessions == nil || accounts == nil {
		return nil, fmt.Errorf("%w: gate requires clients, credentials, sessions and accounts", ErrInvalidInput)
	}
	return &Gate{clients: clients, credentials: credentials, sessions: sessions, accounts: accounts}, nil
}

// ResolveClient is the lighter gate: tenant identification only, no session
// or claim requirement. Used by public lifecycle endpoints (accept-invite,
// sign-up) that still need the calling client for link building.
func (g *Gate) ResolveClient(ctx context.Context, info RequestInfo) (context.Context, *Client, error) {
	client, err := g.clients.Resolve(info.ClientID, info.Origin, info.Referer)
	if err != nil {
		return ctx, nil, err
	}
	return ContextWithClient(ctx, client), client, nil
}

// Authenticate runs the full pipeline. On success the returned context
// carries the client, the account, the raw token, and, when the endpoint
// declared required claims, the computed AuthScope.
func (g *Gate) Authenticate(ctx context.Context, info RequestInfo, required []Claim) (context.Context, *UserAccount, error) {
	ctx, _, err := g.ResolveClient(ctx, info)
	if err != nil {
		obs.AuthDecision("unauthenticated")
		return ctx, nil, err
	}

	if info.Bearer == "" {
		obs.AuthDecision("unauthenticated")
		return ctx, nil, ErrNoCredential
	}
	if _, err := g.credentials.Verify(info.Bearer); err != nil {
		obs.AuthDecision("unauthenticated")
		return ctx, nil, ErrInvalidCredential
	}

	session, err := g.sessions.FindByToken(ctx, info.Bearer)
	if err != nil {
		return ctx, nil, err
	}
	if session == nil {
		obs.AuthDecision("unauthenticated")
		return ctx, nil, ErrSessionNotFound
	}
	if !g.sessions.IsActive(session) {
		obs.AuthDecision("unauthenticated")
		return ctx, nil, ErrSessionExpired
	}

	account, err := g.accounts.GetByID(ctx, session.UserAccountID)
	if err != nil {
		return ctx, nil, err
	}
	if account == nil {
		obs.AuthDecision("unauthenticated")
		return ctx, nil, ErrSessionNotFound
	}
	if !account.Enabled || (account.User != nil && !account.User.Enabled) {
		obs.AuthDecision("unauthenticated")
		return ctx, nil, ErrAccountDisabled
	}

	ctx = ContextWithAccount(ctx, account)
	ctx = ContextWithToken(ctx, info.Bearer)

	if len(required) == 0 {
		obs.AuthDecision("allowed")
		return ctx, account, nil
	}

	held := account.HeldClaims()
	if _, admin := held[AdministratorClaim.String()]; !admin {
		if !holdsAny(held, required) {
			obs.AuthDecision("denied")
			return ctx, nil, ErrInsufficientClaims
		}
	}

	action, resource, err := ClaimTarget(required)
	if err != nil {
		return ctx, nil, err
	}
	ctx, _, err = g.computeScope(ctx, account, action, resource, held)
	if err != nil {
		return ctx, nil, err
	}
	obs.AuthDecision("allowed")
	return ctx, account, nil
}

// computeScope resolves and publishes the AuthScope. Administrator-sentinel
// holders that match none of the endpoint's claims directly get ANY.
func (g *Gate) computeScope(ctx context.Context, account *UserAccount, action Action, resource string, held map[string]Claim) (context.Context, AuthScope, error) {
	if _, admin := held[AdministratorClaim.String()]; admin {
		if _, err := MostPermissiveScope(held, action, resource); err != nil {
			scope := BuildScope(account, action, resource, ScopeAny)
			return ContextWithScope(ctx, scope), scope, nil
		}
	}
	return CalculateScope(ctx, account, action, resource)
}

// ClaimTarget validates that the declared claims share one action/resource
// pair, which route registration guarantees, and returns that pair.
func ClaimTarget(claims []Claim) (Action, string, error) {
	if len(claims) == 0 {
		return "", "", fmt.Errorf("%w: no claims declared", ErrInvalidInput)
	}
	action, resource := claims[0].Action, claims[0].Resource
	for _, c := range claims[1:] {
		if c.Action != action || c.Resource != resource {
			return "", "", fmt.Errorf("%w: declared claims must share one action/resource pair", ErrInvalidInput)
		}
	}
	return action, resource, nil
}

func holdsAny(held map[string]Claim, required []Claim) bool {
	for _, c := range required {
		if _, ok := held[c.String()]; ok {
			return true
		}
	}
	return false
}
