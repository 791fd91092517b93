package auth

import "context"

type scopeContextKey struct{}
type accountContextKey struct{}
type clientContextKey struct{}
type tokenContextKey struct{}

// ContextWithScope publishes the computed request scope. It is set once by
// the gate after claim-gating succeeds and read by every downstream scoped
// data access for the remainder of the request.
func ContextWithScope(ctx context.Context, scope AuthScope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, &scope)
}

// ScopeFromContext extracts the published request scope. Readers must treat
// "not set" as unscoped only where that is explicitly safe; a claim-gated
// read must never default to "no filter".
func ScopeFromContext(ctx context.Context) (AuthScope, bool) {
	if ctx == nil {
		return AuthScope{}, false
	}
	v, ok := ctx.Value(scopeContextKey{}).(*AuthScope)
	if !ok || v == nil {
		return AuthScope{}, false
	}
	return *v, true
}

// ContextWithAccount attaches the authenticated account to the context.
func ContextWithAccount(ctx context.Context, account *UserAccount) context.Context {
	if account == nil {
		return ctx
	}
	return context.WithValue(ctx, accountContextKey{}, account)
}

// AccountFromContext extracts the authenticated account from the context.
func AccountFromContext(ctx context.Context) (*UserAccount, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(accountContextKey{}).(*UserAccount)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// ContextWithClient attaches the resolved tenant client to the context.
func ContextWithClient(ctx context.Context, client *Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, clientContextKey{}, client)
}

// ClientFromContext extracts the resolved tenant client from the context.
func ClientFromContext(ctx context.Context) (*Client, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(clientContextKey{}).(*Client)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
