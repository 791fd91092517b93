package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"gatekeep.org/internal/audit"
	"gatekeep.org/internal/auth"
	"gatekeep.org/internal/obs"
)

// ReadyProbe is the readiness check (database ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer. Route registration declares the claims each guarded
// endpoint requires; the gate enforces them per request.
type API struct {
	mux        *http.ServeMux
	gate       *auth.Gate
	lifecycle  *auth.Lifecycle
	rbac       *auth.RBAC
	readyProbe ReadyProbe
	version    string

	rateLimit float64
	rateBurst int
}

// Option configures the API.
type Option func(*API)

// WithRateLimit enables per-IP request limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *API) {
		a.rateLimit = perSecond
		a.rateBurst = burst
	}
}

// New builds the API and registers every route. Guarded routes panic at
// registration time on malformed claim declarations, not at request time.
func New(gate *auth.Gate, lifecycle *auth.Lifecycle, rbac *auth.RBAC, rp ReadyProbe, version string, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		gate:       gate,
		lifecycle:  lifecycle,
		rbac:       rbac,
		readyProbe: rp,
		version:    version,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)

	// Prometheus metrics
	a.mux.Handle("GET /metrics", obs.Handler())

	// public lifecycle: client resolution only
	a.public("POST /v1/auth/login", a.handleLogin)
	a.public("POST /v1/auth/signup", a.handleSignup)
	a.public("POST /v1/auth/accept-invite", a.handleAcceptInvite)
	a.public("POST /v1/auth/reset-password", a.handleSendResetPassword)
	a.public("POST /v1/auth/reset-password/confirm", a.handleResetPassword)
	a.public("POST /v1/auth/validate-email/send", a.handleSendValidateEmail)
	a.public("POST /v1/auth/validate-email", a.handleValidateEmail)
	a.public("POST /v1/auth/accept-terms", a.handleAcceptTerms)
	a.public("POST /v1/auth/accept-privacy", a.handleAcceptPrivacy)
	a.public("POST /v1/auth/change-email/confirm", a.handleChangeEmail)

	// authenticated, no claim requirement
	a.authed("POST /v1/auth/logout", a.handleLogout)
	a.authed("POST /v1/auth/logout-all", a.handleLogoutAll)
	a.authed("GET /v1/auth/me", a.handleMe)
	a.authed("POST /v1/auth/change-password", a.handleChangePassword)
	a.authed("POST /v1/auth/change-email", a.handleSendChangeEmail)

	// guarded: invitations and user directory
	a.guard("POST /v1/invites", a.handleSendInvite,
		"create:any:users", "create:organisation:users", "create:establishment:users")
	a.guard("GET /v1/users", a.handleListUsers,
		"read:any:users", "read:organisation:users", "read:establishment:users", "read:own:users")
	a.guard("GET /v1/users/{id}", a.handleGetUser,
		"read:any:users", "read:organisation:users", "read:establishment:users", "read:own:users")

	// guarded: accounts
	a.guard("PUT /v1/accounts/{id}/roles", a.handleAssignRoles,
		"manage:any:accounts", "manage:organisation:accounts")
	a.guard("POST /v1/accounts/{id}/disable", a.handleDisableAccount,
		"disable:any:accounts", "disable:organisation:accounts")
	a.guard("POST /v1/accounts/{id}/enable", a.handleEnableAccount,
		"enable:any:accounts", "enable:organisation:accounts")

	// guarded: role catalog
	a.guard("POST /v1/roles", a.handleCreateRole, "manage:any:roles")
	a.guard("GET /v1/roles", a.handleListRoles, "read:any:roles", "read:organisation:roles")
	a.guard("GET /v1/roles/{id}", a.handleGetRole, "read:any:roles", "read:organisation:roles")
	a.guard("PUT /v1/roles/{id}", a.handleUpdateRole, "manage:any:roles")
	a.guard("DELETE /v1/roles/{id}", a.handleDeleteRole, "manage:any:roles")
	a.guard("PUT /v1/roles/{id}/claims", a.handleSetRoleClaims, "manage:any:roles")

	// guarded: tenancy
	a.guard("POST /v1/organisations", a.handleCreateOrganisation, "manage:any:organisations")
	a.guard("GET /v1/organisations", a.handleListOrganisations,
		"read:any:organisations", "read:organisation:organisations")
	a.guard("POST /v1/organisations/{id}/disable", a.handleDisableOrganisation, "disable:any:organisations")
	a.guard("POST /v1/organisations/{id}/enable", a.handleEnableOrganisation, "enable:any:organisations")
	a.guard("POST /v1/organisations/{id}/establishments", a.handleCreateEstablishment,
		"manage:any:establishments", "manage:organisation:establishments")
	a.guard("GET /v1/organisations/{id}/establishments", a.handleListEstablishments,
		"read:any:establishments", "read:organisation:establishments")
	a.guard("POST /v1/establishments/{id}/disable", a.handleDisableEstablishment,
		"disable:any:establishments", "disable:organisation:establishments")
	a.guard("POST /v1/establishments/{id}/enable", a.handleEnableEstablishment,
		"enable:any:establishments", "enable:organisation:establishments")

	return a
}

// Handler returns the composed middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	if a.rateLimit > 0 {
		h = RateLimit(h, a.rateBurst, a.rateLimit)
	}
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// public registers a route that resolves the calling client but requires no
// credential; the resolved client rides the context for link building.
func (a *API) public(pattern string, handler http.HandlerFunc) {
	a.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		ctx, _, err := a.gate.ResolveClient(r.Context(), requestInfo(r))
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		handler(w, r.WithContext(ctx))
	})
}

// authed registers a route requiring a valid session but no specific claim.
func (a *API) authed(pattern string, handler http.HandlerFunc) {
	a.registerGuarded(pattern, handler, nil)
}

// guard registers a route behind the full gate. The claim strings are parsed
// at registration; an invalid declaration or one mixing action/resource pairs
// is a programming error and panics immediately.
func (a *API) guard(pattern string, handler http.HandlerFunc, claims ...string) {
	required := make([]auth.Claim, 0, len(claims))
	for _, c := range claims {
		required = append(required, auth.MustClaim(c))
	}
	if _, _, err := auth.ClaimTarget(required); err != nil {
		panic("httpapi: " + pattern + ": " + err.Error())
	}
	a.registerGuarded(pattern, handler, required)
}

func (a *API) registerGuarded(pattern string, handler http.HandlerFunc, required []auth.Claim) {
	a.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		ctx, account, err := a.gate.Authenticate(r.Context(), requestInfo(r), required)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		ctx = audit.WithAccountID(ctx, account.ID)
		handler(w, r.WithContext(ctx))
	})
}
