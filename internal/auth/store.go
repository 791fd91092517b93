package auth

import (
	"context"
	"time"
)

// Store aggregates the persistence operations required by the auth
// subsystem. Implementations must keep multi-row invariants (session
// replacement, cascading disables) atomic inside one transaction each.
type Store interface {
	Users() UserStore
	Accounts() AccountStore
	Sessions() SessionStore
	ActionTokens() ActionTokenStore
	Roles() RoleStore
	Organisations() OrganisationStore
	Establishments() EstablishmentStore
}

// UserUpdate mutates the non-nil fields only.
type UserUpdate struct {
	Email             *string
	PasswordDigest    *string
	Enabled           *bool
	EmailValidatedAt  *time.Time
	TermsAcceptedAt   *time.Time
	PrivacyAcceptedAt *time.Time
}

// UserStore manages identities. Lookups return (nil, nil) for missing rows;
// scoped reads consult the AuthScope published in the context and must
// return nothing when the scope carries no filter value.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, id string, upd UserUpdate) error
	// GetScoped and ListScoped constrain visibility by the published
	// AuthScope for resource "users".
	GetScoped(ctx context.Context, id string) (*User, error)
	ListScoped(ctx context.Context) ([]*User, error)
}

// AccountStore manages user accounts with their role-claim closure.
type AccountStore interface {
	Create(ctx context.Context, a *UserAccount) error
	GetByID(ctx context.Context, id string) (*UserAccount, error)
	ListByUser(ctx context.Context, userID string) ([]*UserAccount, error)
	SetRoles(ctx context.Context, accountID string, roleIDs []string) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
	// DisableCascade disables the account and, when it was the user's last
	// enabled account, the underlying user too, atomically. It reports
	// whether the user was disabled.
	DisableCascade(ctx context.Context, accountID string) (userDisabled bool, err error)
	Delete(ctx context.Context, id string) error
}

// SessionStore manages sessions. Replace enforces the single-live-session
// invariant with a delete-before-insert inside one transaction.
type SessionStore interface {
	Replace(ctx context.Context, s *Session) (deleted int64, err error)
	// GetByToken returns (nil, nil) when absent. It applies the AuthScope
	// published in the context, if any, as an additional filter.
	GetByToken(ctx context.Context, token string) (*Session, error)
	DeleteByToken(ctx context.Context, token string) (int64, error)
	DeleteAllByAccount(ctx context.Context, accountID string) (int64, error)
	DeleteAllByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// ActionTokenStore manages one-shot action tokens.
type ActionTokenStore interface {
	Create(ctx context.Context, t *ActionToken) error
	GetByToken(ctx context.Context, token string) (*ActionToken, error)
	Delete(ctx context.Context, token string) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// RoleUpdate mutates the non-nil fields only.
type RoleUpdate struct {
	Name        *string
	Description *string
}

// RoleStore manages roles and the claim catalog. Role names are stored
// lowercase; duplicates surface as ErrConflict.
type RoleStore interface {
	Create(ctx context.Context, r *Role) error
	GetByID(ctx context.Context, id string) (*Role, error)
	GetByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Update(ctx context.Context, id string, upd RoleUpdate) error
	Delete(ctx context.Context, id string) error
	SetClaims(ctx context.Context, roleID string, claims []Claim) error
	// EnsureClaims seeds the claim catalog; existing claims are left as-is.
	EnsureClaims(ctx context.Context, claims []Claim) error
}

// OrganisationStore manages organisations and their disable cascade.
type OrganisationStore interface {
	Create(ctx context.Context, o *Organisation) error
	GetByID(ctx context.Context, id string) (*Organisation, error)
	List(ctx context.Context) ([]*Organisation, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	// DisableCascade disables the organisation, its establishments, every
	// enabled account under it, and any user left without an enabled
	// account, atomically. It reports the number of accounts disabled.
	DisableCascade(ctx context.Context, id string) (accountsDisabled int64, err error)
}

// EstablishmentStore manages establishments and their disable cascade.
type EstablishmentStore interface {
	Create(ctx context.Context, e *Establishment) error
	GetByID(ctx context.Context, id string) (*Establishment, error)
	ListByOrganisation(ctx context.Context, organisationID string) ([]*Establishment, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	DisableCascade(ctx context.Context, id string) (accountsDisabled int64, err error)
}
