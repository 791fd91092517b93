package auth

import "time"

// User is the underlying identity. It authenticates through one or more
// UserAccounts and is disabled automatically when its last enabled account
// is disabled.
type User struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	PasswordDigest    string     `json:"-"`
	Enabled           bool       `json:"enabled"`
	EmailValidatedAt  *time.Time `json:"email_validated_at,omitempty"`
	TermsAcceptedAt   *time.Time `json:"terms_accepted_at,omitempty"`
	PrivacyAcceptedAt *time.Time `json:"privacy_accepted_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Organisation is the top tenancy level.
type Organisation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Establishment is a site within an organisation.
type Establishment struct {
	ID             string    `json:"id"`
	OrganisationID string    `json:"organisation_id"`
	Name           string    `json:"name"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Role is a named set of claims. Its identity is its name, case-insensitive
// and stored lowercase.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Claims      []Claim   `json:"claims,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserAccount is the unit that authenticates and carries authorization: one
// identity scoped to an optional organisation/establishment with a set of
// roles. A user may hold one account per organisation.
type UserAccount struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	OrganisationID  *string   `json:"organisation_id,omitempty"`
	EstablishmentID *string   `json:"establishment_id,omitempty"`
	Roles           []Role    `json:"roles,omitempty"`
	Enabled         bool      `json:"enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// User is the loaded identity; set by stores that resolve the account
	// with its role-claim closure.
	User *User `json:"user,omitempty"`
}

// HeldClaims returns the union of the claims granted by every role on the
// account, keyed by canonical claim string.
func (a *UserAccount) HeldClaims() map[string]Claim {
	held := make(map[string]Claim)
	for _, role := range a.Roles {
		for _, c := range role.Claims {
			held[c.String()] = c
		}
	}
	return held
}

// HasClaim reports whether any role on the account grants the exact claim.
func (a *UserAccount) HasClaim(c Claim) bool {
	_, ok := a.HeldClaims()[c.String()]
	return ok
}

// Session is keyed by the bearer token string itself, 1:1 with the issued
// credential. At most one live session exists per account.
type Session struct {
	Token          string    `json:"-"`
	UserAccountID  string    `json:"user_account_id"`
	LoginDate      time.Time `json:"login_date"`
	ExpirationDate time.Time `json:"expiration_date"`
}

// ActiveAt reports whether the session is live at the given instant.
func (s *Session) ActiveAt(now time.Time) bool {
	return now.Before(s.ExpirationDate)
}

// ActionToken is a single-use credential gating a sensitive account-state
// transition. Successful validation is always followed by revocation in the
// same logical operation.
type ActionToken struct {
	Token           string     `json:"-"`
	Types           ActionType `json:"types"`
	Email           string     `json:"email"`
	UserID          *string    `json:"user_id,omitempty"`
	RoleIDs         []string   `json:"role_ids,omitempty"`
	OrganisationID  *string    `json:"organisation_id,omitempty"`
	EstablishmentID *string    `json:"establishment_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
}

// ExpiredAt reports whether the token is past its expiry at the given instant.
func (t *ActionToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
