package httpapi

import (
	"context"
	"strings"
	"time"

	"gatekeep.org/internal/auth"
)

// fakeStore is the in-memory auth.Store backing the end-to-end API tests.
type fakeStore struct {
	users        map[string]*auth.User
	accounts     map[string]*auth.UserAccount
	accountRoles map[string][]string
	sessions     map[string]*auth.Session
	tokens       map[string]*auth.ActionToken
	roles        map[string]*auth.Role
	orgs         map[string]*auth.Organisation
	ests         map[string]*auth.Establishment
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        map[string]*auth.User{},
		accounts:     map[string]*auth.UserAccount{},
		accountRoles: map[string][]string{},
		sessions:     map[string]*auth.Session{},
		tokens:       map[string]*auth.ActionToken{},
		roles:        map[string]*auth.Role{},
		orgs:         map[string]*auth.Organisation{},
		ests:         map[string]*auth.Establishment{},
	}
}

func (f *fakeStore) Users() auth.UserStore                   { return (*fakeUsers)(f) }
func (f *fakeStore) Accounts() auth.AccountStore             { return (*fakeAccounts)(f) }
func (f *fakeStore) Sessions() auth.SessionStore             { return (*fakeSessions)(f) }
func (f *fakeStore) ActionTokens() auth.ActionTokenStore     { return (*fakeTokens)(f) }
func (f *fakeStore) Roles() auth.RoleStore                   { return (*fakeRoles)(f) }
func (f *fakeStore) Organisations() auth.OrganisationStore   { return (*fakeOrgs)(f) }
func (f *fakeStore) Establishments() auth.EstablishmentStore { return (*fakeEsts)(f) }

type fakeUsers fakeStore

func (f *fakeUsers) Create(_ context.Context, u *auth.User) error {
	for _, existing := range f.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return auth.ErrConflict
		}
	}
	f.users[u.ID] = u
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*auth.User, error) {
	return f.users[id], nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) Update(_ context.Context, id string, upd auth.UserUpdate) error {
	u, ok := f.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.PasswordDigest != nil {
		u.PasswordDigest = *upd.PasswordDigest
	}
	if upd.Enabled != nil {
		u.Enabled = *upd.Enabled
	}
	if upd.EmailValidatedAt != nil {
		u.EmailValidatedAt = upd.EmailValidatedAt
	}
	if upd.TermsAcceptedAt != nil {
		u.TermsAcceptedAt = upd.TermsAcceptedAt
	}
	if upd.PrivacyAcceptedAt != nil {
		u.PrivacyAcceptedAt = upd.PrivacyAcceptedAt
	}
	return nil
}

func (f *fakeUsers) GetScoped(ctx context.Context, id string) (*auth.User, error) {
	scope, ok := auth.ScopeFromContext(ctx)
	if ok && scope.Scope != auth.ScopeAny {
		if scope.MatchesNothing() || !f.inScope(scope, id) {
			return nil, nil
		}
	}
	return f.users[id], nil
}

func (f *fakeUsers) ListScoped(ctx context.Context) ([]*auth.User, error) {
	scope, hasScope := auth.ScopeFromContext(ctx)
	if hasScope && scope.MatchesNothing() {
		return nil, nil
	}
	var out []*auth.User
	for id, u := range f.users {
		if hasScope && scope.Scope != auth.ScopeAny && !f.inScope(scope, id) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUsers) inScope(scope auth.AuthScope, userID string) bool {
	switch scope.Scope {
	case auth.ScopeOwn:
		return *scope.UserID == userID
	case auth.ScopeOrganisation:
		for _, a := range f.accounts {
			if a.UserID == userID && a.OrganisationID != nil && *a.OrganisationID == *scope.OrganisationID {
				return true
			}
		}
	case auth.ScopeEstablishment:
		for _, a := range f.accounts {
			if a.UserID == userID && a.EstablishmentID != nil && *a.EstablishmentID == *scope.EstablishmentID {
				return true
			}
		}
	}
	return false
}

type fakeAccounts fakeStore

func (f *fakeAccounts) Create(_ context.Context, a *auth.UserAccount) error {
	f.accounts[a.ID] = a
	return nil
}

func (f *fakeAccounts) GetByID(_ context.Context, id string) (*auth.UserAccount, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	cp.User = f.users[a.UserID]
	cp.Roles = nil
	for _, roleID := range f.accountRoles[id] {
		if role, ok := f.roles[roleID]; ok {
			cp.Roles = append(cp.Roles, *role)
		}
	}
	return &cp, nil
}

func (f *fakeAccounts) ListByUser(_ context.Context, userID string) ([]*auth.UserAccount, error) {
	var out []*auth.UserAccount
	for _, a := range f.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAccounts) SetRoles(_ context.Context, accountID string, roleIDs []string) error {
	if _, ok := f.accounts[accountID]; !ok {
		return auth.ErrNotFound
	}
	f.accountRoles[accountID] = roleIDs
	return nil
}

func (f *fakeAccounts) SetEnabled(_ context.Context, id string, enabled bool) error {
	a, ok := f.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.Enabled = enabled
	return nil
}

func (f *fakeAccounts) DisableCascade(_ context.Context, accountID string) (bool, error) {
	a, ok := f.accounts[accountID]
	if !ok {
		return false, auth.ErrNotFound
	}
	a.Enabled = false
	for _, other := range f.accounts {
		if other.UserID == a.UserID && other.Enabled {
			return false, nil
		}
	}
	if u, ok := f.users[a.UserID]; ok {
		u.Enabled = false
	}
	return true, nil
}

func (f *fakeAccounts) Delete(_ context.Context, id string) error {
	delete(f.accounts, id)
	return nil
}

type fakeSessions fakeStore

func (f *fakeSessions) Replace(_ context.Context, s *auth.Session) (int64, error) {
	var deleted int64
	for token, existing := range f.sessions {
		if existing.UserAccountID == s.UserAccountID {
			delete(f.sessions, token)
			deleted++
		}
	}
	f.sessions[s.Token] = s
	return deleted, nil
}

func (f *fakeSessions) GetByToken(_ context.Context, token string) (*auth.Session, error) {
	return f.sessions[token], nil
}

func (f *fakeSessions) DeleteByToken(_ context.Context, token string) (int64, error) {
	if _, ok := f.sessions[token]; !ok {
		return 0, nil
	}
	delete(f.sessions, token)
	return 1, nil
}

func (f *fakeSessions) DeleteAllByAccount(_ context.Context, accountID string) (int64, error) {
	var n int64
	for token, s := range f.sessions {
		if s.UserAccountID == accountID {
			delete(f.sessions, token)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessions) DeleteAllByUser(_ context.Context, userID string) (int64, error) {
	var n int64
	for token, s := range f.sessions {
		if a, ok := f.accounts[s.UserAccountID]; ok && a.UserID == userID {
			delete(f.sessions, token)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessions) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for token, s := range f.sessions {
		if !s.ExpirationDate.After(before) {
			delete(f.sessions, token)
			n++
		}
	}
	return n, nil
}

type fakeTokens fakeStore

func (f *fakeTokens) Create(_ context.Context, t *auth.ActionToken) error {
	f.tokens[t.Token] = t
	return nil
}

func (f *fakeTokens) GetByToken(_ context.Context, token string) (*auth.ActionToken, error) {
	return f.tokens[token], nil
}

func (f *fakeTokens) Delete(_ context.Context, token string) (int64, error) {
	if _, ok := f.tokens[token]; !ok {
		return 0, nil
	}
	delete(f.tokens, token)
	return 1, nil
}

func (f *fakeTokens) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for token, t := range f.tokens {
		if !t.ExpiresAt.After(before) {
			delete(f.tokens, token)
			n++
		}
	}
	return n, nil
}

type fakeRoles fakeStore

func (f *fakeRoles) Create(_ context.Context, r *auth.Role) error {
	for _, existing := range f.roles {
		if existing.Name == r.Name {
			return auth.ErrConflict
		}
	}
	f.roles[r.ID] = r
	return nil
}

func (f *fakeRoles) GetByID(_ context.Context, id string) (*auth.Role, error) {
	return f.roles[id], nil
}

func (f *fakeRoles) GetByName(_ context.Context, name string) (*auth.Role, error) {
	for _, r := range f.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeRoles) List(_ context.Context) ([]*auth.Role, error) {
	var out []*auth.Role
	for _, r := range f.roles {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRoles) Update(_ context.Context, id string, upd auth.RoleUpdate) error {
	r, ok := f.roles[id]
	if !ok {
		return auth.ErrNotFound
	}
	if upd.Name != nil {
		r.Name = *upd.Name
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	return nil
}

func (f *fakeRoles) Delete(_ context.Context, id string) error {
	if _, ok := f.roles[id]; !ok {
		return auth.ErrNotFound
	}
	delete(f.roles, id)
	return nil
}

func (f *fakeRoles) SetClaims(_ context.Context, roleID string, claims []auth.Claim) error {
	r, ok := f.roles[roleID]
	if !ok {
		return auth.ErrNotFound
	}
	r.Claims = claims
	return nil
}

func (f *fakeRoles) EnsureClaims(_ context.Context, _ []auth.Claim) error {
	return nil
}

type fakeOrgs fakeStore

func (f *fakeOrgs) Create(_ context.Context, o *auth.Organisation) error {
	f.orgs[o.ID] = o
	return nil
}

func (f *fakeOrgs) GetByID(_ context.Context, id string) (*auth.Organisation, error) {
	return f.orgs[id], nil
}

func (f *fakeOrgs) List(_ context.Context) ([]*auth.Organisation, error) {
	var out []*auth.Organisation
	for _, o := range f.orgs {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeOrgs) SetEnabled(_ context.Context, id string, enabled bool) error {
	o, ok := f.orgs[id]
	if !ok {
		return auth.ErrNotFound
	}
	o.Enabled = enabled
	return nil
}

func (f *fakeOrgs) DisableCascade(_ context.Context, id string) (int64, error) {
	o, ok := f.orgs[id]
	if !ok {
		return 0, auth.ErrNotFound
	}
	o.Enabled = false
	var n int64
	for _, a := range f.accounts {
		if a.OrganisationID != nil && *a.OrganisationID == id && a.Enabled {
			a.Enabled = false
			n++
		}
	}
	return n, nil
}

type fakeEsts fakeStore

func (f *fakeEsts) Create(_ context.Context, e *auth.Establishment) error {
	f.ests[e.ID] = e
	return nil
}

func (f *fakeEsts) GetByID(_ context.Context, id string) (*auth.Establishment, error) {
	return f.ests[id], nil
}

func (f *fakeEsts) ListByOrganisation(_ context.Context, organisationID string) ([]*auth.Establishment, error) {
	var out []*auth.Establishment
	for _, e := range f.ests {
		if e.OrganisationID == organisationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEsts) SetEnabled(_ context.Context, id string, enabled bool) error {
	e, ok := f.ests[id]
	if !ok {
		return auth.ErrNotFound
	}
	e.Enabled = enabled
	return nil
}

func (f *fakeEsts) DisableCascade(_ context.Context, id string) (int64, error) {
	e, ok := f.ests[id]
	if !ok {
		return 0, auth.ErrNotFound
	}
	e.Enabled = false
	var n int64
	for _, a := range f.accounts {
		if a.EstablishmentID != nil && *a.EstablishmentID == id && a.Enabled {
			a.Enabled = false
			n++
		}
	}
	return n, nil
}
