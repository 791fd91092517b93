package auth

import (
	"context"
	"strings"
	"time"
)

// memStore is the in-memory Store used across the package tests.
type memStore struct {
	users        map[string]*User
	accounts     map[string]*UserAccount
	accountRoles map[string][]string
	sessions     map[string]*Session
	tokens       map[string]*ActionToken
	roles        map[string]*Role
	orgs         map[string]*Organisation
	ests         map[string]*Establishment
	seeded       []Claim
}

func newMemStore() *memStore {
	return &memStore{
		users:        map[string]*User{},
		accounts:     map[string]*UserAccount{},
		accountRoles: map[string][]string{},
		sessions:     map[string]*Session{},
		tokens:       map[string]*ActionToken{},
		roles:        map[string]*Role{},
		orgs:         map[string]*Organisation{},
		ests:         map[string]*Establishment{},
	}
}

func (m *memStore) Users() UserStore                   { return (*memUsers)(m) }
func (m *memStore) Accounts() AccountStore             { return (*memAccounts)(m) }
func (m *memStore) Sessions() SessionStore             { return (*memSessions)(m) }
func (m *memStore) ActionTokens() ActionTokenStore     { return (*memTokens)(m) }
func (m *memStore) Roles() RoleStore                   { return (*memRoles)(m) }
func (m *memStore) Organisations() OrganisationStore   { return (*memOrgs)(m) }
func (m *memStore) Establishments() EstablishmentStore { return (*memEsts)(m) }

// --- users ---

type memUsers memStore

func (m *memUsers) Create(_ context.Context, u *User) error {
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrConflict
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memUsers) Update(_ context.Context, id string, upd UserUpdate) error {
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	if upd.Email != nil {
		u.Email = strings.ToLower(*upd.Email)
	}
	if upd.PasswordDigest != nil {
		u.PasswordDigest = *upd.PasswordDigest
	}
	if upd.Enabled != nil {
		u.Enabled = *upd.Enabled
	}
	if upd.EmailValidatedAt != nil {
		t := *upd.EmailValidatedAt
		u.EmailValidatedAt = &t
	}
	if upd.TermsAcceptedAt != nil {
		t := *upd.TermsAcceptedAt
		u.TermsAcceptedAt = &t
	}
	if upd.PrivacyAcceptedAt != nil {
		t := *upd.PrivacyAcceptedAt
		u.PrivacyAcceptedAt = &t
	}
	return nil
}

func (m *memUsers) GetScoped(ctx context.Context, id string) (*User, error) {
	scope, ok := ScopeFromContext(ctx)
	if ok && scope.Scope != ScopeAny {
		if scope.MatchesNothing() {
			return nil, nil
		}
		if !m.visible(scope, id) {
			return nil, nil
		}
	}
	return m.GetByID(ctx, id)
}

func (m *memUsers) ListScoped(ctx context.Context) ([]*User, error) {
	scope, hasScope := ScopeFromContext(ctx)
	if hasScope && scope.MatchesNothing() {
		return nil, nil
	}
	var out []*User
	for id, u := range m.users {
		if hasScope && scope.Scope != ScopeAny && !m.visible(scope, id) {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memUsers) visible(scope AuthScope, userID string) bool {
	switch scope.Scope {
	case ScopeOwn:
		return *scope.UserID == userID
	case ScopeOrganisation:
		for _, a := range m.accounts {
			if a.UserID == userID && a.OrganisationID != nil && *a.OrganisationID == *scope.OrganisationID {
				return true
			}
		}
	case ScopeEstablishment:
		for _, a := range m.accounts {
			if a.UserID == userID && a.EstablishmentID != nil && *a.EstablishmentID == *scope.EstablishmentID {
				return true
			}
		}
	}
	return false
}

// --- accounts ---

type memAccounts memStore

func (m *memAccounts) Create(_ context.Context, a *UserAccount) error {
	if _, ok := m.users[a.UserID]; !ok {
		return ErrNotFound
	}
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *memAccounts) GetByID(_ context.Context, id string) (*UserAccount, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	if u, ok := m.users[a.UserID]; ok {
		ucp := *u
		cp.User = &ucp
	}
	cp.Roles = nil
	for _, roleID := range m.accountRoles[id] {
		if r, ok := m.roles[roleID]; ok {
			cp.Roles = append(cp.Roles, *r)
		}
	}
	return &cp, nil
}

func (m *memAccounts) ListByUser(_ context.Context, userID string) ([]*UserAccount, error) {
	var out []*UserAccount
	for _, a := range m.accounts {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memAccounts) SetRoles(_ context.Context, accountID string, roleIDs []string) error {
	if _, ok := m.accounts[accountID]; !ok {
		return ErrNotFound
	}
	for _, id := range roleIDs {
		if _, ok := m.roles[id]; !ok {
			return ErrNotFound
		}
	}
	m.accountRoles[accountID] = append([]string(nil), roleIDs...)
	return nil
}

func (m *memAccounts) SetEnabled(_ context.Context, id string, enabled bool) error {
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Enabled = enabled
	return nil
}

func (m *memAccounts) DisableCascade(_ context.Context, accountID string) (bool, error) {
	a, ok := m.accounts[accountID]
	if !ok {
		return false, ErrNotFound
	}
	a.Enabled = false
	for _, other := range m.accounts {
		if other.UserID == a.UserID && other.Enabled {
			return false, nil
		}
	}
	if u, ok := m.users[a.UserID]; ok {
		u.Enabled = false
	}
	return true, nil
}

func (m *memAccounts) Delete(_ context.Context, id string) error {
	if _, ok := m.accounts[id]; !ok {
		return ErrNotFound
	}
	delete(m.accounts, id)
	delete(m.accountRoles, id)
	return nil
}

// --- sessions ---

type memSessions memStore

func (m *memSessions) Replace(_ context.Context, s *Session) (int64, error) {
	var deleted int64
	for token, existing := range m.sessions {
		if existing.UserAccountID == s.UserAccountID {
			delete(m.sessions, token)
			deleted++
		}
	}
	cp := *s
	m.sessions[s.Token] = &cp
	return deleted, nil
}

func (m *memSessions) GetByToken(_ context.Context, token string) (*Session, error) {
	s, ok := m.sessions[token]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) DeleteByToken(_ context.Context, token string) (int64, error) {
	if _, ok := m.sessions[token]; !ok {
		return 0, nil
	}
	delete(m.sessions, token)
	return 1, nil
}

func (m *memSessions) DeleteAllByAccount(_ context.Context, accountID string) (int64, error) {
	var n int64
	for token, s := range m.sessions {
		if s.UserAccountID == accountID {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) DeleteAllByUser(_ context.Context, userID string) (int64, error) {
	var n int64
	for token, s := range m.sessions {
		if a, ok := m.accounts[s.UserAccountID]; ok && a.UserID == userID {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for token, s := range m.sessions {
		if !s.ExpirationDate.After(before) {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

// --- action tokens ---

type memTokens memStore

func (m *memTokens) Create(_ context.Context, t *ActionToken) error {
	if _, ok := m.tokens[t.Token]; ok {
		return ErrConflict
	}
	cp := *t
	m.tokens[t.Token] = &cp
	return nil
}

func (m *memTokens) GetByToken(_ context.Context, token string) (*ActionToken, error) {
	t, ok := m.tokens[token]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memTokens) Delete(_ context.Context, token string) (int64, error) {
	if _, ok := m.tokens[token]; !ok {
		return 0, nil
	}
	delete(m.tokens, token)
	return 1, nil
}

func (m *memTokens) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for token, t := range m.tokens {
		if !t.ExpiresAt.After(before) {
			delete(m.tokens, token)
			n++
		}
	}
	return n, nil
}

// --- roles ---

type memRoles memStore

func (m *memRoles) Create(_ context.Context, r *Role) error {
	for _, existing := range m.roles {
		if existing.Name == r.Name {
			return ErrConflict
		}
	}
	cp := *r
	m.roles[r.ID] = &cp
	return nil
}

func (m *memRoles) GetByID(_ context.Context, id string) (*Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memRoles) GetByName(_ context.Context, name string) (*Role, error) {
	for _, r := range m.roles {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRoles) List(_ context.Context) ([]*Role, error) {
	var out []*Role
	for _, r := range m.roles {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memRoles) Update(_ context.Context, id string, upd RoleUpdate) error {
	r, ok := m.roles[id]
	if !ok {
		return ErrNotFound
	}
	if upd.Name != nil {
		r.Name = *upd.Name
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	return nil
}

func (m *memRoles) Delete(_ context.Context, id string) error {
	if _, ok := m.roles[id]; !ok {
		return ErrNotFound
	}
	delete(m.roles, id)
	return nil
}

func (m *memRoles) SetClaims(_ context.Context, roleID string, claims []Claim) error {
	r, ok := m.roles[roleID]
	if !ok {
		return ErrNotFound
	}
	r.Claims = append([]Claim(nil), claims...)
	return nil
}

func (m *memRoles) EnsureClaims(_ context.Context, claims []Claim) error {
	m.seeded = append(m.seeded, claims...)
	return nil
}

// --- organisations / establishments ---

type memOrgs memStore

func (m *memOrgs) Create(_ context.Context, o *Organisation) error {
	cp := *o
	m.orgs[o.ID] = &cp
	return nil
}

func (m *memOrgs) GetByID(_ context.Context, id string) (*Organisation, error) {
	o, ok := m.orgs[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *memOrgs) List(_ context.Context) ([]*Organisation, error) {
	var out []*Organisation
	for _, o := range m.orgs {
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memOrgs) SetEnabled(_ context.Context, id string, enabled bool) error {
	o, ok := m.orgs[id]
	if !ok {
		return ErrNotFound
	}
	o.Enabled = enabled
	return nil
}

func (m *memOrgs) DisableCascade(_ context.Context, id string) (int64, error) {
	o, ok := m.orgs[id]
	if !ok {
		return 0, ErrNotFound
	}
	o.Enabled = false
	for _, e := range m.ests {
		if e.OrganisationID == id {
			e.Enabled = false
		}
	}
	var n int64
	for _, a := range m.accounts {
		if a.OrganisationID != nil && *a.OrganisationID == id && a.Enabled {
			a.Enabled = false
			n++
		}
	}
	(*memStore)(m).disableOrphanedUsers()
	return n, nil
}

type memEsts memStore

func (m *memEsts) Create(_ context.Context, e *Establishment) error {
	if _, ok := m.orgs[e.OrganisationID]; !ok {
		return ErrNotFound
	}
	cp := *e
	m.ests[e.ID] = &cp
	return nil
}

func (m *memEsts) GetByID(_ context.Context, id string) (*Establishment, error) {
	e, ok := m.ests[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *memEsts) ListByOrganisation(_ context.Context, organisationID string) ([]*Establishment, error) {
	var out []*Establishment
	for _, e := range m.ests {
		if e.OrganisationID == organisationID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memEsts) SetEnabled(_ context.Context, id string, enabled bool) error {
	e, ok := m.ests[id]
	if !ok {
		return ErrNotFound
	}
	e.Enabled = enabled
	return nil
}

func (m *memEsts) DisableCascade(_ context.Context, id string) (int64, error) {
	e, ok := m.ests[id]
	if !ok {
		return 0, ErrNotFound
	}
	e.Enabled = false
	var n int64
	for _, a := range m.accounts {
		if a.EstablishmentID != nil && *a.EstablishmentID == id && a.Enabled {
			a.Enabled = false
			n++
		}
	}
	(*memStore)(m).disableOrphanedUsers()
	return n, nil
}

func (m *memStore) disableOrphanedUsers() {
	for _, u := range m.users {
		if !u.Enabled {
			continue
		}
		hasAccount := false
		hasEnabled := false
		for _, a := range m.accounts {
			if a.UserID == u.ID {
				hasAccount = true
				if a.Enabled {
					hasEnabled = true
				}
			}
		}
		if hasAccount && !hasEnabled {
			u.Enabled = false
		}
	}
}
