package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gatekeep.org/internal/audit"
	"gatekeep.org/internal/ids"
	"gatekeep.org/internal/obs"
)

// Mailer is the outbound delivery collaborator. When link is empty the
// client runs the code-only flow and the raw token is communicated instead.
type Mailer interface {
	SendActionLink(ctx context.Context, email string, types ActionType, link, token string) error
}

// Lifecycle drives the multi-step account flows: invitation, sign-up, email
// validation, password reset/change, terms and privacy acceptance, and the
// disable cascades.
type Lifecycle struct {
	store       Store
	tokens      *ActionTokenService
	sessions    *SessionManager
	credentials *CredentialService
	hasher      PasswordHasher
	mailer      Mailer
	signupRoles []string
	now         func() time.Time
}

// NewLifecycle wires the lifecycle service. signupRoles are granted to every
// self-registered account.
func NewLifecycle(store Store, tokens *ActionTokenService, sessions *SessionManager, credentials *CredentialService, hasher PasswordHasher, mailer Mailer, signupRoles []string) (*Lifecycle, error) {
	if store == nil || tokens == nil || sessions == nil || credentials == nil || hasher == nil || mailer == nil {
		return nil, fmt.Errorf("%w: lifecycle requires store, tokens, sessions, credentials, hasher and mailer", ErrInvalidInput)
	}
	return &Lifecycle{
		store:       store,
		tokens:      tokens,
		sessions:    sessions,
		credentials: credentials,
		hasher:      hasher,
		mailer:      mailer,
		signupRoles: signupRoles,
		now:         time.Now,
	}, nil
}

// WithClock overrides the time source, for tests.
func (l *Lifecycle) WithClock(fn func() time.Time) *Lifecycle {
	if fn != nil {
		l.now = fn
	}
	return l
}

// EnsureBuiltins seeds the claim catalog at startup.
func (l *Lifecycle) EnsureBuiltins(ctx context.Context) error {
	return l.store.Roles().EnsureClaims(ctx, BuiltinClaims())
}

// Login authenticates credentials, picks the user's account (by organisation
// when given, else the first enabled one) and issues a fresh session. Every
// failure is reported uniformly as ErrUnauthorized so callers cannot probe
// which part was wrong.
func (l *Lifecycle) Login(ctx context.Context, email, password, organisationID string) (*UserAccount, *Session, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, nil, "", ErrUnauthorized
	}
	user, err := l.store.Users().GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, "", err
	}
	if user == nil || !user.Enabled {
		return nil, nil, "", ErrUnauthorized
	}
	if err := l.hasher.Verify(password, user.PasswordDigest); err != nil {
		return nil, nil, "", ErrUnauthorized
	}
	account, err := l.pickAccount(ctx, user.ID, organisationID)
	if err != nil {
		return nil, nil, "", err
	}
	bearer, _, err := l.credentials.Issue(account.ID)
	if err != nil {
		return nil, nil, "", err
	}
	session, err := l.sessions.Create(ctx, bearer, account.ID)
	if err != nil {
		return nil, nil, "", err
	}
	_ = audit.LogEvent(ctx, "login", map[string]any{"user_id": user.ID, "account_id": account.ID})
	return account, session, bearer, nil
}

// Logout deletes the session for the presented token.
func (l *Lifecycle) Logout(ctx context.Context, token string) error {
	if err := l.sessions.DeleteByToken(ctx, token); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "logout", nil)
	return nil
}

// LogoutEverywhere deletes every session across all of a user's accounts.
func (l *Lifecycle) LogoutEverywhere(ctx context.Context, userID string) (int64, error) {
	n, err := l.sessions.DeleteAllByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	_ = audit.LogEvent(ctx, "logout_everywhere", map[string]any{"user_id": userID, "sessions": n})
	return n, nil
}

// InviteRequest describes an invitation to issue. Role names are resolved
// against the role catalog and pre-assigned when the invite is accepted.
type InviteRequest struct {
	Email           string
	RoleNames       []string
	OrganisationID  *string
	EstablishmentID *string
}

// SendInvite issues an invite token (which also pre-validates the email) and
// hands the action link to the mailer.
func (l *Lifecycle) SendInvite(ctx context.Context, req InviteRequest) (*ActionToken, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	roleIDs, err := l.resolveRoles(ctx, req.RoleNames)
	if err != nil {
		return nil, err
	}
	token, err := l.issueToken(ctx, CreateTokenRequest{
		Types:           ActionTypeInvite | ActionTypeValidateEmail,
		Email:           email,
		RoleIDs:         roleIDs,
		OrganisationID:  req.OrganisationID,
		EstablishmentID: req.EstablishmentID,
	}, ActionTypeInvite)
	if err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "invite_sent", map[string]any{"email": email})
	return token, nil
}

// AcceptInviteRequest carries the invitee's proof and chosen password.
type AcceptInviteRequest struct {
	Token    string
	Email    string
	Password string
}

// AcceptInvite validates the invite token, creates the User (unless the
// email already belongs to one) and a UserAccount carrying the token's
// role/organisation/establishment hints, revokes the token, and issues a
// fresh session. The token stays usable when the password is rejected.
func (l *Lifecycle) AcceptInvite(ctx context.Context, req AcceptInviteRequest) (*UserAccount, *Session, string, error) {
	token, err := l.tokens.Validate(ctx, ValidateTokenRequest{Token: req.Token, Email: req.Email}, ActionTypeInvite)
	if err != nil {
		return nil, nil, "", err
	}
	digest, err := l.hasher.Hash(req.Password)
	if err != nil {
		return nil, nil, "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	user, err := l.store.Users().GetByEmail(ctx, token.Email)
	if err != nil {
		return nil, nil, "", err
	}
	now := l.now().UTC()
	if user == nil {
		user = &User{
			ID:             ids.New(),
			Email:          token.Email,
			PasswordDigest: digest,
			Enabled:        true,
		}
		if token.Types.Has(ActionTypeValidateEmail) {
			user.EmailValidatedAt = &now
		}
		if err := l.store.Users().Create(ctx, user); err != nil {
			return nil, nil, "", err
		}
	}

	account := &UserAccount{
		ID:              ids.New(),
		UserID:          user.ID,
		OrganisationID:  token.OrganisationID,
		EstablishmentID: token.EstablishmentID,
		Enabled:         true,
	}
	if err := l.store.Accounts().Create(ctx, account); err != nil {
		return nil, nil, "", err
	}
	if len(token.RoleIDs) > 0 {
		if err := l.store.Accounts().SetRoles(ctx, account.ID, token.RoleIDs); err != nil {
			return nil, nil, "", err
		}
	}
	if err := l.tokens.Revoke(ctx, token.Token); err != nil {
		return nil, nil, "", err
	}
	obs.ActionTokenConsumed(token.Types.String())

	loaded, err := l.store.Accounts().GetByID(ctx, account.ID)
	if err != nil {
		return nil, nil, "", err
	}
	if loaded != nil {
		account = loaded
	}
	bearer, _, err := l.credentials.Issue(account.ID)
	if err != nil {
		return nil, nil, "", err
	}
	session, err := l.sessions.Create(ctx, bearer, account.ID)
	if err != nil {
		return nil, nil, "", err
	}
	_ = audit.LogEvent(ctx, "invite_accepted", map[string]any{"user_id": user.ID, "account_id": account.ID})
	return account, session, bearer, nil
}

// SignupRequest is the public self-registration input.
type SignupRequest struct {
	Email    string
	Password string
}

// Signup creates a User and a UserAccount with the configured default roles
// and sends an email-validation token. A duplicate email is a conflict.
func (l *Lifecycle) Signup(ctx context.Context, req SignupRequest) (*UserAccount, error) {
	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	existing, err := l.store.Users().GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrConflict
	}
	digest, err := l.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	user := &User{ID: ids.New(), Email: email, PasswordDigest: digest, Enabled: true}
	if err := l.store.Users().Create(ctx, user); err != nil {
		return nil, err
	}
	account := &UserAccount{ID: ids.New(), UserID: user.ID, Enabled: true}
	if err := l.store.Accounts().Create(ctx, account); err != nil {
		return nil, err
	}
	roleIDs, err := l.resolveRoles(ctx, l.signupRoles)
	if err != nil {
		return nil, err
	}
	if len(roleIDs) > 0 {
		if err := l.store.Accounts().SetRoles(ctx, account.ID, roleIDs); err != nil {
			return nil, err
		}
	}
	userID := user.ID
	if _, err := l.issueToken(ctx, CreateTokenRequest{
		Types:  ActionTypeValidateEmail,
		Email:  email,
		UserID: &userID,
	}, ActionTypeValidateEmail); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "signup", map[string]any{"user_id": user.ID})
	return account, nil
}

// SendResetPassword issues a reset token for the email's user. An unknown
// email returns success without issuing anything: responding identically to
// success is a deliberate security property, not an oversight. Issuing does
// not invalidate a still-outstanding earlier reset token.
func (l *Lifecycle) SendResetPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	user, err := l.store.Users().GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}
	userID := user.ID
	if _, err := l.issueToken(ctx, CreateTokenRequest{
		Types:  ActionTypeResetPassword,
		Email:  email,
		UserID: &userID,
	}, ActionTypeResetPassword); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "reset_password_sent", map[string]any{"user_id": user.ID})
	return nil
}

// TokenActionRequest carries a presented token and the matching email.
type TokenActionRequest struct {
	Token string
	Email string
}

// ResetPassword consumes a reset token, stores the new digest, and deletes
// every session for the user. A weak password leaves the token usable.
func (l *Lifecycle) ResetPassword(ctx context.Context, req TokenActionRequest, newPassword string) error {
	token, err := l.tokens.Validate(ctx, ValidateTokenRequest{Token: req.Token, Email: req.Email}, ActionTypeResetPassword)
	if err != nil {
		return err
	}
	digest, err := l.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	user, err := l.tokenUser(ctx, token)
	if err != nil {
		return err
	}
	if err := l.store.Users().Update(ctx, user.ID, UserUpdate{PasswordDigest: &digest}); err != nil {
		return err
	}
	if err := l.tokens.Revoke(ctx, token.Token); err != nil {
		return err
	}
	obs.ActionTokenConsumed(token.Types.String())
	if _, err := l.sessions.DeleteAllByUser(ctx, user.ID); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "password_reset", map[string]any{"user_id": user.ID})
	return nil
}

// SendValidateEmail issues an email-validation token for an existing user.
func (l *Lifecycle) SendValidateEmail(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	user, err := l.store.Users().GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound
	}
	userID := user.ID
	_, err = l.issueToken(ctx, CreateTokenRequest{
		Types:  ActionTypeValidateEmail,
		Email:  email,
		UserID: &userID,
	}, ActionTypeValidateEmail)
	return err
}

// ValidateEmail consumes a validate-email token and marks the user's email
// validated.
func (l *Lifecycle) ValidateEmail(ctx context.Context, req TokenActionRequest) error {
	return l.consumeAndMark(ctx, req, ActionTypeValidateEmail, func(now time.Time) UserUpdate {
		return UserUpdate{EmailValidatedAt: &now}
	}, "email_validated")
}

// AcceptTerms consumes an accept-terms token and records the acceptance.
func (l *Lifecycle) AcceptTerms(ctx context.Context, req TokenActionRequest) error {
	return l.consumeAndMark(ctx, req, ActionTypeAcceptTerms, func(now time.Time) UserUpdate {
		return UserUpdate{TermsAcceptedAt: &now}
	}, "terms_accepted")
}

// AcceptPrivacyPolicy consumes an accept-privacy token and records the
// acceptance.
func (l *Lifecycle) AcceptPrivacyPolicy(ctx context.Context, req TokenActionRequest) error {
	return l.consumeAndMark(ctx, req, ActionTypeAcceptPrivacy, func(now time.Time) UserUpdate {
		return UserUpdate{PrivacyAcceptedAt: &now}
	}, "privacy_accepted")
}

// ChangePassword rotates the digest for the authenticated account's user
// after verifying the current password.
func (l *Lifecycle) ChangePassword(ctx context.Context, current, next string) error {
	account, ok := AccountFromContext(ctx)
	if !ok || account.User == nil {
		return ErrUnauthorized
	}
	if err := l.hasher.Verify(current, account.User.PasswordDigest); err != nil {
		return ErrUnauthorized
	}
	digest, err := l.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := l.store.Users().Update(ctx, account.UserID, UserUpdate{PasswordDigest: &digest}); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "password_changed", map[string]any{"user_id": account.UserID})
	return nil
}

// SendChangeEmail issues a change-email token addressed to the NEW email;
// proving control of the new address is what consuming the link does.
func (l *Lifecycle) SendChangeEmail(ctx context.Context, newEmail string) error {
	account, ok := AccountFromContext(ctx)
	if !ok {
		return ErrUnauthorized
	}
	newEmail = normalizeEmail(newEmail)
	if newEmail == "" || !strings.Contains(newEmail, "@") {
		return fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	userID := account.UserID
	_, err := l.issueToken(ctx, CreateTokenRequest{
		Types:  ActionTypeChangeEmail,
		Email:  newEmail,
		UserID: &userID,
	}, ActionTypeChangeEmail)
	return err
}

// ChangeEmail consumes a change-email token and moves the user to the new
// address, which the consumed link has just proven reachable.
func (l *Lifecycle) ChangeEmail(ctx context.Context, req TokenActionRequest) error {
	token, err := l.tokens.Validate(ctx, ValidateTokenRequest{Token: req.Token, Email: req.Email}, ActionTypeChangeEmail)
	if err != nil {
		return err
	}
	user, err := l.tokenUser(ctx, token)
	if err != nil {
		return err
	}
	now := l.now().UTC()
	email := token.Email
	if err := l.store.Users().Update(ctx, user.ID, UserUpdate{Email: &email, EmailValidatedAt: &now}); err != nil {
		return err
	}
	if err := l.tokens.Revoke(ctx, token.Token); err != nil {
		return err
	}
	obs.ActionTokenConsumed(token.Types.String())
	_ = audit.LogEvent(ctx, "email_changed", map[string]any{"user_id": user.ID})
	return nil
}

// DisableAccount disables one account, cascading to the underlying user when
// it was the last enabled account, and deletes the account's sessions.
func (l *Lifecycle) DisableAccount(ctx context.Context, accountID string) error {
	userDisabled, err := l.store.Accounts().DisableCascade(ctx, accountID)
	if err != nil {
		return err
	}
	if _, err := l.sessions.DeleteAllByAccount(ctx, accountID); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "account_disabled", map[string]any{"account_id": accountID, "user_disabled": userDisabled})
	return nil
}

// EnableAccount re-enables one account. Enabling never cascades.
func (l *Lifecycle) EnableAccount(ctx context.Context, accountID string) error {
	return l.store.Accounts().SetEnabled(ctx, accountID, true)
}

// DisableEstablishment disables the establishment and every enabled account
// under it, cascading to users left without an enabled account.
func (l *Lifecycle) DisableEstablishment(ctx context.Context, id string) error {
	n, err := l.store.Establishments().DisableCascade(ctx, id)
	if err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "establishment_disabled", map[string]any{"establishment_id": id, "accounts_disabled": n})
	return nil
}

// EnableEstablishment re-enables the establishment only; accounts and users
// disabled by the cascade stay disabled.
func (l *Lifecycle) EnableEstablishment(ctx context.Context, id string) error {
	return l.store.Establishments().SetEnabled(ctx, id, true)
}

// DisableOrganisation disables the organisation, its establishments, and
// every account under it, cascading to users.
func (l *Lifecycle) DisableOrganisation(ctx context.Context, id string) error {
	n, err := l.store.Organisations().DisableCascade(ctx, id)
	if err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "organisation_disabled", map[string]any{"organisation_id": id, "accounts_disabled": n})
	return nil
}

// EnableOrganisation re-enables the organisation only.
func (l *Lifecycle) EnableOrganisation(ctx context.Context, id string) error {
	return l.store.Organisations().SetEnabled(ctx, id, true)
}

// --- helpers ---

func (l *Lifecycle) pickAccount(ctx context.Context, userID, organisationID string) (*UserAccount, error) {
	accounts, err := l.store.Accounts().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		if !a.Enabled {
			continue
		}
		if organisationID != "" {
			if a.OrganisationID == nil || *a.OrganisationID != organisationID {
				continue
			}
		}
		return a, nil
	}
	return nil, ErrUnauthorized
}

func (l *Lifecycle) resolveRoles(ctx context.Context, names []string) ([]string, error) {
	var out []string
	for _, name := range names {
		role, err := l.store.Roles().GetByName(ctx, strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			return nil, err
		}
		if role == nil {
			return nil, fmt.Errorf("%w: role %q", ErrNotFound, name)
		}
		out = append(out, role.ID)
	}
	return out, nil
}

// issueToken creates the token, builds the action link for the primary type
// using the client published in the context, and hands it to the mailer.
func (l *Lifecycle) issueToken(ctx context.Context, req CreateTokenRequest, primary ActionType) (*ActionToken, error) {
	client, _ := ClientFromContext(ctx)
	req.Client = client
	token, err := l.tokens.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	link := ""
	if client != nil {
		route := l.tokens.Policy().Routes[primary]
		link, _ = client.ActionLink(primary, route, token.Token, token.Email)
	}
	if err := l.mailer.SendActionLink(ctx, token.Email, token.Types, link, token.Token); err != nil {
		return nil, err
	}
	return token, nil
}

func (l *Lifecycle) tokenUser(ctx context.Context, token *ActionToken) (*User, error) {
	if token.UserID != nil {
		user, err := l.store.Users().GetByID(ctx, *token.UserID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, ErrNotFound
		}
		return user, nil
	}
	user, err := l.store.Users().GetByEmail(ctx, token.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

func (l *Lifecycle) consumeAndMark(ctx context.Context, req TokenActionRequest, required ActionType, mark func(time.Time) UserUpdate, event string) error {
	token, err := l.tokens.Validate(ctx, ValidateTokenRequest{Token: req.Token, Email: req.Email}, required)
	if err != nil {
		return err
	}
	user, err := l.tokenUser(ctx, token)
	if err != nil {
		return err
	}
	now := l.now().UTC()
	if err := l.store.Users().Update(ctx, user.ID, mark(now)); err != nil {
		return err
	}
	if err := l.tokens.Revoke(ctx, token.Token); err != nil {
		return err
	}
	obs.ActionTokenConsumed(token.Types.String())
	_ = audit.LogEvent(ctx, event, map[string]any{"user_id": user.ID})
	return nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
