package httpapi

import (
	"context"
	"net/http"

	"gatekeep.org/internal/auth"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	account, err := a.lifecycle.Signup(r.Context(), auth.SignupRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

type inviteRequest struct {
	Email           string   `json:"email"`
	Roles           []string `json:"roles"`
	OrganisationID  *string  `json:"organisation_id,omitempty"`
	EstablishmentID *string  `json:"establishment_id,omitempty"`
}

func (a *API) handleSendInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	token, err := a.lifecycle.SendInvite(r.Context(), auth.InviteRequest{
		Email:           req.Email,
		RoleNames:       req.Roles,
		OrganisationID:  req.OrganisationID,
		EstablishmentID: req.EstablishmentID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"email":      token.Email,
		"expires_at": token.ExpiresAt,
	})
}

type acceptInviteRequest struct {
	Token    string `json:"token"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	var req acceptInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	account, session, token, err := a.lifecycle.AcceptInvite(r.Context(), auth.AcceptInviteRequest{
		Token:    req.Token,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	setSessionCookie(w, token, session.ExpirationDate)
	writeJSON(w, http.StatusCreated, loginResponse{
		Token:     token,
		ExpiresAt: session.ExpirationDate,
		Account:   account,
	})
}

type emailRequest struct {
	Email string `json:"email"`
}

// handleSendResetPassword always answers 202: callers must not be able to
// tell a known email from an unknown one.
func (a *API) handleSendResetPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.lifecycle.SendResetPassword(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err := a.lifecycle.ResetPassword(r.Context(), auth.TokenActionRequest{
		Token: req.Token,
		Email: req.Email,
	}, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSendValidateEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.lifecycle.SendValidateEmail(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type tokenActionRequest struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

func (a *API) handleValidateEmail(w http.ResponseWriter, r *http.Request) {
	a.handleTokenAction(w, r, a.lifecycle.ValidateEmail)
}

func (a *API) handleAcceptTerms(w http.ResponseWriter, r *http.Request) {
	a.handleTokenAction(w, r, a.lifecycle.AcceptTerms)
}

func (a *API) handleAcceptPrivacy(w http.ResponseWriter, r *http.Request) {
	a.handleTokenAction(w, r, a.lifecycle.AcceptPrivacyPolicy)
}

func (a *API) handleChangeEmail(w http.ResponseWriter, r *http.Request) {
	a.handleTokenAction(w, r, a.lifecycle.ChangeEmail)
}

func (a *API) handleTokenAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, req auth.TokenActionRequest) error) {
	var req tokenActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := fn(r.Context(), auth.TokenActionRequest{Token: req.Token, Email: req.Email}); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
