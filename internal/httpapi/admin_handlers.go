package httpapi

import (
	"fmt"
	"net/http"

	"gatekeep.org/internal/auth"
)

// --- users ---

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.rbac.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if users == nil {
		users = []*auth.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.rbac.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// --- accounts ---

type assignRolesRequest struct {
	Roles []string `json:"roles"`
}

func (a *API) handleAssignRoles(w http.ResponseWriter, r *http.Request) {
	var req assignRolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	account, err := a.rbac.AssignRoles(r.Context(), r.PathValue("id"), req.Roles)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (a *API) handleDisableAccount(w http.ResponseWriter, r *http.Request) {
	if err := a.lifecycle.DisableAccount(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleEnableAccount(w http.ResponseWriter, r *http.Request) {
	if err := a.lifecycle.EnableAccount(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- roles ---

type createRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Claims      []string `json:"claims"`
}

func (a *API) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.rbac.CreateRole(r.Context(), req.Name, req.Description, req.Claims)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.rbac.ListRoles(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if roles == nil {
		roles = []*auth.Role{}
	}
	writeJSON(w, http.StatusOK, roles)
}

func (a *API) handleGetRole(w http.ResponseWriter, r *http.Request) {
	role, err := a.rbac.GetRole(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

type updateRoleRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (a *API) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.rbac.UpdateRole(r.Context(), r.PathValue("id"), auth.RoleUpdate{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	if err := a.rbac.DeleteRole(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setRoleClaimsRequest struct {
	Claims []string `json:"claims"`
}

func (a *API) handleSetRoleClaims(w http.ResponseWriter, r *http.Request) {
	var req setRoleClaimsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.rbac.SetRoleClaims(r.Context(), r.PathValue("id"), req.Claims)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

// --- tenancy ---

type createOrganisationRequest struct {
	Name string `json:"name"`
}

func (a *API) handleCreateOrganisation(w http.ResponseWriter, r *http.Request) {
	var req createOrganisationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.rbac.CreateOrganisation(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/organisations/%s", org.ID))
	writeJSON(w, http.StatusCreated, org)
}

func (a *API) handleListOrganisations(w http.ResponseWriter, r *http.Request) {
	orgs, err := a.rbac.ListOrganisations(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if orgs == nil {
		orgs = []*auth.Organisation{}
	}
	writeJSON(w, http.StatusOK, orgs)
}

func (a *API) handleDisableOrganisation(w http.ResponseWriter, r *http.Request) {
	if err := a.lifecycle.DisableOrganisation(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleEnableOrganisation(w http.ResponseWriter, r *http.Request) {
	if err := a.lifecycle.EnableOrganisation(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createEstablishmentRequest struct {
	Name string `json:"name"`
}

func (a *API) handleCreateEstablishment(w http.ResponseWriter, r *http.Request) {
	var req createEstablishmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	est, err := a.rbac.CreateEstablishment(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/establishments/%s", est.ID))
	writeJSON(w, http.StatusCreated, est)
}

func (a *API) handleListEstablishments(w http.ResponseWriter, r *http.Request) {
	ests, err := a.rbac.ListEstablishments(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if ests == nil {
		ests = []*auth.Establishment{}
	}
	writeJSON(w, http.StatusOK, ests)
}

func (a *API) handleDisableEstablishment(w http.ResponseWriter, r *http.Request) {
	if err := a.lifecycle.DisableEstablishment(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleEnableEstablishment(w http.ResponseWriter, r *http.Request) {
	if err := a.lifecycle.EnableEstablishment(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
