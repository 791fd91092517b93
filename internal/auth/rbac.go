package auth

import (
	"context"
	"fmt"
	"strings"

	"gatekeep.org/internal/audit"
	"gatekeep.org/internal/ids"
)

// RBAC administers the role catalog, role-to-account assignment, and the
// tenancy hierarchy (organisations, establishments). Visibility of users is
// constrained by the caller's published AuthScope through the scoped store
// reads.
type RBAC struct {
	store Store
}

// NewRBAC builds the administration service.
func NewRBAC(store Store) (*RBAC, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	return &RBAC{store: store}, nil
}

// CreateRole creates a role with the given claims. The name is the role's
// identity, lowercased; a duplicate surfaces as ErrConflict from the store.
func (r *RBAC) CreateRole(ctx context.Context, name, description string, claims []string) (*Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	parsed, err := ParseClaims(claims)
	if err != nil {
		return nil, err
	}
	role := &Role{ID: ids.New(), Name: name, Description: description, Claims: parsed}
	if err := r.store.Roles().Create(ctx, role); err != nil {
		return nil, err
	}
	if len(parsed) > 0 {
		if err := r.store.Roles().SetClaims(ctx, role.ID, parsed); err != nil {
			return nil, err
		}
	}
	_ = audit.LogEvent(ctx, "role_created", map[string]any{"role_id": role.ID, "name": name})
	return role, nil
}

// GetRole fetches one role with its claims.
func (r *RBAC) GetRole(ctx context.Context, id string) (*Role, error) {
	role, err := r.store.Roles().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, ErrNotFound
	}
	return role, nil
}

// ListRoles returns the full role catalog.
func (r *RBAC) ListRoles(ctx context.Context) ([]*Role, error) {
	return r.store.Roles().List(ctx)
}

// UpdateRole renames or re-describes a role.
func (r *RBAC) UpdateRole(ctx context.Context, id string, upd RoleUpdate) (*Role, error) {
	if upd.Name != nil {
		name := strings.ToLower(strings.TrimSpace(*upd.Name))
		if name == "" {
			return nil, fmt.Errorf("%w: role name cannot be empty", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if err := r.store.Roles().Update(ctx, id, upd); err != nil {
		return nil, err
	}
	return r.GetRole(ctx, id)
}

// DeleteRole removes the role and its grants.
func (r *RBAC) DeleteRole(ctx context.Context, id string) error {
	if err := r.store.Roles().Delete(ctx, id); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "role_deleted", map[string]any{"role_id": id})
	return nil
}

// SetRoleClaims replaces the role's claim set.
func (r *RBAC) SetRoleClaims(ctx context.Context, roleID string, claims []string) (*Role, error) {
	parsed, err := ParseClaims(claims)
	if err != nil {
		return nil, err
	}
	if err := r.store.Roles().SetClaims(ctx, roleID, parsed); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "role_claims_set", map[string]any{"role_id": roleID, "claims": len(parsed)})
	return r.GetRole(ctx, roleID)
}

// AssignRoles replaces the account's role set, resolving names to ids.
func (r *RBAC) AssignRoles(ctx context.Context, accountID string, roleNames []string) (*UserAccount, error) {
	var roleIDs []string
	for _, name := range roleNames {
		role, err := r.store.Roles().GetByName(ctx, strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			return nil, err
		}
		if role == nil {
			return nil, fmt.Errorf("%w: role %q", ErrNotFound, name)
		}
		roleIDs = append(roleIDs, role.ID)
	}
	if err := r.store.Accounts().SetRoles(ctx, accountID, roleIDs); err != nil {
		return nil, err
	}
	account, err := r.store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrNotFound
	}
	_ = audit.LogEvent(ctx, "roles_assigned", map[string]any{"account_id": accountID, "roles": roleNames})
	return account, nil
}

// CreateOrganisation registers a new top-level tenant.
func (r *RBAC) CreateOrganisation(ctx context.Context, name string) (*Organisation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: organisation name is required", ErrInvalidInput)
	}
	org := &Organisation{ID: ids.New(), Name: name, Enabled: true}
	if err := r.store.Organisations().Create(ctx, org); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "organisation_created", map[string]any{"organisation_id": org.ID})
	return org, nil
}

// GetOrganisation fetches one organisation.
func (r *RBAC) GetOrganisation(ctx context.Context, id string) (*Organisation, error) {
	org, err := r.store.Organisations().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrNotFound
	}
	return org, nil
}

// ListOrganisations returns every organisation.
func (r *RBAC) ListOrganisations(ctx context.Context) ([]*Organisation, error) {
	return r.store.Organisations().List(ctx)
}

// CreateEstablishment registers a site under an organisation.
func (r *RBAC) CreateEstablishment(ctx context.Context, organisationID, name string) (*Establishment, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(organisationID) == "" {
		return nil, fmt.Errorf("%w: organisation id and name are required", ErrInvalidInput)
	}
	est := &Establishment{ID: ids.New(), OrganisationID: organisationID, Name: name, Enabled: true}
	if err := r.store.Establishments().Create(ctx, est); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "establishment_created", map[string]any{"establishment_id": est.ID, "organisation_id": organisationID})
	return est, nil
}

// ListEstablishments returns the sites under one organisation.
func (r *RBAC) ListEstablishments(ctx context.Context, organisationID string) ([]*Establishment, error) {
	return r.store.Establishments().ListByOrganisation(ctx, organisationID)
}

// GetUser fetches one user through the caller's published scope; a user
// outside the scope reads as not found.
func (r *RBAC) GetUser(ctx context.Context, id string) (*User, error) {
	user, err := r.store.Users().GetScoped(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// ListUsers lists the users visible under the caller's published scope.
func (r *RBAC) ListUsers(ctx context.Context) ([]*User, error) {
	return r.store.Users().ListScoped(ctx)
}
