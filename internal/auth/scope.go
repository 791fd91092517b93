package auth

import (
	"context"
	"fmt"
)

// AuthScope is the ephemeral, per-request filter derived from a caller's
// claims for one action/resource pair. At most one of OrganisationID,
// EstablishmentID, UserID is set, depending on the resolved scope level;
// a nil filter on a narrowed scope matches nothing, never everything.
type AuthScope struct {
	Action   Action
	Scope    Scope
	Resource string

	OrganisationID  *string
	EstablishmentID *string
	UserID          *string
}

// MatchesNothing reports whether the scope narrows visibility but carries no
// filter value, e.g. an ORGANISATION scope on an account without an
// organisation. Consumers must return empty results in that case.
func (s AuthScope) MatchesNothing() bool {
	switch s.Scope {
	case ScopeOrganisation:
		return s.OrganisationID == nil
	case ScopeEstablishment:
		return s.EstablishmentID == nil
	case ScopeOwn:
		return s.UserID == nil
	default:
		return false
	}
}

// MostPermissiveScope collects every held claim matching the action/resource
// pair regardless of scope and returns the highest-ranked scope present.
// Callers must already be known to hold at least one qualifying claim; a
// miss here is a logic error, reported as ErrNoMatchingScope.
func MostPermissiveScope(held map[string]Claim, action Action, resource string) (Scope, error) {
	best := Scope("")
	found := false
	for _, c := range held {
		if !c.Matches(action, resource) {
			continue
		}
		if !found || c.Scope.Broader(best) {
			best = c.Scope
			found = true
		}
	}
	if !found {
		return "", fmt.Errorf("%w: %s on %s", ErrNoMatchingScope, action, resource)
	}
	return best, nil
}

// BuildScope translates a resolved scope level into the concrete filter to
// enforce for the account: no filter for ANY, the account's organisation or
// establishment id for the middle levels, and the underlying user id for OWN.
func BuildScope(account *UserAccount, action Action, resource string, scope Scope) AuthScope {
	out := AuthScope{Action: action, Scope: scope, Resource: resource}
	switch scope {
	case ScopeOrganisation:
		out.OrganisationID = account.OrganisationID
	case ScopeEstablishment:
		out.EstablishmentID = account.EstablishmentID
	case ScopeOwn:
		userID := account.UserID
		out.UserID = &userID
	}
	return out
}

// CalculateScope resolves the most permissive scope the account holds for the
// action/resource pair, builds the concrete filter, and publishes it into the
// returned context for the remainder of the request.
func CalculateScope(ctx context.Context, account *UserAccount, action Action, resource string) (context.Context, AuthScope, error) {
	scope, err := MostPermissiveScope(account.HeldClaims(), action, resource)
	if err != nil {
		return ctx, AuthScope{}, err
	}
	built := BuildScope(account, action, resource, scope)
	return ContextWithScope(ctx, built), built, nil
}
