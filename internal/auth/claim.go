package auth

import (
	"fmt"
	"strings"
)

// Action names a verb a caller may perform on a protected resource.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionEnable  Action = "enable"
	ActionDisable Action = "disable"
	ActionManage  Action = "manage"
)

var knownActions = map[Action]struct{}{
	ActionCreate:  {},
	ActionRead:    {},
	ActionUpdate:  {},
	ActionDelete:  {},
	ActionEnable:  {},
	ActionDisable: {},
	ActionManage:  {},
}

// Scope is the data-visibility breadth attached to a claim, ordered by
// permissiveness: ANY > ORGANISATION > ESTABLISHMENT > OWN.
type Scope string

const (
	ScopeAny           Scope = "any"
	ScopeOrganisation  Scope = "organisation"
	ScopeEstablishment Scope = "establishment"
	ScopeOwn           Scope = "own"
)

var scopeRank = map[Scope]int{
	ScopeOwn:           0,
	ScopeEstablishment: 1,
	ScopeOrganisation:  2,
	ScopeAny:           3,
}

// Rank returns the permissiveness order of the scope; higher is broader.
func (s Scope) Rank() int {
	return scopeRank[s]
}

// Broader reports whether s is strictly more permissive than other.
func (s Scope) Broader(other Scope) bool {
	return s.Rank() > other.Rank()
}

// Claim is an immutable action:scope:resource permission triple. Its
// canonical lowercase string form is its identity for storage and comparison.
type Claim struct {
	Action   Action
	Scope    Scope
	Resource string
}

// AdministratorClaim is the sentinel claim whose holders pass every claim
// gate unconditionally.
var AdministratorClaim = Claim{Action: ActionManage, Scope: ScopeAny, Resource: "platform"}

// NewClaim builds a Claim from its three parts, validating each against the
// recognized enum members. The resource must be a lowercase collection name.
func NewClaim(action Action, scope Scope, resource string) (Claim, error) {
	if _, ok := knownActions[action]; !ok {
		return Claim{}, fmt.Errorf("%w: unknown action %q", ErrInvalidClaim, action)
	}
	if _, ok := scopeRank[scope]; !ok {
		return Claim{}, fmt.Errorf("%w: unknown scope %q", ErrInvalidClaim, scope)
	}
	if !validResource(resource) {
		return Claim{}, fmt.Errorf("%w: invalid resource %q", ErrInvalidClaim, resource)
	}
	return Claim{Action: action, Scope: scope, Resource: resource}, nil
}

// ParseClaim parses the canonical "action:scope:resource" string form.
// Input is rejected, never coerced: uppercase or unknown members fail.
func ParseClaim(s string) (Claim, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Claim{}, fmt.Errorf("%w: %q", ErrInvalidClaim, s)
	}
	return NewClaim(Action(parts[0]), Scope(parts[1]), parts[2])
}

// MustClaim is ParseClaim for seed data and route declarations; it panics on
// malformed input.
func MustClaim(s string) Claim {
	c, err := ParseClaim(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseClaims parses a list of canonical claim strings.
func ParseClaims(in []string) ([]Claim, error) {
	out := make([]Claim, 0, len(in))
	for _, s := range in {
		c, err := ParseClaim(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// String returns the canonical lowercase colon-joined form.
func (c Claim) String() string {
	return string(c.Action) + ":" + string(c.Scope) + ":" + c.Resource
}

// Matches reports whether the claim applies to the given action/resource
// pair, regardless of scope.
func (c Claim) Matches(action Action, resource string) bool {
	return c.Action == action && c.Resource == resource
}

func validResource(resource string) bool {
	if resource == "" {
		return false
	}
	for _, r := range resource {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}
