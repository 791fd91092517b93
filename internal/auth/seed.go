package auth

// BuiltinClaims is the claim catalog seeded at startup. Roles grant subsets
// of these; the administrator sentinel bypasses the claim gate entirely.
func BuiltinClaims() []Claim {
	resources := []string{"users", "accounts", "roles", "organisations", "establishments", "sessions"}
	actions := []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionEnable, ActionDisable, ActionManage}
	scopes := []Scope{ScopeOwn, ScopeEstablishment, ScopeOrganisation, ScopeAny}

	var claims []Claim
	for _, resource := range resources {
		for _, action := range actions {
			for _, scope := range scopes {
				claims = append(claims, Claim{Action: action, Scope: scope, Resource: resource})
			}
		}
	}
	claims = append(claims, AdministratorClaim)
	return claims
}
