package auth

import (
	"errors"
	"testing"
)

func TestParseClaimRoundTrip(t *testing.T) {
	cases := []string{
		"read:organisation:users",
		"manage:any:platform",
		"disable:own:accounts",
		"create:establishment:user_accounts",
		"update:any:api-keys",
	}
	for _, raw := range cases {
		c, err := ParseClaim(raw)
		if err != nil {
			t.Fatalf("ParseClaim(%q): %v", raw, err)
		}
		if got := c.String(); got != raw {
			t.Errorf("round trip %q: got %q", raw, got)
		}
	}
}

func TestParseClaimRejectsInvalid(t *testing.T) {
	cases := []string{
		"",
		"read:users",
		"read:organisation:users:extra",
		"READ:organisation:users",
		"read:Organisation:users",
		"read:org:users",
		"fly:any:users",
		"read:any:",
		"read:any:Users",
		"read:any:users ",
		"read:any:us ers",
	}
	for _, raw := range cases {
		if _, err := ParseClaim(raw); !errors.Is(err, ErrInvalidClaim) {
			t.Errorf("ParseClaim(%q): want ErrInvalidClaim, got %v", raw, err)
		}
	}
}

func TestMustClaimPanicsOnInvalid(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	MustClaim("not-a-claim")
}

func TestScopeBroader(t *testing.T) {
	order := []Scope{ScopeOwn, ScopeEstablishment, ScopeOrganisation, ScopeAny}
	for i, narrow := range order {
		for _, broad := range order[i+1:] {
			if !broad.Broader(narrow) {
				t.Errorf("%s should be broader than %s", broad, narrow)
			}
			if narrow.Broader(broad) {
				t.Errorf("%s should not be broader than %s", narrow, broad)
			}
		}
		if narrow.Broader(narrow) {
			t.Errorf("%s should not be broader than itself", narrow)
		}
	}
}

func TestClaimMatchesIgnoresScope(t *testing.T) {
	c := MustClaim("read:own:users")
	if !c.Matches(ActionRead, "users") {
		t.Error("claim should match its own action/resource")
	}
	if c.Matches(ActionUpdate, "users") {
		t.Error("claim should not match a different action")
	}
	if c.Matches(ActionRead, "roles") {
		t.Error("claim should not match a different resource")
	}
}

func TestParseClaims(t *testing.T) {
	claims, err := ParseClaims([]string{"read:any:users", "update:own:users"})
	if err != nil {
		t.Fatalf("ParseClaims: %v", err)
	}
	if len(claims) != 2 {
		t.Fatalf("want 2 claims, got %d", len(claims))
	}
	if _, err := ParseClaims([]string{"read:any:users", "bogus"}); !errors.Is(err, ErrInvalidClaim) {
		t.Errorf("want ErrInvalidClaim, got %v", err)
	}
}

func TestActionTypeMask(t *testing.T) {
	mask := ActionTypeInvite | ActionTypeValidateEmail

	if !mask.Has(ActionTypeInvite) {
		t.Error("mask should contain invite")
	}
	if !mask.Has(ActionTypeInvite | ActionTypeValidateEmail) {
		t.Error("mask should contain the full pair")
	}
	if mask.Has(ActionTypeResetPassword) {
		t.Error("mask should not contain reset-password")
	}
	if mask.Has(0) {
		t.Error("an empty requirement never matches")
	}

	bits := mask.Types()
	if len(bits) != 2 {
		t.Fatalf("want 2 bits, got %d", len(bits))
	}

	if got := mask.String(); got != "invite|validate-email" {
		t.Errorf("String: got %q", got)
	}
	if got := ActionType(0).String(); got != "none" {
		t.Errorf("zero String: got %q", got)
	}
}
