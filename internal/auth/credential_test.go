package auth

import (
	"errors"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCredentialIssueVerifyRoundTrip(t *testing.T) {
	svc, err := NewCredentialService(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewCredentialService: %v", err)
	}
	token, expiresAt, err := svc.Issue("acct-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}
	if !expiresAt.After(time.Now()) {
		t.Error("expiry should be in the future")
	}
	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "acct-1" {
		t.Errorf("subject: got %q", claims.Subject)
	}
	if claims.ID == "" {
		t.Error("missing jti")
	}
}

func TestCredentialVerifyRejectsTampered(t *testing.T) {
	svc, _ := NewCredentialService(testSecret, time.Hour)
	token, _, err := svc.Issue("acct-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	tampered := token[:len(token)-2] + "xx"
	if _, err := svc.Verify(tampered); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("want ErrInvalidCredential, got %v", err)
	}
}

func TestCredentialVerifyRejectsWrongSecret(t *testing.T) {
	issuer, _ := NewCredentialService(testSecret, time.Hour)
	verifier, _ := NewCredentialService("another-secret-another-secret!!!", time.Hour)
	token, _, err := issuer.Issue("acct-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("want ErrInvalidCredential, got %v", err)
	}
}

func TestCredentialVerifyRejectsExpired(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := NewCredentialService(testSecret, time.Hour)
	svc.WithClock(fixedClock(start))
	token, _, err := svc.Issue("acct-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Verify(token); err != nil {
		t.Fatalf("Verify before expiry: %v", err)
	}
	svc.WithClock(fixedClock(start.Add(2 * time.Hour)))
	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("want ErrInvalidCredential, got %v", err)
	}
}

func TestCredentialVerifyRejectsGarbage(t *testing.T) {
	svc, _ := NewCredentialService(testSecret, time.Hour)
	for _, raw := range []string{"", "   ", "not.a.jwt", "a.b"} {
		if _, err := svc.Verify(raw); !errors.Is(err, ErrInvalidCredential) {
			t.Errorf("Verify(%q): want ErrInvalidCredential, got %v", raw, err)
		}
	}
}

func TestNewCredentialServiceValidates(t *testing.T) {
	if _, err := NewCredentialService("", time.Hour); err == nil {
		t.Error("empty secret should fail")
	}
	if _, err := NewCredentialService(testSecret, 0); err == nil {
		t.Error("zero ttl should fail")
	}
}
