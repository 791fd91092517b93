package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const credentialIssuer = "gatekeep"

// CredentialClaims are the JWT claims carried by a session credential. The
// subject is the user account id.
type CredentialClaims struct {
	jwt.RegisteredClaims
}

// CredentialService signs and verifies the bearer credential (HS256). Credential
// verification is independent of session expiry; both must hold at request
// time.
type CredentialService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCredentialService builds a credential signer/verifier with the given secret
// and lifetime.
func NewCredentialService(secret string, ttl time.Duration) (*CredentialService, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth secret is not configured")
	}
	if ttl <= 0 {
		return nil, errors.New("credential ttl must be greater than zero")
	}
	return &CredentialService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the time source, for tests.
func (c *CredentialService) WithClock(fn func() time.Time) *CredentialService {
	if fn != nil {
		c.now = fn
	}
	return c
}

// Issue signs a credential for the given account. The returned token string
// is also the session key (1:1 with the issued credential).
func (c *CredentialService) Issue(accountID string) (string, time.Time, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", time.Time{}, errors.New("accountID is required")
	}
	now := c.now().UTC()
	expiresAt := now.Add(c.ttl)
	claims := CredentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    credentialIssuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign credential: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the credential's signature and registered claims. Every
// verification failure is reported as ErrInvalidCredential.
func (c *CredentialService) Verify(token string) (*CredentialClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidCredential
	}
	parsed, err := jwt.ParseWithClaims(token, &CredentialClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidCredential
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		return nil, ErrInvalidCredential
	}
	claims, ok := parsed.Claims.(*CredentialClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidCredential
	}
	if claims.Issuer != credentialIssuer || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}
