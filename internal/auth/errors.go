package auth

import "errors"

// Input and format errors.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidClaim = errors.New("invalid claim format")
)

// Not-found errors. Lookups that find nothing return nil values; these are
// raised only by the get-or-fail wrappers.
var (
	ErrNotFound        = errors.New("not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrTokenNotFound   = errors.New("action token not found")
)

// Authorization errors, surfaced by the request gate. Never conflated with
// not-found so that existence information does not leak.
var (
	ErrUnknownClient      = errors.New("unknown client")
	ErrClientUnresolvable = errors.New("client could not be resolved")
	ErrNoCredential       = errors.New("no credential supplied")
	ErrInvalidCredential  = errors.New("invalid credential")
	ErrSessionExpired     = errors.New("session expired")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrInsufficientClaims = errors.New("insufficient claims")
	ErrUnauthorized       = errors.New("unauthorized")
)

// Conflict and bad-request errors.
var (
	ErrConflict           = errors.New("resource conflict")
	ErrTokenExpired       = errors.New("action token expired")
	ErrTokenMismatch      = errors.New("action token does not match request")
	ErrActionTypeMismatch = errors.New("action token type mismatch")
)

// ErrNoMatchingScope indicates a claim-gated caller unexpectedly held no
// qualifying claim at scope-computation time. The claim gate rejects such
// callers earlier, so reaching this is a programming or seeding error.
var ErrNoMatchingScope = errors.New("no matching scope for action and resource")
