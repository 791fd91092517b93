package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"gatekeep.org/internal/auth"
)

const (
	authHeader     = "Authorization"
	bearerScheme   = "Bearer "
	clientIDHeader = "X-Client-Id"
	tokenCookie    = "access_token"
)

// requestInfo extracts the identification material the gate consumes: the
// optional explicit client id, Origin/Referer for fallback resolution, and
// the bearer credential from the Authorization header or, failing that, the
// access_token cookie.
func requestInfo(r *http.Request) auth.RequestInfo {
	info := auth.RequestInfo{
		ClientID: strings.TrimSpace(r.Header.Get(clientIDHeader)),
		Origin:   strings.TrimSpace(r.Header.Get("Origin")),
		Referer:  strings.TrimSpace(r.Header.Get("Referer")),
	}
	if token := extractBearerToken(r.Header.Get(authHeader)); token != "" {
		info.Bearer = token
		return info
	}
	if c, err := r.Cookie(tokenCookie); err == nil {
		info.Bearer = strings.TrimSpace(c.Value)
	}
	return info
}

func extractBearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearerScheme)) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerScheme):])
}

// writeAuthError maps a gate or service error onto its HTTP status. The
// authentication chain reads uniformly as 401; only a caller who proved who
// they are but lacks the claim sees 403.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInsufficientClaims):
		writeError(w, r, http.StatusForbidden, "insufficient claims")
	case errors.Is(err, auth.ErrUnknownClient),
		errors.Is(err, auth.ErrClientUnresolvable),
		errors.Is(err, auth.ErrNoCredential),
		errors.Is(err, auth.ErrInvalidCredential),
		errors.Is(err, auth.ErrSessionNotFound),
		errors.Is(err, auth.ErrSessionExpired),
		errors.Is(err, auth.ErrAccountDisabled),
		errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrNoMatchingScope):
		writeError(w, r, http.StatusInternalServerError, "authorization error")
	default:
		writeError(w, r, http.StatusInternalServerError, "authentication error")
	}
}

// writeServiceError maps lifecycle/rbac errors for handler bodies.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, auth.ErrInvalidClaim):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrTokenNotFound),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenMismatch),
		errors.Is(err, auth.ErrActionTypeMismatch):
		writeError(w, r, http.StatusBadRequest, "invalid or expired token")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, "conflict")
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, auth.ErrSessionNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrAccountDisabled):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	default:
		writeError(w, r, http.StatusInternalServerError, "operation failed")
	}
}
