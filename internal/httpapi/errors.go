package httpapi

import (
	"errors"
	"net/http"

	"bugtrail.org/internal/auth"
	"bugtrail.org/internal/obs"
	"bugtrail.org/internal/tracker"
)

// Machine-readable error codes carried alongside the HTTP status.
const (
	codeUnauthorized      = "UNAUTHORIZED"
	codeTokenExpired      = "TOKEN_EXPIRED"
	codeForbidden         = "FORBIDDEN"
	codeInsufficientPerms = "INSUFFICIENT_PERMISSIONS"
	codeConflict          = "CONFLICT"
	codeNotFound          = "NOT_FOUND"
	codeValidation        = "VALIDATION_ERROR"
	codeInvalidTransition = "INVALID_STATE_TRANSITION"
	codeInternal          = "INTERNAL_ERROR"
)

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	body := map[string]any{
		"error": msg,
		"code":  code,
	}
	if rid := requestIDFrom(r.Context()); rid != "" {
		body["request_id"] = rid
	}
	writeJSON(w, status, body)
}

// writeServiceError maps a service-layer error kind onto a status and code.
// Unknown errors are logged with request context and surfaced as an opaque
// 500 so internals never leak to clients.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, r, http.StatusUnauthorized, codeTokenExpired, "token has expired")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrAccountLocked):
		writeError(w, r, http.StatusForbidden, codeForbidden, err.Error())
	case errors.Is(err, auth.ErrAccountInactive):
		writeError(w, r, http.StatusForbidden, codeForbidden, "account is inactive")
	case errors.Is(err, auth.ErrInsufficientPermissions):
		writeError(w, r, http.StatusForbidden, codeInsufficientPerms, "insufficient permissions")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, codeConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, tracker.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, "resource not found")
	case errors.Is(err, tracker.ErrInvalidTransition):
		writeError(w, r, http.StatusBadRequest, codeInvalidTransition, err.Error())
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
	default:
		obs.LogEvent("error", "unhandled service error", map[string]any{
			"error":      err.Error(),
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": requestIDFrom(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, r, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
}
