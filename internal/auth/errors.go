package auth

import "errors"

var (
	// ErrUnauthorized covers bad credentials and bad, revoked, or
	// wrong-class tokens, as well as missing or inactive accounts during
	// token resolution.
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrTokenExpired is distinguished from ErrInvalidToken so callers can
	// prompt a refresh instead of a full re-authentication.
	ErrTokenExpired = errors.New("auth: token expired")

	// ErrInvalidToken indicates a malformed token, bad signature, or
	// missing required claims.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrAccountLocked signals a lockout in effect; the boundary maps it
	// to Forbidden with the locked-until detail.
	ErrAccountLocked = errors.New("auth: account locked")

	// ErrAccountInactive signals a deactivated account.
	ErrAccountInactive = errors.New("auth: account inactive")

	// ErrInsufficientPermissions is returned for authenticated but
	// disallowed actions.
	ErrInsufficientPermissions = errors.New("auth: insufficient permissions")

	ErrConflict     = errors.New("auth: already exists")
	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidInput = errors.New("auth: invalid input")
)
