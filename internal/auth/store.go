package auth

import (
	"context"
	"time"
)

// Store describes the persistence operations required by the auth core. A
// single implementation is constructed once at composition time and shared;
// commit semantics are the backing store's responsibility.
type Store interface {
	Accounts() AccountStore
	Sessions() SessionStore
	Revocations() RevocationStore
}

// AccountStore manages accounts and their lockout state. Accounts are never
// physically deleted by the auth core.
type AccountStore interface {
	Create(ctx context.Context, a *Account) error
	Find(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)

	// RecordFailedAttempt atomically increments the failed-attempt counter
	// and stamps the given deadline as locked_until once the counter
	// reaches maxAttempts. The caller computes the deadline so one clock
	// governs both the lockout check and the stamp. It returns the
	// post-increment counter and the lockout deadline, if one is now in
	// effect. The increment must be committed before the login response
	// is produced.
	RecordFailedAttempt(ctx context.Context, id string, maxAttempts int, deadline time.Time) (attempts int, lockedUntil *time.Time, err error)

	// RecordSuccess resets the counter, clears the lockout, and stamps the
	// last-login time.
	RecordSuccess(ctx context.Context, id string, at time.Time) error
}

// SessionStore tracks per-login sessions for multi-device logout.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	FindByRefreshTokenID(ctx context.Context, jti string) (*Session, error)
	ListByAccount(ctx context.Context, accountID string) ([]*Session, error)
	Delete(ctx context.Context, id string) error

	// InvalidateAll pushes every session's refresh token id into the
	// revocation ledger and removes the session records, atomically: either
	// all sessions are revoked or none are.
	InvalidateAll(ctx context.Context, accountID string) error
}

// RevocationStore is the blacklist of revoked token identifiers, consulted
// on every decode before claims are trusted.
type RevocationStore interface {
	// Revoke is an idempotent insert; revoking an already-revoked id is a
	// no-op.
	Revoke(ctx context.Context, tokenID string, class TokenClass, expiresAt time.Time) error

	// IsRevoked reports whether an entry exists, regardless of natural
	// expiry. Once revoked, always rejected.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// PurgeExpired discards entries past their natural expiry. Housekeeping
	// only: such entries can never validate again anyway.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
