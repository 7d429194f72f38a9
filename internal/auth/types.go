package auth

import (
	"strings"
	"time"
)

// Role is the closed set of authority levels, ordered developer < manager < admin.
type Role string

const (
	RoleDeveloper Role = "developer"
	RoleManager   Role = "manager"
	RoleAdmin     Role = "admin"
)

// DefaultRole is assigned at registration when no role is supplied.
const DefaultRole = RoleDeveloper

// ParseRole normalizes raw input into a Role. Empty input falls back to the default.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case "":
		return DefaultRole, true
	case RoleDeveloper:
		return RoleDeveloper, true
	case RoleManager:
		return RoleManager, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

func (r Role) String() string { return string(r) }

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	return r == RoleDeveloper || r == RoleManager || r == RoleAdmin
}

// Account represents a registered user of the tracker.
type Account struct {
	ID             string
	Username       string
	Email          string
	PasswordHash   string
	Role           Role
	Active         bool
	FailedAttempts int
	LockedUntil    *time.Time
	LastLogin      *time.Time
	CreatedAt      time.Time
}

// Locked reports whether the account is locked out at the given instant.
func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// Session is one device login, keyed to the refresh token identifier.
type Session struct {
	ID             string
	AccountID      string
	RefreshTokenID string
	IP             string
	UserAgent      string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivity   time.Time
}

// TokenClass distinguishes access from refresh tokens. The two are never
// interchangeable.
type TokenClass string

const (
	TokenClassAccess  TokenClass = "access"
	TokenClassRefresh TokenClass = "refresh"
)

// RevocationEntry records an invalidated token identifier. Entries survive
// session deletion and keep blocking the token until (and past) its natural
// expiry.
type RevocationEntry struct {
	TokenID   string
	Class     TokenClass
	ExpiresAt time.Time
	RevokedAt time.Time
}

// TokenPair is returned from a successful login.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
