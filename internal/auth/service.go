package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultMaxLoginAttempts = 5
	defaultLockoutDuration  = 30 * time.Minute
	minPasswordLength       = 8
)

// Service composes the credential store, token codec, session tracker, and
// revocation ledger into the register/login/refresh/logout flows. It returns
// typed results and named error kinds; it never renders transport responses.
type Service struct {
	store Store
	codec *Codec
	now   func() time.Time

	maxLoginAttempts int
	lockoutDuration  time.Duration
	bcryptCost       int
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithMaxLoginAttempts sets the failed-attempt threshold that triggers a
// lockout.
func WithMaxLoginAttempts(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxLoginAttempts = n
		}
	}
}

// WithLockoutDuration sets how long an account stays locked.
func WithLockoutDuration(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.lockoutDuration = d
		}
	}
}

// WithBcryptCost tunes the password hashing work factor.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) {
		if cost > 0 {
			s.bcryptCost = cost
		}
	}
}

// NewService constructs the auth orchestrator.
func NewService(store Store, codec *Codec, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: token codec is required")
	}
	s := &Service{
		store:            store,
		codec:            codec,
		now:              time.Now,
		maxLoginAttempts: defaultMaxLoginAttempts,
		lockoutDuration:  defaultLockoutDuration,
		bcryptCost:       DefaultBcryptCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RegisterInput carries the fields needed to create an account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     Role
}

// Register creates a new account. Username and email uniqueness are checked
// independently so either conflict is reported; a race that slips past both
// checks still surfaces ErrConflict from the store's unique constraints.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Account, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	role := in.Role
	if role == "" {
		role = DefaultRole
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, in.Role)
	}

	if _, err := s.store.Accounts().FindByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("%w: username already exists", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if _, err := s.store.Accounts().FindByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already exists", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	account := &Account{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := s.store.Accounts().Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Login authenticates credentials and, on success, issues an access/refresh
// pair and records a session for the device. Two concurrent logins for the
// same account may both succeed and create two sessions; that is the
// multi-device behavior, not a bug.
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (*Account, TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, TokenPair{}, ErrUnauthorized
	}

	account, err := s.store.Accounts().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, TokenPair{}, ErrUnauthorized
		}
		return nil, TokenPair{}, err
	}

	now := s.now().UTC()

	// Lockout short-circuits before any password comparison so attempts
	// against a locked account are not counted.
	if account.Locked(now) {
		return nil, TokenPair{}, lockedError(*account.LockedUntil)
	}

	if !VerifyPassword(account.PasswordHash, password) {
		attempts, lockedUntil, err := s.store.Accounts().RecordFailedAttempt(ctx, account.ID, s.maxLoginAttempts, now.Add(s.lockoutDuration))
		if err != nil {
			return nil, TokenPair{}, err
		}
		if lockedUntil != nil && attempts >= s.maxLoginAttempts {
			return nil, TokenPair{}, lockedError(*lockedUntil)
		}
		return nil, TokenPair{}, ErrUnauthorized
	}

	if !account.Active {
		return nil, TokenPair{}, ErrAccountInactive
	}

	if err := s.store.Accounts().RecordSuccess(ctx, account.ID, now); err != nil {
		return nil, TokenPair{}, err
	}
	account.FailedAttempts = 0
	account.LockedUntil = nil
	account.LastLogin = &now

	accessToken, _, accessExp, err := s.codec.IssueAccess(account.ID, account.Role)
	if err != nil {
		return nil, TokenPair{}, err
	}
	refreshToken, refreshJTI, refreshExp, err := s.codec.IssueRefresh(account.ID, account.Role)
	if err != nil {
		return nil, TokenPair{}, err
	}

	session := &Session{
		AccountID:      account.ID,
		RefreshTokenID: refreshJTI,
		IP:             ip,
		UserAgent:      userAgent,
		ExpiresAt:      refreshExp,
	}
	if err := s.store.Sessions().Create(ctx, session); err != nil {
		return nil, TokenPair{}, err
	}

	return account, TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Refresh mints a new access token from a valid, unrevoked refresh token.
// The refresh token itself is not rotated: it stays valid until its natural
// expiry or an explicit logout. That non-rotation is a deliberate design
// choice, not an oversight.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.codec.Decode(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.TokenType != TokenClassRefresh {
		return TokenPair{}, fmt.Errorf("%w: wrong token class", ErrUnauthorized)
	}

	revoked, err := s.store.Revocations().IsRevoked(ctx, claims.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if revoked {
		return TokenPair{}, fmt.Errorf("%w: token has been revoked", ErrUnauthorized)
	}

	account, err := s.store.Accounts().Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrUnauthorized
		}
		return TokenPair{}, err
	}
	if !account.Active {
		return TokenPair{}, ErrUnauthorized
	}

	accessToken, _, accessExp, err := s.codec.IssueAccess(account.ID, account.Role)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Logout revokes both token identifiers in the ledger and removes the
// session keyed to the refresh token. Revocation entries outlive the session
// so a once-issued token stays blocked until its natural expiry.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	accessClaims, err := s.codec.Decode(accessToken)
	if err != nil {
		return err
	}
	refreshClaims, err := s.codec.Decode(refreshToken)
	if err != nil {
		return err
	}

	ledger := s.store.Revocations()
	if err := ledger.Revoke(ctx, accessClaims.ID, TokenClassAccess, accessClaims.ExpiresAt.Time); err != nil {
		return err
	}
	if err := ledger.Revoke(ctx, refreshClaims.ID, TokenClassRefresh, refreshClaims.ExpiresAt.Time); err != nil {
		return err
	}

	session, err := s.store.Sessions().FindByRefreshTokenID(ctx, refreshClaims.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return s.store.Sessions().Delete(ctx, session.ID)
}

// LogoutAll invalidates every session for the account: all refresh token
// ids land in the revocation ledger and the session records are removed,
// atomically.
func (s *Service) LogoutAll(ctx context.Context, accountID string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	return s.store.Sessions().InvalidateAll(ctx, accountID)
}

// ListSessions returns the account's active sessions (one per device login).
func (s *Service) ListSessions(ctx context.Context, accountID string) ([]*Session, error) {
	return s.store.Sessions().ListByAccount(ctx, accountID)
}

// CurrentUser resolves an access token into an account. It is the universal
// entry gate for every protected operation: decode, class check, revocation
// check, then an active-account lookup.
func (s *Service) CurrentUser(ctx context.Context, token string) (*Account, error) {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenClassAccess {
		return nil, fmt.Errorf("%w: wrong token class", ErrUnauthorized)
	}

	revoked, err := s.store.Revocations().IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, fmt.Errorf("%w: token has been revoked", ErrUnauthorized)
	}

	account, err := s.store.Accounts().Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if !account.Active {
		return nil, ErrUnauthorized
	}
	return account, nil
}

func lockedError(until time.Time) error {
	return fmt.Errorf("%w until %s", ErrAccountLocked, until.UTC().Format(time.RFC3339))
}
