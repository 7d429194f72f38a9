package auth

import (
	"context"
	"sync"
	"time"

	"bugtrail.org/internal/ids"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory Store used for tests and local development. All
// operations are guarded by a single mutex, which also makes the
// failed-attempt increment and InvalidateAll atomic.
type MemStore struct {
	mu          sync.Mutex
	accounts    map[string]*Account
	sessions    map[string]*Session
	revocations map[string]*RevocationEntry
}

func NewMemStore() *MemStore {
	return &MemStore{
		accounts:    make(map[string]*Account),
		sessions:    make(map[string]*Session),
		revocations: make(map[string]*RevocationEntry),
	}
}

func (m *MemStore) Accounts() AccountStore       { return (*memAccounts)(m) }
func (m *MemStore) Sessions() SessionStore       { return (*memSessions)(m) }
func (m *MemStore) Revocations() RevocationStore { return (*memRevocations)(m) }

type memAccounts MemStore

func (m *memAccounts) Create(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.Username == a.Username || existing.Email == a.Email {
			return ErrConflict
		}
	}
	if a.ID == "" {
		a.ID = ids.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *memAccounts) Find(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) FindByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memAccounts) FindByUsername(_ context.Context, username string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memAccounts) RecordFailedAttempt(_ context.Context, id string, maxAttempts int, deadline time.Time) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return 0, nil, ErrNotFound
	}
	a.FailedAttempts++
	if a.FailedAttempts >= maxAttempts {
		until := deadline.UTC()
		a.LockedUntil = &until
	}
	var lockedUntil *time.Time
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		lockedUntil = &t
	}
	return a.FailedAttempts, lockedUntil, nil
}

func (m *memAccounts) RecordSuccess(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.FailedAttempts = 0
	a.LockedUntil = nil
	at = at.UTC()
	a.LastLogin = &at
	return nil
}

// SetActive flips the active flag; exposed for tests exercising inactive
// account paths.
func (m *MemStore) SetActive(id string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		a.Active = active
	}
}

type memSessions MemStore

func (m *memSessions) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = ids.New()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.LastActivity.IsZero() {
		s.LastActivity = now
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessions) FindByRefreshTokenID(_ context.Context, jti string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.RefreshTokenID == jti {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memSessions) ListByAccount(_ context.Context, accountID string) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for _, s := range m.sessions {
		if s.AccountID == accountID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memSessions) InvalidateAll(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.AccountID != accountID {
			continue
		}
		if _, exists := m.revocations[s.RefreshTokenID]; !exists {
			m.revocations[s.RefreshTokenID] = &RevocationEntry{
				TokenID:   s.RefreshTokenID,
				Class:     TokenClassRefresh,
				ExpiresAt: s.ExpiresAt,
				RevokedAt: time.Now().UTC(),
			}
		}
		delete(m.sessions, id)
	}
	return nil
}

type memRevocations MemStore

func (m *memRevocations) Revoke(_ context.Context, tokenID string, class TokenClass, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.revocations[tokenID]; exists {
		return nil
	}
	m.revocations[tokenID] = &RevocationEntry{
		TokenID:   tokenID,
		Class:     class,
		ExpiresAt: expiresAt,
		RevokedAt: time.Now().UTC(),
	}
	return nil
}

func (m *memRevocations) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revocations[tokenID]
	return ok, nil
}

func (m *memRevocations) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for id, entry := range m.revocations {
		if entry.ExpiresAt.Before(now) {
			delete(m.revocations, id)
			purged++
		}
	}
	return purged, nil
}
