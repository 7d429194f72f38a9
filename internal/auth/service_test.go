package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testService(t *testing.T, opts ...ServiceOption) (*Service, *MemStore) {
	t.Helper()
	store := NewMemStore()
	opts = append([]ServiceOption{WithBcryptCost(4)}, opts...)
	svc, err := NewService(store, testCodec(t), opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func registerAccount(t *testing.T, svc *Service, username, email string, role Role) *Account {
	t.Helper()
	account, err := svc.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    email,
		Password: "hunter22!",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
	return account
}

func TestRegisterDefaultsAndValidation(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	account := registerAccount(t, svc, "alice", "alice@example.com", "")
	if account.Role != RoleDeveloper {
		t.Errorf("default role=%q, want developer", account.Role)
	}
	if !account.Active {
		t.Error("new accounts must start active")
	}
	if account.PasswordHash == "hunter22!" {
		t.Error("password stored in plaintext")
	}

	cases := []struct {
		name string
		in   RegisterInput
	}{
		{"missing username", RegisterInput{Email: "x@example.com", Password: "hunter22!"}},
		{"bad email", RegisterInput{Username: "bob", Email: "nope", Password: "hunter22!"}},
		{"short password", RegisterInput{Username: "bob", Email: "bob@example.com", Password: "short"}},
		{"unknown role", RegisterInput{Username: "bob", Email: "bob@example.com", Password: "hunter22!", Role: "superuser"}},
	}
	for _, tc := range cases {
		if _, err := svc.Register(ctx, tc.in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: err=%v, want ErrInvalidInput", tc.name, err)
		}
	}
}

func TestRegisterConflicts(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	registerAccount(t, svc, "alice", "alice@example.com", RoleDeveloper)

	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "other@example.com", Password: "hunter22!"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate username: err=%v, want ErrConflict", err)
	}
	_, err = svc.Register(ctx, RegisterInput{Username: "alice2", Email: "alice@example.com", Password: "hunter22!"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate email: err=%v, want ErrConflict", err)
	}
}

func TestLoginSuccess(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	registerAccount(t, svc, "alice", "alice@example.com", RoleDeveloper)

	account, pair, err := svc.Login(ctx, "Alice@Example.COM", "hunter22!", "10.0.0.1", "cli/1.0")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if account.LastLogin == nil {
		t.Error("last login not stamped")
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("both tokens expected")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("access and refresh must differ")
	}

	sessions, err := svc.ListSessions(ctx, account.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions=%d, want 1", len(sessions))
	}
	if sessions[0].IP != "10.0.0.1" || sessions[0].UserAgent != "cli/1.0" {
		t.Errorf("session device info not recorded: %+v", sessions[0])
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	registerAccount(t, svc, "alice", "alice@example.com", RoleDeveloper)

	_, _, err := svc.Login(ctx, "alice@example.com", "wrong", "", "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err=%v, want ErrUnauthorized", err)
	}
}

func TestLoginUnknownAccount(t *testing.T) {
	svc, _ := testService(t)
	// Unknown email reads identically to a bad password.
	_, _, err := svc.Login(context.Background(), "ghost@example.com", "whatever1", "", "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err=%v, want ErrUnauthorized", err)
	}
}

func TestLoginLockout(t *testing.T) {
	svc, store := testService(t, WithMaxLoginAttempts(3), WithLockoutDuration(30*time.Minute))
	ctx := context.Background()
	account := registerAccount(t, svc, "alice", "alice@example.com", RoleDeveloper)

	for i := 0; i < 2; i++ {
		if _, _, err := svc.Login(ctx, "alice@example.com", "wrong", "", ""); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("attempt %d: err=%v, want ErrUnauthorized", i+1, err)
		}
	}

	// Third failure crosses the threshold.
	_, _, err := svc.Login(ctx, "alice@example.com", "wrong", "", "")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("threshold attempt: err=%v, want ErrAccountLocked", err)
	}

	locked, err := store.Accounts().Find(ctx, account.ID)
	if err != nil {
		t.Fatal(err)
	}
	if locked.FailedAttempts != 3 || locked.LockedUntil == nil {
		t.Fatalf("after threshold: attempts=%d lockedUntil=%v", locked.FailedAttempts, locked.LockedUntil)
	}

	// Attempts against a locked account are rejected before the password
	// comparison, so even the correct password fails and neither the
	// counter nor the deadline moves.
	_, _, err = svc.Login(ctx, "alice@example.com", "hunter22!", "", "")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("locked attempt: err=%v, want ErrAccountLocked", err)
	}

	after, err := store.Accounts().Find(ctx, account.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.FailedAttempts != locked.FailedAttempts {
		t.Fatalf("locked attempt incremented the counter: %d -> %d", locked.FailedAttempts, after.FailedAttempts)
	}
	if after.LockedUntil == nil || !after.LockedUntil.Equal(*locked.LockedUntil) {
		t.Fatalf("locked attempt moved the deadline: %v -> %v", locked.LockedUntil, after.LockedUntil)
	}
}

func TestLoginLockoutExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc, _ := testService(t,
		WithMaxLoginAttempts(1),
		WithLockoutDuration(30*time.Minute),
		WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()
	registerAccount(t, svc, "alice", "alice@example.com", RoleDeveloper)

	if _, _, err := svc.Login(ctx, "alice@example.com", "wrong", "", ""); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("err=%v, want ErrAccountLocked", err)
	}

	// After the window the counter resets through a successful login.
	now = now.Add(31 * time.Minute)
	if _, _, err := svc.Login(ctx, "alice@example.com", "hunter22!", "", ""); err != nil {
		t.Fatalf("post-lockout login: %v", err)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, store := testService(t)
	ctx := context.Background()
	account := registerAccount(t, svc, "alice", "alice@example.com", RoleDeveloper)
	store.SetActive(account.ID, false)

	_, _, err := svc.Login(ctx, "alice@example.com", "hunter22!", "", "")
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("err=%v, want ErrAccountInactive", err)
	}
}

func TestRefreshIssuesNewAccessOnly(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	registerAccount(t, svc, "alice", "alice@example.com", RoleDeveloper)
	_, pair, err := svc.Login(ctx, "alice@example.com", "hunter22!", "", "")
	if err != nil {
		t.Fatal(err)
	}

	refreshed, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.AccessToken == "" {
		t.Fatal("expected a new access token")
	}
	// The refresh token is not rotated.
	if refreshed.RefreshToken != pair.RefreshToken {
		t.Fatal("refresh token must be returned unchanged")
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	registerAccount(t, svc, "alice", "alice@example.com", RoleDeveloper)
	_, pair, err := svc.Login(ctx, "alice@example.com", "hunter22!", "", "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err=%v, want ErrUnauthorized", err)
	}
}

func TestLogoutRevokesBothTokens(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	account := registerAccount(t, svc, "alice", "alice@example.com", RoleDeveloper)
	_, pair, err := svc.Login(ctx, "alice@example.com", "hunter22!", "", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Logout(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, err := svc.CurrentUser(ctx, pair.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("access after logout: err=%v, want ErrUnauthorized", err)
	}
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refresh after logout: err=%v, want ErrUnauthorized", err)
	}

	sessions, err := svc.ListSessions(ctx, account.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 {
		t.Fatalf("sessions=%d, want 0", len(sessions))
	}

	// Idempotent: a second logout with the same tokens is not an error.
	if err := svc.Logout(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("repeated Logout: %v", err)
	}
}

func TestLogoutAllInvalidatesEveryDevice(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	account := registerAccount(t, svc, "alice", "alice@example.com", RoleDeveloper)

	_, laptop, err := svc.Login(ctx, "alice@example.com", "hunter22!", "10.0.0.1", "laptop")
	if err != nil {
		t.Fatal(err)
	}
	_, phone, err := svc.Login(ctx, "alice@example.com", "hunter22!", "10.0.0.2", "phone")
	if err != nil {
		t.Fatal(err)
	}

	sessions, _ := svc.ListSessions(ctx, account.ID)
	if len(sessions) != 2 {
		t.Fatalf("sessions=%d, want 2", len(sessions))
	}

	if err := svc.LogoutAll(ctx, account.ID); err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}

	for name, pair := range map[string]TokenPair{"laptop": laptop, "phone": phone} {
		if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("%s refresh after logout-all: err=%v, want ErrUnauthorized", name, err)
		}
	}
	sessions, _ = svc.ListSessions(ctx, account.ID)
	if len(sessions) != 0 {
		t.Fatalf("sessions=%d, want 0", len(sessions))
	}
}

func TestCurrentUser(t *testing.T) {
	svc, store := testService(t)
	ctx := context.Background()
	account := registerAccount(t, svc, "alice", "alice@example.com", RoleManager)
	_, pair, err := svc.Login(ctx, "alice@example.com", "hunter22!", "", "")
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.CurrentUser(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if got.ID != account.ID || got.Role != RoleManager {
		t.Fatalf("wrong account resolved: %+v", got)
	}

	// Refresh tokens cannot authenticate requests.
	if _, err := svc.CurrentUser(ctx, pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refresh as bearer: err=%v, want ErrUnauthorized", err)
	}

	// Deactivation invalidates the still-unexpired token.
	store.SetActive(account.ID, false)
	if _, err := svc.CurrentUser(ctx, pair.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("inactive account: err=%v, want ErrUnauthorized", err)
	}
}
