package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return NewPGStore(db), mock
}

func TestPGAccountCreateConflict(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("insert into accounts").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"})

	err := store.Accounts().Create(context.Background(), &Account{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "$2a$04$hash",
		Role:         RoleDeveloper,
		Active:       true,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err=%v, want ErrConflict", err)
	}
}

func TestPGAccountFindNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select (.+) from accounts where id=").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Accounts().Find(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestPGRecordFailedAttempt(t *testing.T) {
	store, mock := newMockStore(t)
	deadline := time.Now().UTC().Add(30 * time.Minute)
	mock.ExpectQuery("update accounts").
		WithArgs("acct-1", 5, deadline).
		WillReturnRows(sqlmock.NewRows([]string{"failed_attempts", "locked_until"}).
			AddRow(5, deadline))

	attempts, lockedUntil, err := store.Accounts().RecordFailedAttempt(context.Background(), "acct-1", 5, deadline)
	if err != nil {
		t.Fatalf("RecordFailedAttempt: %v", err)
	}
	if attempts != 5 {
		t.Errorf("attempts=%d, want 5", attempts)
	}
	if lockedUntil == nil || !lockedUntil.Equal(deadline) {
		t.Errorf("lockedUntil=%v, want %v", lockedUntil, deadline)
	}
}

func TestPGRecordFailedAttemptBelowThreshold(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("update accounts").
		WithArgs("acct-1", 5, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"failed_attempts", "locked_until"}).
			AddRow(2, nil))

	attempts, lockedUntil, err := store.Accounts().RecordFailedAttempt(context.Background(), "acct-1", 5, time.Now().UTC().Add(30*time.Minute))
	if err != nil {
		t.Fatalf("RecordFailedAttempt: %v", err)
	}
	if attempts != 2 || lockedUntil != nil {
		t.Errorf("attempts=%d lockedUntil=%v, want 2 and nil", attempts, lockedUntil)
	}
}

func TestPGRecordSuccessNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("update accounts").
		WithArgs("missing", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Accounts().RecordSuccess(context.Background(), "missing", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestPGIsRevoked(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select exists").
		WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	revoked, err := store.Revocations().IsRevoked(context.Background(), "jti-1")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if !revoked {
		t.Fatal("expected revoked=true")
	}
}

func TestPGPurgeExpired(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("delete from token_revocations").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := store.Revocations().PurgeExpired(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 4 {
		t.Fatalf("purged=%d, want 4", n)
	}
}

func TestPGInvalidateAllTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into token_revocations").
		WithArgs("acct-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("delete from sessions").
		WithArgs("acct-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	if err := store.Sessions().InvalidateAll(context.Background(), "acct-1"); err != nil {
		t.Fatalf("InvalidateAll: %v", err)
	}
}

func TestPGInvalidateAllRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into token_revocations").
		WithArgs("acct-1").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if err := store.Sessions().InvalidateAll(context.Background(), "acct-1"); err == nil {
		t.Fatal("expected the ledger failure to propagate")
	}
}
