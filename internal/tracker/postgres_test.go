package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
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

func TestPGCreateIssueDefaults(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("insert into issues").
		WithArgs(sqlmock.AnyArg(), "p1", "crash", "", string(StatusOpen), string(PriorityMedium), "dev", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	issue := &Issue{ProjectID: "p1", Title: "crash", ReporterID: "dev"}
	if err := store.CreateIssue(context.Background(), issue); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if issue.ID == "" {
		t.Fatal("id not generated")
	}
	if issue.Status != StatusOpen || issue.Priority != PriorityMedium {
		t.Fatalf("defaults not applied: %+v", issue)
	}
}

func TestPGFindIssue(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery("select (.+) from issues where id=").
		WithArgs("i1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "project_id", "title", "description", "status", "priority",
			"reporter_id", "assignee_id", "created_at", "updated_at", "resolved_at", "closed_at",
		}).AddRow("i1", "p1", "crash", "boom", "in_progress", "high", "dev", "", now, now, nil, nil))

	issue, err := store.FindIssue(context.Background(), "i1")
	if err != nil {
		t.Fatalf("FindIssue: %v", err)
	}
	if issue.Status != StatusInProgress || issue.Priority != PriorityHigh {
		t.Fatalf("unexpected issue: %+v", issue)
	}
	if issue.ResolvedAt != nil || issue.ClosedAt != nil {
		t.Fatal("timestamps must be nil")
	}
}

func TestPGFindIssueNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select (.+) from issues where id=").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.FindIssue(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestPGUpdateIssueNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("update issues").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateIssue(context.Background(), &Issue{ID: "ghost", Status: StatusOpen, Priority: PriorityLow})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestPGCountComments(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select count").
		WithArgs("i1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := store.CountComments(context.Background(), "i1")
	if err != nil {
		t.Fatalf("CountComments: %v", err)
	}
	if n != 3 {
		t.Fatalf("count=%d, want 3", n)
	}
}
