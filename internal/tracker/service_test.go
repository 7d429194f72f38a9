package tracker

import (
	"context"
	"errors"
	"testing"

	"bugtrail.org/internal/auth"
	"bugtrail.org/internal/perm"
)

func testFixture(t *testing.T) (*Service, *MemStore) {
	t.Helper()
	store := NewMemStore()
	engine := perm.NewEngine(NewFinder(store))
	return NewService(store, engine), store
}

func manager(id string) *auth.Account {
	return &auth.Account{ID: id, Role: auth.RoleManager, Active: true}
}

func developer(id string) *auth.Account {
	return &auth.Account{ID: id, Role: auth.RoleDeveloper, Active: true}
}

func seedIssue(t *testing.T, svc *Service, actor *auth.Account, priority Priority) *Issue {
	t.Helper()
	ctx := context.Background()
	project, err := svc.CreateProject(ctx, manager("mgr"), "Core", "")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	issue, err := svc.CreateIssue(ctx, actor, project.ID, "crash on save", "", priority, "")
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	return issue
}

func TestCreateProjectRequiresManager(t *testing.T) {
	svc, _ := testFixture(t)
	ctx := context.Background()

	if _, err := svc.CreateProject(ctx, developer("dev"), "Core", ""); !errors.Is(err, auth.ErrInsufficientPermissions) {
		t.Fatalf("developer: err=%v, want ErrInsufficientPermissions", err)
	}
	project, err := svc.CreateProject(ctx, manager("mgr"), "Core", "main codebase")
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	if project.CreatedBy != "mgr" {
		t.Errorf("CreatedBy=%q, want mgr", project.CreatedBy)
	}
}

func TestArchiveProject(t *testing.T) {
	svc, _ := testFixture(t)
	ctx := context.Background()
	project, err := svc.CreateProject(ctx, manager("mgr"), "Core", "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ArchiveProject(ctx, developer("dev"), project.ID); !errors.Is(err, auth.ErrInsufficientPermissions) {
		t.Fatalf("stranger: err=%v, want ErrInsufficientPermissions", err)
	}

	archived, err := svc.ArchiveProject(ctx, manager("mgr"), project.ID)
	if err != nil {
		t.Fatalf("ArchiveProject: %v", err)
	}
	if !archived.Archived {
		t.Fatal("project not archived")
	}
}

func TestCreateIssueDefaults(t *testing.T) {
	svc, _ := testFixture(t)
	issue := seedIssue(t, svc, developer("dev"), "")

	if issue.Status != StatusOpen {
		t.Errorf("status=%q, want open", issue.Status)
	}
	if issue.Priority != PriorityMedium {
		t.Errorf("priority=%q, want medium", issue.Priority)
	}
	if issue.ReporterID != "dev" {
		t.Errorf("reporter=%q, want dev", issue.ReporterID)
	}
}

func TestCreateIssueUnknownProject(t *testing.T) {
	svc, _ := testFixture(t)
	_, err := svc.CreateIssue(context.Background(), developer("dev"), "ghost", "title", "", PriorityLow, "")
	if !errors.Is(err, ErrNotFound) && !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("err=%v, want not found", err)
	}
}

func TestUpdateIssueStatusHappyPath(t *testing.T) {
	svc, _ := testFixture(t)
	ctx := context.Background()
	dev := developer("dev")
	issue := seedIssue(t, svc, dev, PriorityHigh)

	issue, err := svc.UpdateIssueStatus(ctx, dev, issue.ID, StatusInProgress)
	if err != nil {
		t.Fatalf("open -> in_progress: %v", err)
	}
	issue, err = svc.UpdateIssueStatus(ctx, dev, issue.ID, StatusResolved)
	if err != nil {
		t.Fatalf("in_progress -> resolved: %v", err)
	}
	if issue.ResolvedAt == nil {
		t.Fatal("resolved_at not stamped")
	}
	issue, err = svc.UpdateIssueStatus(ctx, dev, issue.ID, StatusClosed)
	if err != nil {
		t.Fatalf("resolved -> closed: %v", err)
	}
	if issue.ClosedAt == nil {
		t.Fatal("closed_at not stamped")
	}

	issue, err = svc.UpdateIssueStatus(ctx, dev, issue.ID, StatusReopened)
	if err != nil {
		t.Fatalf("closed -> reopened: %v", err)
	}
	if issue.ResolvedAt != nil || issue.ClosedAt != nil {
		t.Fatal("reopen must clear resolved_at and closed_at")
	}
}

func TestUpdateIssueStatusRejectsInvalidMove(t *testing.T) {
	svc, _ := testFixture(t)
	dev := developer("dev")
	issue := seedIssue(t, svc, dev, PriorityLow)

	_, err := svc.UpdateIssueStatus(context.Background(), dev, issue.ID, StatusResolved)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("open -> resolved: err=%v, want ErrInvalidTransition", err)
	}
}

func TestUpdateIssueStatusSameStatusNoOp(t *testing.T) {
	svc, _ := testFixture(t)
	dev := developer("dev")
	issue := seedIssue(t, svc, dev, PriorityLow)

	got, err := svc.UpdateIssueStatus(context.Background(), dev, issue.ID, StatusOpen)
	if err != nil {
		t.Fatalf("same status: %v", err)
	}
	if got.Status != StatusOpen {
		t.Fatalf("status=%q, want open", got.Status)
	}
}

func TestUpdateIssueStatusPermissions(t *testing.T) {
	svc, _ := testFixture(t)
	ctx := context.Background()
	issue := seedIssue(t, svc, developer("reporter"), PriorityLow)

	_, err := svc.UpdateIssueStatus(ctx, developer("stranger"), issue.ID, StatusInProgress)
	if !errors.Is(err, auth.ErrInsufficientPermissions) {
		t.Fatalf("stranger: err=%v, want ErrInsufficientPermissions", err)
	}
	if _, err := svc.UpdateIssueStatus(ctx, manager("mgr"), issue.ID, StatusInProgress); err != nil {
		t.Fatalf("manager: %v", err)
	}
}

func TestCriticalIssueClosureNeedsComment(t *testing.T) {
	svc, _ := testFixture(t)
	ctx := context.Background()
	dev := developer("dev")
	issue := seedIssue(t, svc, dev, PriorityCritical)

	// open -> closed is a legal move, but the critical rule blocks it while
	// the discussion is empty.
	_, err := svc.UpdateIssueStatus(ctx, dev, issue.ID, StatusClosed)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("comment-less closure: err=%v, want ErrInvalidTransition", err)
	}

	if _, err := svc.AddComment(ctx, dev, issue.ID, "root cause: nil map write"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if _, err := svc.UpdateIssueStatus(ctx, dev, issue.ID, StatusClosed); err != nil {
		t.Fatalf("closure after comment: %v", err)
	}
}

func TestAssignIssue(t *testing.T) {
	svc, _ := testFixture(t)
	ctx := context.Background()
	reporter := developer("reporter")
	issue := seedIssue(t, svc, reporter, PriorityLow)

	issue, err := svc.AssignIssue(ctx, reporter, issue.ID, "assignee")
	if err != nil {
		t.Fatalf("reporter reassign: %v", err)
	}
	if issue.AssigneeID != "assignee" {
		t.Fatalf("assignee=%q, want assignee", issue.AssigneeID)
	}

	// The assignee may edit the issue but not hand it to someone else.
	_, err = svc.AssignIssue(ctx, developer("assignee"), issue.ID, "other")
	if !errors.Is(err, auth.ErrInsufficientPermissions) {
		t.Fatalf("assignee reassign: err=%v, want ErrInsufficientPermissions", err)
	}
}

func TestEditCommentOwnership(t *testing.T) {
	svc, _ := testFixture(t)
	ctx := context.Background()
	author := developer("author")
	issue := seedIssue(t, svc, author, PriorityLow)

	comment, err := svc.AddComment(ctx, author, issue.ID, "first draft")
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.EditComment(ctx, manager("mgr"), comment.ID, "rewritten")
	if !errors.Is(err, auth.ErrInsufficientPermissions) {
		t.Fatalf("manager edit: err=%v, want ErrInsufficientPermissions", err)
	}

	edited, err := svc.EditComment(ctx, author, comment.ID, "final version")
	if err != nil {
		t.Fatalf("author edit: %v", err)
	}
	if edited.Content != "final version" {
		t.Fatalf("content=%q", edited.Content)
	}

	admin := &auth.Account{ID: "root", Role: auth.RoleAdmin, Active: true}
	if _, err := svc.EditComment(ctx, admin, comment.ID, "admin override"); err != nil {
		t.Fatalf("admin edit: %v", err)
	}
}
