package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bugtrail.org/internal/auth"
	"bugtrail.org/internal/perm"
)

// Service applies the issue workflow rules on top of the permission engine.
// Every mutating operation is gated by a permission decision before any
// state changes.
type Service struct {
	store  Store
	engine *perm.Engine
	now    func() time.Time
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

func NewService(store Store, engine *perm.Engine, opts ...ServiceOption) *Service {
	s := &Service{store: store, engine: engine, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateProject is allowed for managers and admins.
func (s *Service) CreateProject(ctx context.Context, actor *auth.Account, name, description string) (*Project, error) {
	if err := s.engine.RequirePermission(ctx, actor, perm.ActionCreateProject, ""); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", auth.ErrInvalidInput)
	}
	project := &Project{Name: name, Description: description, CreatedBy: actor.ID}
	if err := s.store.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// ArchiveProject soft-deletes a project; same permission rule as editing.
func (s *Service) ArchiveProject(ctx context.Context, actor *auth.Account, projectID string) (*Project, error) {
	if err := s.engine.RequirePermission(ctx, actor, perm.ActionArchiveProject, projectID); err != nil {
		return nil, err
	}
	project, err := s.store.FindProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	project.Archived = true
	if err := s.store.UpdateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// CreateIssue is open to any authenticated active account.
func (s *Service) CreateIssue(ctx context.Context, actor *auth.Account, projectID, title, description string, priority Priority, assigneeID string) (*Issue, error) {
	if err := s.engine.RequirePermission(ctx, actor, perm.ActionCreateIssue, ""); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: issue title is required", auth.ErrInvalidInput)
	}
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", auth.ErrInvalidInput, priority)
	}
	if _, err := s.store.FindProject(ctx, projectID); err != nil {
		return nil, err
	}
	issue := &Issue{
		ProjectID:   projectID,
		Title:       title,
		Description: description,
		Priority:    priority,
		ReporterID:  actor.ID,
		AssigneeID:  assigneeID,
	}
	if err := s.store.CreateIssue(ctx, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// UpdateIssueStatus moves an issue through its lifecycle. The transition
// table and the critical-closure rule are both enforced; resolved/closed
// stamps are maintained and cleared on reopen.
func (s *Service) UpdateIssueStatus(ctx context.Context, actor *auth.Account, issueID string, next Status) (*Issue, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", auth.ErrInvalidInput, next)
	}
	if err := s.engine.RequirePermission(ctx, actor, perm.ActionEditIssue, issueID); err != nil {
		return nil, err
	}

	issue, err := s.store.FindIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if issue.Status == next {
		return issue, nil
	}
	if err := ValidateTransition(issue.Status, next); err != nil {
		return nil, err
	}
	if next == StatusClosed {
		count, err := s.store.CountComments(ctx, issueID)
		if err != nil {
			return nil, err
		}
		if err := ValidateCriticalClosure(issue.Priority, next, count); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	switch next {
	case StatusResolved:
		issue.ResolvedAt = &now
	case StatusClosed:
		issue.ClosedAt = &now
	case StatusReopened:
		issue.ResolvedAt = nil
		issue.ClosedAt = nil
	}
	issue.Status = next

	if err := s.store.UpdateIssue(ctx, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// AssignIssue changes the assignee; reporters may reassign their own issues
// even without the manager role.
func (s *Service) AssignIssue(ctx context.Context, actor *auth.Account, issueID, assigneeID string) (*Issue, error) {
	if err := s.engine.RequirePermission(ctx, actor, perm.ActionChangeAssignee, issueID); err != nil {
		return nil, err
	}
	issue, err := s.store.FindIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	issue.AssigneeID = assigneeID
	if err := s.store.UpdateIssue(ctx, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// AddComment appends to an issue's discussion.
func (s *Service) AddComment(ctx context.Context, actor *auth.Account, issueID, content string) (*Comment, error) {
	if err := s.engine.RequirePermission(ctx, actor, perm.ActionAddComment, ""); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: comment content is required", auth.ErrInvalidInput)
	}
	if _, err := s.store.FindIssue(ctx, issueID); err != nil {
		return nil, err
	}
	comment := &Comment{IssueID: issueID, AuthorID: actor.ID, Content: content}
	if err := s.store.CreateComment(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// EditComment is strict ownership: only the author (or an admin) may edit.
func (s *Service) EditComment(ctx context.Context, actor *auth.Account, commentID, content string) (*Comment, error) {
	if err := s.engine.RequirePermission(ctx, actor, perm.ActionEditComment, commentID); err != nil {
		return nil, err
	}
	comment, err := s.store.FindComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: comment content is required", auth.ErrInvalidInput)
	}
	comment.Content = content
	if err := s.store.UpdateComment(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}
