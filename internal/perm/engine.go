// Package perm decides whether an account may perform a named action,
// optionally against a specific resource. Decisions are pure functions of
// current data: nothing is cached, because resource ownership can change
// between calls.
package perm

import (
	"context"
	"fmt"
	"strings"

	"bugtrail.org/internal/auth"
)

// ProjectRef exposes the ownership fields of a project.
type ProjectRef struct {
	ID        string
	CreatedBy string
}

// IssueRef exposes the ownership fields of an issue.
type IssueRef struct {
	ID         string
	ReporterID string
	AssigneeID string
}

// CommentRef exposes the ownership fields of a comment.
type CommentRef struct {
	ID       string
	AuthorID string
}

// ResourceFinder provides read-only access to the ownership fields the
// engine needs. The data-access layer that owns projects, issues, and
// comments implements it.
type ResourceFinder interface {
	Project(ctx context.Context, id string) (ProjectRef, error)
	Issue(ctx context.Context, id string) (IssueRef, error)
	Comment(ctx context.Context, id string) (CommentRef, error)
}

// Engine evaluates the role- and ownership-based decision table.
type Engine struct {
	resources ResourceFinder
}

func NewEngine(resources ResourceFinder) *Engine {
	return &Engine{resources: resources}
}

// Allowed evaluates the decision table for the account and action. Admin
// passes every check unconditionally. Resource-dependent actions load the
// resource's ownership fields; a missing resource surfaces auth.ErrNotFound.
func (e *Engine) Allowed(ctx context.Context, account *auth.Account, action Action, resourceID string) (bool, error) {
	if account == nil {
		return false, auth.ErrUnauthorized
	}
	if account.Role == auth.RoleAdmin {
		return true, nil
	}

	switch action {
	case ActionCreateProject:
		return account.Role == auth.RoleManager, nil

	case ActionEditProject, ActionArchiveProject:
		project, err := e.resources.Project(ctx, resourceID)
		if err != nil {
			return false, err
		}
		return account.Role == auth.RoleManager || project.CreatedBy == account.ID, nil

	case ActionCreateIssue, ActionAddComment:
		// Any authenticated active account.
		return account.Active, nil

	case ActionEditIssue:
		issue, err := e.resources.Issue(ctx, resourceID)
		if err != nil {
			return false, err
		}
		return account.Role == auth.RoleManager ||
			issue.ReporterID == account.ID ||
			issue.AssigneeID == account.ID, nil

	case ActionChangeAssignee:
		issue, err := e.resources.Issue(ctx, resourceID)
		if err != nil {
			return false, err
		}
		return account.Role == auth.RoleManager || issue.ReporterID == account.ID, nil

	case ActionEditComment:
		// Strict ownership: no role escalation below admin.
		comment, err := e.resources.Comment(ctx, resourceID)
		if err != nil {
			return false, err
		}
		return comment.AuthorID == account.ID, nil

	default:
		return false, fmt.Errorf("%w: unknown action", auth.ErrInvalidInput)
	}
}

// RequirePermission fails with auth.ErrInsufficientPermissions when the
// decision table denies the action.
func (e *Engine) RequirePermission(ctx context.Context, account *auth.Account, action Action, resourceID string) error {
	if action.NeedsResource() && strings.TrimSpace(resourceID) == "" {
		return fmt.Errorf("%w: %s requires a resource id", auth.ErrInvalidInput, action)
	}
	allowed, err := e.Allowed(ctx, account, action, resourceID)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: not allowed to %s", auth.ErrInsufficientPermissions, strings.ReplaceAll(action.String(), "_", " "))
	}
	return nil
}

// RequireRole fails with auth.ErrInsufficientPermissions when the account's
// role is not among the allowed set.
func (e *Engine) RequireRole(account *auth.Account, roles ...auth.Role) error {
	if account == nil {
		return auth.ErrUnauthorized
	}
	for _, role := range roles {
		if account.Role == role {
			return nil
		}
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.String())
	}
	return fmt.Errorf("%w: requires one of roles %s", auth.ErrInsufficientPermissions, strings.Join(names, ", "))
}
