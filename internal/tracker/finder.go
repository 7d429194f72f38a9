package tracker

import (
	"context"
	"errors"

	"bugtrail.org/internal/auth"
	"bugtrail.org/internal/perm"
)

var _ perm.ResourceFinder = (*Finder)(nil)

// Finder adapts a tracker Store to the permission engine's read-only view
// of resource ownership.
type Finder struct {
	store Store
}

func NewFinder(store Store) *Finder {
	return &Finder{store: store}
}

func (f *Finder) Project(ctx context.Context, id string) (perm.ProjectRef, error) {
	p, err := f.store.FindProject(ctx, id)
	if err != nil {
		return perm.ProjectRef{}, mapNotFound(err)
	}
	return perm.ProjectRef{ID: p.ID, CreatedBy: p.CreatedBy}, nil
}

func (f *Finder) Issue(ctx context.Context, id string) (perm.IssueRef, error) {
	i, err := f.store.FindIssue(ctx, id)
	if err != nil {
		return perm.IssueRef{}, mapNotFound(err)
	}
	return perm.IssueRef{ID: i.ID, ReporterID: i.ReporterID, AssigneeID: i.AssigneeID}, nil
}

func (f *Finder) Comment(ctx context.Context, id string) (perm.CommentRef, error) {
	c, err := f.store.FindComment(ctx, id)
	if err != nil {
		return perm.CommentRef{}, mapNotFound(err)
	}
	return perm.CommentRef{ID: c.ID, AuthorID: c.AuthorID}, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return auth.ErrNotFound
	}
	return err
}
