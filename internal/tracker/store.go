package tracker

import "context"

// Store is the persistence surface for projects, issues, and comments. Only
// the operations the auth/permission core and the workflow service depend on
// live here; the rest of the CRUD surface belongs to the data-access layer.
type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	FindProject(ctx context.Context, id string) (*Project, error)
	UpdateProject(ctx context.Context, p *Project) error

	CreateIssue(ctx context.Context, i *Issue) error
	FindIssue(ctx context.Context, id string) (*Issue, error)
	UpdateIssue(ctx context.Context, i *Issue) error
	CountComments(ctx context.Context, issueID string) (int, error)

	CreateComment(ctx context.Context, c *Comment) error
	FindComment(ctx context.Context, id string) (*Comment, error)
	UpdateComment(ctx context.Context, c *Comment) error
}
