package tracker

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bugtrail.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL through database/sql.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into projects(id, name, description, is_archived, created_by)
		 values($1,$2,$3,$4,$5)`,
		p.ID, p.Name, p.Description, p.Archived, p.CreatedBy,
	)
	return err
}

func (s *PGStore) FindProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, description, is_archived, created_by, created_at, updated_at
		   from projects where id=$1`, id)
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Archived, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) UpdateProject(ctx context.Context, p *Project) error {
	res, err := s.db.ExecContext(ctx,
		`update projects
		    set name=$2, description=$3, is_archived=$4, updated_at=now()
		  where id=$1`,
		p.ID, p.Name, p.Description, p.Archived,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) CreateIssue(ctx context.Context, i *Issue) error {
	if i.ID == "" {
		i.ID = ids.New()
	}
	if i.Status == "" {
		i.Status = StatusOpen
	}
	if i.Priority == "" {
		i.Priority = PriorityMedium
	}
	_, err := s.db.ExecContext(ctx,
		`insert into issues(id, project_id, title, description, status, priority, reporter_id, assignee_id)
		 values($1,$2,$3,$4,$5,$6,$7, nullif($8,''))`,
		i.ID, i.ProjectID, i.Title, i.Description, i.Status, i.Priority, i.ReporterID, i.AssigneeID,
	)
	return err
}

func (s *PGStore) FindIssue(ctx context.Context, id string) (*Issue, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, project_id, title, description, status, priority, reporter_id,
		        coalesce(assignee_id, ''), created_at, updated_at, resolved_at, closed_at
		   from issues where id=$1`, id)
	var i Issue
	err := row.Scan(&i.ID, &i.ProjectID, &i.Title, &i.Description, &i.Status, &i.Priority,
		&i.ReporterID, &i.AssigneeID, &i.CreatedAt, &i.UpdatedAt, &i.ResolvedAt, &i.ClosedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &i, nil
}

func (s *PGStore) UpdateIssue(ctx context.Context, i *Issue) error {
	res, err := s.db.ExecContext(ctx,
		`update issues
		    set title=$2, description=$3, status=$4, priority=$5,
		        assignee_id=nullif($6,''), resolved_at=$7, closed_at=$8, updated_at=now()
		  where id=$1`,
		i.ID, i.Title, i.Description, i.Status, i.Priority, i.AssigneeID, nullableTime(i.ResolvedAt), nullableTime(i.ClosedAt),
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) CountComments(ctx context.Context, issueID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from comments where issue_id=$1`, issueID).Scan(&n)
	return n, err
}

func (s *PGStore) CreateComment(ctx context.Context, c *Comment) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into comments(id, issue_id, author_id, content)
		 values($1,$2,$3,$4)`,
		c.ID, c.IssueID, c.AuthorID, c.Content,
	)
	return err
}

func (s *PGStore) FindComment(ctx context.Context, id string) (*Comment, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, issue_id, author_id, content, created_at, updated_at
		   from comments where id=$1`, id)
	var c Comment
	err := row.Scan(&c.ID, &c.IssueID, &c.AuthorID, &c.Content, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *PGStore) UpdateComment(ctx context.Context, c *Comment) error {
	res, err := s.db.ExecContext(ctx,
		`update comments set content=$2, updated_at=now() where id=$1`,
		c.ID, c.Content,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
