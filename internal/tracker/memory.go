package tracker

import (
	"context"
	"sync"
	"time"

	"bugtrail.org/internal/ids"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory Store used for tests and local development.
type MemStore struct {
	mu       sync.Mutex
	projects map[string]*Project
	issues   map[string]*Issue
	comments map[string]*Comment
}

func NewMemStore() *MemStore {
	return &MemStore{
		projects: make(map[string]*Project),
		issues:   make(map[string]*Issue),
		comments: make(map[string]*Comment),
	}
}

func (m *MemStore) CreateProject(_ context.Context, p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = ids.New()
	}
	stampNew(&p.CreatedAt, &p.UpdatedAt)
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *MemStore) FindProject(_ context.Context, id string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemStore) UpdateProject(_ context.Context, p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *MemStore) CreateIssue(_ context.Context, i *Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i.ID == "" {
		i.ID = ids.New()
	}
	if i.Status == "" {
		i.Status = StatusOpen
	}
	if i.Priority == "" {
		i.Priority = PriorityMedium
	}
	stampNew(&i.CreatedAt, &i.UpdatedAt)
	cp := *i
	m.issues[i.ID] = &cp
	return nil
}

func (m *MemStore) FindIssue(_ context.Context, id string) (*Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.issues[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (m *MemStore) UpdateIssue(_ context.Context, i *Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.issues[i.ID]; !ok {
		return ErrNotFound
	}
	i.UpdatedAt = time.Now().UTC()
	cp := *i
	m.issues[i.ID] = &cp
	return nil
}

func (m *MemStore) CountComments(_ context.Context, issueID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.comments {
		if c.IssueID == issueID {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) CreateComment(_ context.Context, c *Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = ids.New()
	}
	stampNew(&c.CreatedAt, &c.UpdatedAt)
	cp := *c
	m.comments[c.ID] = &cp
	return nil
}

func (m *MemStore) FindComment(_ context.Context, id string) (*Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemStore) UpdateComment(_ context.Context, c *Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[c.ID]; !ok {
		return ErrNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	m.comments[c.ID] = &cp
	return nil
}

func stampNew(created, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = now
	}
}
