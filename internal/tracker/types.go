package tracker

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("tracker: not found")

	// ErrInvalidTransition covers both disallowed status moves and the
	// critical-closure rule.
	ErrInvalidTransition = errors.New("tracker: invalid state transition")
)

// Status is the issue lifecycle state.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
	StatusReopened   Status = "reopened"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed, StatusReopened:
		return true
	default:
		return false
	}
}

// Priority orders issues by urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// Project groups issues. Archived projects are soft-deleted.
type Project struct {
	ID          string
	Name        string
	Description string
	Archived    bool
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Issue is a tracked bug or task.
type Issue struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	Status      Status
	Priority    Priority
	ReporterID  string
	AssigneeID  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ResolvedAt  *time.Time
	ClosedAt    *time.Time
}

// Comment is one entry in an issue's discussion.
type Comment struct {
	ID        string
	IssueID   string
	AuthorID  string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
