package tracker

import (
	"fmt"
	"strings"
)

// validTransitions is the issue status state machine. Same-status updates
// are treated as no-ops, not transitions.
var validTransitions = map[Status][]Status{
	StatusOpen:       {StatusInProgress, StatusClosed},
	StatusInProgress: {StatusResolved, StatusOpen},
	StatusResolved:   {StatusClosed, StatusReopened},
	StatusClosed:     {StatusReopened},
	StatusReopened:   {StatusInProgress, StatusResolved},
}

// ValidateTransition rejects status moves outside the allowed set.
func ValidateTransition(current, next Status) error {
	if current == next {
		return nil
	}
	allowed := validTransitions[current]
	for _, s := range allowed {
		if s == next {
			return nil
		}
	}
	names := make([]string, 0, len(allowed))
	for _, s := range allowed {
		names = append(names, string(s))
	}
	return fmt.Errorf("%w: cannot move from %s to %s (valid: %s)",
		ErrInvalidTransition, current, next, strings.Join(names, ", "))
}

// ValidateCriticalClosure enforces that critical issues carry at least one
// comment before they can be closed.
func ValidateCriticalClosure(priority Priority, next Status, commentCount int) error {
	if priority == PriorityCritical && next == StatusClosed && commentCount == 0 {
		return fmt.Errorf("%w: critical issues cannot be closed without at least one comment", ErrInvalidTransition)
	}
	return nil
}
