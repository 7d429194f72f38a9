package perm

// Action is the closed set of protected operations. Each action carries its
// own resource-context requirement; the engine switches over the set
// exhaustively instead of dispatching through a string-keyed table.
type Action int

const (
	ActionCreateProject Action = iota
	ActionEditProject
	ActionArchiveProject
	ActionCreateIssue
	ActionEditIssue
	ActionChangeAssignee
	ActionAddComment
	ActionEditComment
)

var actionNames = map[Action]string{
	ActionCreateProject:  "create_project",
	ActionEditProject:    "edit_project",
	ActionArchiveProject: "archive_project",
	ActionCreateIssue:    "create_issue",
	ActionEditIssue:      "edit_issue",
	ActionChangeAssignee: "change_assignee",
	ActionAddComment:     "add_comment",
	ActionEditComment:    "edit_comment",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// NeedsResource reports whether the decision depends on a resource's
// ownership fields.
func (a Action) NeedsResource() bool {
	switch a {
	case ActionEditProject, ActionArchiveProject, ActionEditIssue, ActionChangeAssignee, ActionEditComment:
		return true
	default:
		return false
	}
}
