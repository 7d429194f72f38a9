package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"bugtrail.org/internal/audit"
	"bugtrail.org/internal/auth"
	"bugtrail.org/internal/obs"
	"bugtrail.org/internal/tracker"
)

type projectResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Archived    bool   `json:"archived"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at"`
}

func toProjectResponse(p *tracker.Project) projectResponse {
	return projectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Archived:    p.Archived,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type issueResponse struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	ReporterID  string `json:"reporter_id"`
	AssigneeID  string `json:"assignee_id,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	ResolvedAt  string `json:"resolved_at,omitempty"`
	ClosedAt    string `json:"closed_at,omitempty"`
}

func toIssueResponse(i *tracker.Issue) issueResponse {
	return issueResponse{
		ID:          i.ID,
		ProjectID:   i.ProjectID,
		Title:       i.Title,
		Description: i.Description,
		Status:      string(i.Status),
		Priority:    string(i.Priority),
		ReporterID:  i.ReporterID,
		AssigneeID:  i.AssigneeID,
		CreatedAt:   i.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   i.UpdatedAt.UTC().Format(time.RFC3339),
		ResolvedAt:  nullableTimeString(i.ResolvedAt),
		ClosedAt:    nullableTimeString(i.ClosedAt),
	}
}

type commentResponse struct {
	ID        string `json:"id"`
	IssueID   string `json:"issue_id"`
	AuthorID  string `json:"author_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toCommentResponse(c *tracker.Comment) commentResponse {
	return commentResponse{
		ID:        c.ID,
		IssueID:   c.IssueID,
		AuthorID:  c.AuthorID,
		Content:   c.Content,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func actor(w http.ResponseWriter, r *http.Request) (*auth.Account, bool) {
	account, ok := auth.AccountFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "authentication required")
		return nil, false
	}
	return account, true
}

// resourcePath splits "/v1/<kind>/{id}" or "/v1/<kind>/{id}/{sub}" into its
// id and optional trailing segment.
func resourcePath(path, prefix string) (id, sub string, ok bool) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == path || rest == "" {
		return "", "", false
	}
	parts := strings.SplitN(rest, "/", 2)
	id = parts[0]
	if id == "" {
		return "", "", false
	}
	if len(parts) == 2 {
		sub = parts[1]
	}
	return id, sub, true
}

func (a *API) handleProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	account, ok := actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	project, err := a.tracker.CreateProject(r.Context(), account, req.Name, req.Description)
	if err != nil {
		countDenial(err, "create_project")
		writeServiceError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "project.created", map[string]any{"project_id": project.ID})
	writeJSON(w, http.StatusCreated, toProjectResponse(project))
}

func (a *API) handleProjectResource(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := resourcePath(r.URL.Path, "/v1/projects/")
	if !ok || sub != "archive" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	account, ok := actor(w, r)
	if !ok {
		return
	}

	project, err := a.tracker.ArchiveProject(r.Context(), account, id)
	if err != nil {
		countDenial(err, "archive_project")
		writeServiceError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "project.archived", map[string]any{"project_id": project.ID})
	writeJSON(w, http.StatusOK, toProjectResponse(project))
}

func (a *API) handleIssues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	account, ok := actor(w, r)
	if !ok {
		return
	}
	var req struct {
		ProjectID   string `json:"project_id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
		AssigneeID  string `json:"assignee_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	issue, err := a.tracker.CreateIssue(r.Context(), account, req.ProjectID, req.Title, req.Description, tracker.Priority(req.Priority), req.AssigneeID)
	if err != nil {
		countDenial(err, "create_issue")
		writeServiceError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "issue.created", map[string]any{"issue_id": issue.ID})
	writeJSON(w, http.StatusCreated, toIssueResponse(issue))
}

func (a *API) handleIssueResource(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := resourcePath(r.URL.Path, "/v1/issues/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch sub {
	case "status":
		a.handleIssueStatus(w, r, id)
	case "assignee":
		a.handleIssueAssignee(w, r, id)
	case "comments":
		a.handleIssueComments(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) handleIssueStatus(w http.ResponseWriter, r *http.Request, issueID string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	account, ok := actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	issue, err := a.tracker.UpdateIssueStatus(r.Context(), account, issueID, tracker.Status(req.Status))
	if err != nil {
		countDenial(err, "edit_issue")
		writeServiceError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "issue.status_changed", map[string]any{
		"issue_id": issue.ID,
		"status":   string(issue.Status),
	})
	writeJSON(w, http.StatusOK, toIssueResponse(issue))
}

func (a *API) handleIssueAssignee(w http.ResponseWriter, r *http.Request, issueID string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	account, ok := actor(w, r)
	if !ok {
		return
	}
	var req struct {
		AssigneeID string `json:"assignee_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	issue, err := a.tracker.AssignIssue(r.Context(), account, issueID, req.AssigneeID)
	if err != nil {
		countDenial(err, "change_assignee")
		writeServiceError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "issue.assignee_changed", map[string]any{
		"issue_id":    issue.ID,
		"assignee_id": issue.AssigneeID,
	})
	writeJSON(w, http.StatusOK, toIssueResponse(issue))
}

func (a *API) handleIssueComments(w http.ResponseWriter, r *http.Request, issueID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	account, ok := actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	comment, err := a.tracker.AddComment(r.Context(), account, issueID, req.Content)
	if err != nil {
		countDenial(err, "add_comment")
		writeServiceError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "comment.created", map[string]any{
		"issue_id":   issueID,
		"comment_id": comment.ID,
	})
	writeJSON(w, http.StatusCreated, toCommentResponse(comment))
}

func (a *API) handleCommentResource(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := resourcePath(r.URL.Path, "/v1/comments/")
	if !ok || sub != "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	account, ok := actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	comment, err := a.tracker.EditComment(r.Context(), account, id, req.Content)
	if err != nil {
		countDenial(err, "edit_comment")
		writeServiceError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "comment.edited", map[string]any{"comment_id": comment.ID})
	writeJSON(w, http.StatusOK, toCommentResponse(comment))
}

func countDenial(err error, action string) {
	if errors.Is(err, auth.ErrInsufficientPermissions) {
		obs.CountPermissionDenial(action)
	}
}
