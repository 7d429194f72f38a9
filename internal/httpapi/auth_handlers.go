package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"bugtrail.org/internal/audit"
	"bugtrail.org/internal/auth"
	"bugtrail.org/internal/obs"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, "invalid JSON body")
		return false
	}
	return true
}

type accountResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
	LastLogin string `json:"last_login,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toAccountResponse(a *auth.Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		Role:      string(a.Role),
		Active:    a.Active,
		LastLogin: nullableTimeString(a.LastLogin),
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	AccessExpiresAt  string `json:"access_expires_at"`
	RefreshExpiresAt string `json:"refresh_expires_at"`
}

func toTokenResponse(p auth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        "bearer",
		AccessExpiresAt:  p.AccessExpiresAt.UTC().Format(time.RFC3339),
		RefreshExpiresAt: p.RefreshExpiresAt.UTC().Format(time.RFC3339),
	}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	role, ok := auth.ParseRole(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, codeValidation, "unknown role")
		return
	}

	account, err := a.auth.Register(r.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     role,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "account.registered", map[string]any{
		"new_account_id": account.ID,
		"username":       account.Username,
		"role":           string(account.Role),
	})
	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	account, pair, err := a.auth.Login(r.Context(), req.Email, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAccountLocked):
			obs.CountLogin("locked")
			obs.CountLockout()
		case errors.Is(err, auth.ErrUnauthorized):
			obs.CountLogin("failure")
		}
		_ = audit.LogEvent(r.Context(), "login.failed", map[string]any{
			"email": req.Email,
			"ip":    clientIP(r),
		})
		writeServiceError(w, r, err)
		return
	}

	obs.CountLogin("success")
	obs.CountTokenIssued(string(auth.TokenClassAccess))
	obs.CountTokenIssued(string(auth.TokenClassRefresh))
	_ = audit.LogEvent(r.Context(), "login.succeeded", map[string]any{
		"login_account_id": account.ID,
		"ip":               clientIP(r),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"account": toAccountResponse(account),
		"tokens":  toTokenResponse(pair),
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	obs.CountTokenIssued(string(auth.TokenClassAccess))
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	accessToken, ok := auth.TokenFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "missing bearer token")
		return
	}

	if err := a.auth.Logout(r.Context(), accessToken, req.RefreshToken); err != nil {
		writeServiceError(w, r, err)
		return
	}

	obs.CountRevocation()
	_ = audit.LogEvent(r.Context(), "logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	account, ok := auth.AccountFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "authentication required")
		return
	}

	if err := a.auth.LogoutAll(r.Context(), account.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	obs.CountRevocation()
	_ = audit.LogEvent(r.Context(), "logout.all", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "all_sessions_invalidated"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	account, ok := auth.AccountFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	account, ok := auth.AccountFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "authentication required")
		return
	}

	sessions, err := a.auth.ListSessions(r.Context(), account.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, map[string]any{
			"id":            s.ID,
			"ip":            s.IP,
			"user_agent":    s.UserAgent,
			"created_at":    s.CreatedAt.UTC().Format(time.RFC3339),
			"expires_at":    s.ExpiresAt.UTC().Format(time.RFC3339),
			"last_activity": s.LastActivity.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}
