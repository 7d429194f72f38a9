// Package httpapi is the transport boundary. It translates typed results
// and named error kinds from the auth core into HTTP statuses and
// machine-readable codes; no business decision lives here.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"bugtrail.org/internal/auth"
	"bugtrail.org/internal/obs"
	"bugtrail.org/internal/tracker"
)

// ReadyProbe checks backing-store readiness (DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options bundles the collaborators the API composes.
type Options struct {
	Auth       *auth.Service
	Tracker    *tracker.Service
	Probe      ReadyProbe
	Version    string
	LoginBurst int
	LoginRate  int
}

// API is the HTTP layer.
type API struct {
	mux     *http.ServeMux
	auth    *auth.Service
	tracker *tracker.Service
	probe   ReadyProbe
	version string
}

func New(opts Options) *API {
	a := &API{
		mux:     http.NewServeMux(),
		auth:    opts.Auth,
		tracker: opts.Tracker,
		probe:   opts.Probe,
		version: opts.Version,
	}

	a.mux.HandleFunc("/healthz", a.healthz)
	a.mux.HandleFunc("/readyz", a.ready)
	a.mux.Handle("/metrics", obs.Handler())

	loginBurst, loginRate := opts.LoginBurst, opts.LoginRate
	if loginBurst <= 0 {
		loginBurst = 5
	}
	if loginRate <= 0 {
		loginRate = 5
	}

	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.Handle("/v1/auth/login", LoginRateLimit(http.HandlerFunc(a.handleLogin), loginBurst, loginRate))
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/logout-all", a.handleLogoutAll)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/v1/auth/sessions", a.handleSessions)

	a.mux.HandleFunc("/v1/projects", a.handleProjects)
	a.mux.HandleFunc("/v1/projects/", a.handleProjectResource)
	a.mux.HandleFunc("/v1/issues", a.handleIssues)
	a.mux.HandleFunc("/v1/issues/", a.handleIssueResource)
	a.mux.HandleFunc("/v1/comments/", a.handleCommentResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler chain for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "bugtrail-api",
		"version": a.version,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func nullableTimeString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
