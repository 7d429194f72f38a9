package httpapi

import (
	"net/http"
	"strings"

	"bugtrail.org/internal/auth"
)

// publicPaths are reachable without a bearer token.
var publicPaths = map[string]bool{
	"/healthz":          true,
	"/readyz":           true,
	"/metrics":          true,
	"/v1/auth/register": true,
	"/v1/auth/login":    true,
	"/v1/auth/refresh":  true,
}

// withAuth gates every non-public route behind access-token resolution. On
// success the resolved account and the raw token land in the request context
// so handlers and logout can reach them.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := extractBearerToken(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "missing bearer token")
			return
		}

		account, err := a.auth.CurrentUser(r.Context(), token)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		ctx := auth.ContextWithAccount(r.Context(), account)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
