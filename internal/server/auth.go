package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
	"ideaforge/internal/engine/auth"
)

const adminHeader = "X-Admin-Token"

type agentKey struct{}

func withAgent(ctx context.Context, a domain.Agent) context.Context {
	return context.WithValue(ctx, agentKey{}, a)
}

// agentFromContext returns the caller resolved by the auth middleware.
func agentFromContext(ctx context.Context) (domain.Agent, huma.StatusError) {
	if a, ok := ctx.Value(agentKey{}).(domain.Agent); ok && a.ID != "" {
		return a, nil
	}
	return domain.Agent{}, newAPIError(http.StatusUnauthorized, string(engine.CodeUnauthenticated),
		"missing API key", "include Authorization: Bearer <api_key>")
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware resolves a bearer API key to its agent. Requests without
// credentials pass through; operations that need an agent reject them via
// agentFromContext. A present but invalid credential is rejected here.
func newAuthMiddleware(basePath string, e engine.Engine) func(http.Handler) http.Handler {
	healthPath := path.Join(basePath, "health")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if req.URL.Path == healthPath {
				next.ServeHTTP(w, req)
				return
			}
			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			if authz == "" {
				next.ServeHTTP(w, req)
				return
			}
			token, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, string(engine.CodeUnauthenticated),
					"invalid credentials", "use Authorization: Bearer <api_key>"))
				return
			}
			agent, err := e.Authenticate(req.Context(), token)
			if err != nil {
				var ee *engine.Error
				if errors.As(err, &ee) {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, string(ee.Code), ee.Message, ee.Hint))
					return
				}
				e.Logger.Error("authenticate failed", "error", err)
				respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal", "internal error", ""))
				return
			}
			next.ServeHTTP(w, req.WithContext(withAgent(req.Context(), agent)))
		})
	}
}

// requireAdmin checks an operator token minted by `ideaforge admin token`.
func (h handlers) requireAdmin(token string) huma.StatusError {
	if strings.TrimSpace(h.adminSecret) == "" {
		return newAPIError(http.StatusForbidden, string(engine.CodeForbidden), "admin API disabled", "configure auth.admin_secret to enable it")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return newAPIError(http.StatusUnauthorized, string(engine.CodeUnauthenticated), "missing admin token", "send the token in the "+adminHeader+" header")
	}
	if _, err := auth.VerifyAdminToken(h.adminSecret, token); err != nil {
		return newAPIError(http.StatusUnauthorized, string(engine.CodeUnauthenticated), "invalid admin token", "mint a new one with ideaforge admin token")
	}
	return nil
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
