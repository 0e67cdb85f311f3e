package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"surveyhub.org/internal/audit"
	"surveyhub.org/internal/auth"
	"surveyhub.org/internal/ids"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// authenticated requires a valid access token and attaches the principal.
func (a *API) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="surveyhub"`)
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		principal, err := a.session.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrToken) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="surveyhub", error="invalid_token"`)
			}
			a.handleError(w, r, err)
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = audit.WithActor(ctx, principal.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission admits principals holding any of perms.
func (a *API) requirePermission(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "authentication required")
				return
			}
			err := a.resolver.Require(r.Context(), principal.UserID, perms...)
			if err != nil && !errors.Is(err, auth.ErrForbidden) {
				a.handleError(w, r, err)
				return
			}
			if err != nil {
				_ = audit.LogEvent(r.Context(), "authz.denied",
					zap.String("path", r.URL.Path),
					zap.Strings("required", perms))
				payload := map[string]any{
					"error":    "insufficient permissions",
					"required": perms,
				}
				if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
					payload["request_id"] = rid
				}
				writeJSON(w, http.StatusForbidden, payload)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireOrganization confines routes carrying {organizationID} to the
// principal's own tenant.
func (a *API) requireOrganization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		orgID := r.PathValue("organizationID")
		if !ids.Valid(orgID) {
			writeError(w, r, http.StatusBadRequest, "invalid organization id")
			return
		}
		if err := auth.RequireSameOrganization(principal, orgID); err != nil {
			a.handleError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
