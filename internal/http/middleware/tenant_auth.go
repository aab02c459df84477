package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/clinvia/revenue-engine/internal/apperrors"
	"github.com/clinvia/revenue-engine/internal/tenancy"
)

// ContextResolver exchanges a bearer token for a verified tenant context.
type ContextResolver interface {
	ResolveContext(ctx context.Context, bearerToken string) (tenancy.Context, error)
}

// TenantAuth exchanges the bearer token for a tenant context and stores it
// on the request. A bad token is 401; a valid token without an active clinic
// membership is 403, so a removed user learns nothing about other tenants.
func TenantAuth(vault ContextResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			tc, err := vault.ResolveContext(r.Context(), strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				switch {
				case errors.Is(err, apperrors.ErrAuthentication):
					http.Error(w, "invalid token", http.StatusUnauthorized)
				case errors.Is(err, apperrors.ErrAuthorization):
					http.Error(w, "no active clinic membership", http.StatusForbidden)
				default:
					http.Error(w, "server error", http.StatusInternalServerError)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(tenancy.WithContext(r.Context(), tc)))
		})
	}
}

// RequireRole restricts a route to the given roles. Must run after
// TenantAuth.
func RequireRole(roles ...tenancy.Role) func(http.Handler) http.Handler {
	allowed := map[tenancy.Role]struct{}{}
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, ok := tenancy.FromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[tc.Role]; !ok {
				http.Error(w, "insufficient role", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
