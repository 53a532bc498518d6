package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/campusgate/gatepass/internal/api"
	"github.com/campusgate/gatepass/internal/authn"
	"github.com/campusgate/gatepass/internal/model"
)

type principalKey struct{}

// PrincipalFromContext returns the caller resolved by RequireAuth, if any.
func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(model.Principal)
	return p, ok
}

// RequireAuth resolves the Authorization bearer token to a Principal via
// authService and rejects the request with 401 if absent or invalid.
// Handlers read the resolved caller back out with PrincipalFromContext.
func RequireAuth(authService *authn.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Unauthorized(w, "Authentication required")
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")

			p, err := authService.Me(r.Context(), token)
			if errors.Is(err, authn.ErrInvalidSession) {
				api.Unauthorized(w, "Invalid or expired session")
				return
			}
			if err != nil {
				api.InternalError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects the request with 403 unless the authenticated
// principal (already resolved by RequireAuth) has one of the allowed roles.
func RequireRole(allowed ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				api.Unauthorized(w, "Authentication required")
				return
			}
			for _, role := range allowed {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			api.Forbidden(w, "Insufficient role for this action")
		})
	}
}
