// Package middleware adapts the engine to net/http. It is a thin
// convenience layer; services with their own transport call
// Engine.Guard directly.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	authcore "github.com/retailops/authcore"
	"github.com/retailops/authcore/role"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity attached by Guard.
func IdentityFromContext(ctx context.Context) (*authcore.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*authcore.Identity)
	return id, ok
}

// Guard returns middleware that authenticates the bearer token, checks
// the required role, and applies the per-user request throttle. The
// verified identity is attached to the request context.
func Guard(engine *authcore.Engine, required role.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			id, err := engine.Guard(r.Context(), token, required)
			if err != nil {
				status := http.StatusUnauthorized
				switch {
				case errors.Is(err, authcore.ErrInsufficientRole):
					status = http.StatusForbidden
				case errors.Is(err, authcore.ErrRateLimited):
					status = http.StatusTooManyRequests
				case errors.Is(err, authcore.ErrDependencyUnavailable):
					status = http.StatusServiceUnavailable
				}
				http.Error(w, http.StatusText(status), status)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
