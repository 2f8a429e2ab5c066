package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/cloo-solutions/stockrag/internal/api"
	"github.com/cloo-solutions/stockrag/internal/domain"
)

type contextKey string

const ActorKey contextKey = "actor"

const ActorAdmin = "admin"

// AdminToken guards operator routes with a static bearer token. An empty
// token disables the guard, which is how local development runs.
func AdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			presented := strings.TrimPrefix(authHeader, "Bearer ")
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				api.HandleError(w, domain.ErrInvalidAdminToken)
				return
			}

			if st := stateFrom(r.Context()); st != nil {
				st.actor = ActorAdmin
			}
			ctx := context.WithValue(r.Context(), ActorKey, ActorAdmin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetActor returns who authenticated the request, if anyone. It also works
// from middlewares that run outside AdminToken.
func GetActor(ctx context.Context) string {
	if actor, ok := ctx.Value(ActorKey).(string); ok {
		return actor
	}
	if st := stateFrom(ctx); st != nil {
		return st.actor
	}
	return ""
}
