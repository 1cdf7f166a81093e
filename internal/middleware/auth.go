package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/windfall/phonoecho/internal/service"
	"github.com/windfall/phonoecho/internal/session"
	"github.com/windfall/phonoecho/pkg/response"
)

type contextKey string

const SessionKey contextKey = "session"

// Auth returns a middleware that resolves the session token from the
// Authorization header. Browsers cannot set headers on WebSocket upgrades,
// so a token query parameter is accepted as well.
func Auth(sessions *service.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.URL.Query().Get("token")
			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
					response.Unauthorized(w, "invalid authorization format")
					return
				}
				token = parts[1]
			}
			if token == "" {
				response.Unauthorized(w, "missing authorization header")
				return
			}

			sess, err := sessions.Resolve(token)
			if err != nil {
				response.FromError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), SessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSession extracts the session from the request context.
func GetSession(ctx context.Context) *session.Session {
	if s, ok := ctx.Value(SessionKey).(*session.Session); ok {
		return s
	}
	return nil
}
