package middleware

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"twofactor-session/internal/identity/service"
	"twofactor-session/internal/server/httpx"
	sessiondomain "twofactor-session/internal/session/domain"
	userdomain "twofactor-session/internal/user/domain"
)

// Authenticator resolves a session id to its user. Implemented by *service.AuthService.
type Authenticator interface {
	Authenticate(ctx context.Context, sessionID string) (*userdomain.User, *sessiondomain.Session, error)
}

// RequireSession rejects requests without a valid session cookie with 401 and clears a stale
// cookie. On success the user id and session id are placed in the request context.
func RequireSession(auth Authenticator, cookies httpx.Cookies, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := httpx.Read(r, httpx.SessionCookie)
			if sid == "" {
				httpx.WriteError(w, logger, service.ErrUnauthenticated)
				return
			}
			user, sess, err := auth.Authenticate(r.Context(), sid)
			if err != nil {
				if errors.Is(err, service.ErrUnauthenticated) {
					cookies.ClearSession(w)
				}
				httpx.WriteError(w, logger, err)
				return
			}
			ctx := WithIdentity(r.Context(), user.ID, sess.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
