package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/pisure/internal/authz"
	"github.com/sakif/pisure/internal/model"
)

// contextKey is private to this package so no other package can read or
// overwrite the session stored in a request context.
type contextKey string

const sessionKey contextKey = "session"

// Authenticate resolves the session of every request and stores it in the
// context. Anonymous requests pass through with an empty session; only a
// failure to read the account record stops the request with 503.
func Authenticate(resolver *SessionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := resolver.Resolve(r)
			if err != nil {
				logger.Error("session lookup failed", slog.String("error", err.Error()))
				writeAuthError(w, http.StatusServiceUnavailable, "unavailable", "session backend unavailable")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// RequireSession rejects anonymous requests with 401.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !SessionFromContext(r.Context()).Authenticated() {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCapability rejects requests whose session lacks c: 401 when
// anonymous, 403 otherwise. The policy is consulted on every request.
func RequireCapability(policy authz.Policy, c authz.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r.Context())
			if !session.Authenticated() {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}
			if !authz.Can(policy, session, c) {
				writeAuthError(w, http.StatusForbidden, "forbidden", "missing capability "+c.String())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s model.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the session stored by Authenticate, or the
// anonymous session.
func SessionFromContext(ctx context.Context) model.Session {
	s, _ := ctx.Value(sessionKey).(model.Session)
	return s
}

func writeAuthError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + kind + `","message":"` + message + `"}`))
}
