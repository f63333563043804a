package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sakif/pisure/internal/apperror"
	"github.com/sakif/pisure/internal/model"
)

// CookieName is the cookie carrying the session token.
const CookieName = "token"

// UserLookup is the slice of the user repository the resolver needs.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// SessionResolver turns a request into the current session. The token only
// names the account; the account itself is read on every call, so a deleted
// account resolves to an anonymous session even with a valid token.
type SessionResolver struct {
	tokens *TokenService
	users  UserLookup
}

func NewSessionResolver(tokens *TokenService, users UserLookup) *SessionResolver {
	return &SessionResolver{tokens: tokens, users: users}
}

// Resolve returns the anonymous session for a missing, invalid or expired
// token and for an unknown account. The error is non-nil only when the user
// record could not be read.
func (r *SessionResolver) Resolve(req *http.Request) (model.Session, error) {
	cookie, err := req.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return model.Session{}, nil
	}
	return r.ResolveToken(req.Context(), cookie.Value)
}

// ResolveToken is Resolve for a raw token value.
func (r *SessionResolver) ResolveToken(ctx context.Context, token string) (model.Session, error) {
	userID, err := r.tokens.Validate(token)
	if err != nil {
		return model.Session{}, nil
	}

	user, err := r.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return model.Session{}, nil
		}
		return model.Session{}, fmt.Errorf("auth: resolving session: %w", err)
	}
	return model.Session{UserID: user.ID, Email: user.Email}, nil
}

// SetSessionCookie stores token in the HttpOnly session cookie.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie tells the browser to drop the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
