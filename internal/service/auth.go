package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/rs/xid"
	"github.com/sakif/pisure/internal/apperror"
	"github.com/sakif/pisure/internal/auth"
	"github.com/sakif/pisure/internal/authz"
	"github.com/sakif/pisure/internal/model"
	"github.com/sakif/pisure/internal/repository"
)

// usernameAttempts bounds the collision retries of a first GitHub sign-in.
const usernameAttempts = 3

var invalidUsernameChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// SignupInput is an email/password registration.
type SignupInput struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Username string `json:"username" validate:"required,username"`
}

// AuthResult is a successful sign-in: the account, its profile and the
// session token the handler stores in the cookie.
type AuthResult struct {
	User    *model.User    `json:"user"`
	Profile *model.Profile `json:"profile"`
	Token   string         `json:"-"`
}

// Session returns the session this sign-in starts.
func (r *AuthResult) Session() model.Session {
	return model.Session{UserID: r.User.ID, Email: r.User.Email}
}

// Me is the signed-in user as the navigation bar shows it.
type Me struct {
	model.Session
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
}

// AuthService signs users up, in and out, and publishes every change of
// session on the notifier.
type AuthService struct {
	users     repository.UserRepository
	profiles  repository.ProfileRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	notifier  *auth.Notifier
	policy    authz.Policy
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	profiles repository.ProfileRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	notifier *auth.Notifier,
	policy authz.Policy,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		profiles:  profiles,
		tokens:    tokens,
		passwords: passwords,
		notifier:  notifier,
		policy:    policy,
		logger:    logger,
	}
}

// Signup creates an account with its profile and signs it in.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("signing up %s: %w", in.Email, err)
	}

	user := &model.User{Email: in.Email, PasswordHash: hash}
	profile := &model.Profile{Username: in.Username, DisplayName: in.Username}
	if err := s.users.CreateAccount(ctx, user, profile); err != nil {
		return nil, fmt.Errorf("signing up %s: %w", in.Email, err)
	}

	s.logger.Info("account created",
		slog.String("userID", user.ID),
		slog.String("username", profile.Username),
	)
	return s.signIn(user, profile)
}

// Login checks an email/password pair. Unknown emails and wrong passwords get
// the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("email", "email and password are required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("logging in: %w", err)
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("logging in: %w", err)
	}

	profile, err := s.profiles.GetProfileByID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("logging in: %w", err)
	}
	return s.signIn(user, profile)
}

// Logout announces the end of session. The token itself stays valid until
// it expires; the handler drops the cookie.
func (s *AuthService) Logout(session model.Session) {
	if !session.Authenticated() {
		return
	}
	s.logger.Info("user signed out", slog.String("userID", session.UserID))
	s.notifier.Publish(model.Session{})
}

// LoginGitHub signs in the account linked to a GitHub user, creating it on
// first sign-in. The profile takes the GitHub login as username, with a short
// random suffix when that name is taken.
func (s *AuthService) LoginGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil || gh.ID == 0 {
		return nil, fmt.Errorf("signing in with GitHub: missing GitHub user")
	}

	email := strings.ToLower(strings.TrimSpace(gh.Email))
	if email == "" {
		email = strings.ToLower(gh.Login) + "@users.noreply.github.com"
	}
	base := usernameFromLogin(gh.Login)

	user := &model.User{Email: email, GitHubID: gh.ID}
	profile := &model.Profile{
		Username:    base,
		DisplayName: gh.Name,
		AvatarURL:   gh.AvatarURL,
	}
	if profile.DisplayName == "" {
		profile.DisplayName = gh.Login
	}

	var created bool
	var err error
	for attempt := 0; attempt < usernameAttempts; attempt++ {
		created, err = s.users.UpsertGitHubAccount(ctx, user, profile)
		if !isUsernameConflict(err) {
			break
		}
		profile.Username = withSuffix(base)
	}
	if err != nil {
		return nil, fmt.Errorf("signing in with GitHub (id=%d): %w", gh.ID, err)
	}

	if created {
		s.logger.Info("account created via GitHub",
			slog.String("userID", user.ID),
			slog.String("username", profile.Username),
		)
	} else {
		profile, err = s.profiles.GetProfileByID(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("signing in with GitHub: %w", err)
		}
	}
	return s.signIn(user, profile)
}

// Me describes the current session. Anonymous sessions are Unauthorized.
func (s *AuthService) Me(ctx context.Context, session model.Session) (*Me, error) {
	if !session.Authenticated() {
		return nil, apperror.Unauthorized("sign in required")
	}
	profile, err := s.profiles.GetProfileByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading profile of %s: %w", session.UserID, err)
	}
	return &Me{
		Session:  session,
		Username: profile.Username,
		IsAdmin:  authz.IsAdmin(s.policy, session),
	}, nil
}

func (s *AuthService) signIn(user *model.User, profile *model.Profile) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing token for %s: %w", user.ID, err)
	}
	result := &AuthResult{User: user, Profile: profile, Token: token}

	s.logger.Info("user signed in", slog.String("userID", user.ID))
	s.notifier.Publish(result.Session())
	return result, nil
}

func isUsernameConflict(err error) bool {
	var appErr *apperror.AppError
	return errors.As(err, &appErr) && errors.Is(err, apperror.ErrConflict) && appErr.Field == "username"
}

// usernameFromLogin maps a GitHub login onto the username alphabet.
func usernameFromLogin(login string) string {
	name := invalidUsernameChars.ReplaceAllString(strings.ToLower(login), "-")
	name = strings.Trim(name, "-")
	if len(name) > 30 {
		name = name[:30]
	}
	for len(name) < 3 {
		name += "_"
	}
	return name
}

// withSuffix appends "-" and six characters of a fresh xid, keeping the
// result within 30 characters.
func withSuffix(base string) string {
	id := xid.New().String()
	suffix := "-" + id[len(id)-6:]
	if len(base)+len(suffix) > 30 {
		base = base[:30-len(suffix)]
	}
	return base + suffix
}
