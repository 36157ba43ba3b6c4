// Package service implements the application's business operations on top of
// the repositories and token stores.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tidepool/internal/mailer"
	"tidepool/internal/models"
	"tidepool/internal/observability"
	"tidepool/internal/repository"
	"tidepool/internal/reset"
	"tidepool/internal/session"

	"golang.org/x/crypto/bcrypt"
)

// SessionStore is the session lifecycle as the auth service needs it.
type SessionStore interface {
	Create(ctx context.Context, userID uint) (string, error)
	Resolve(ctx context.Context, token string) (uint, bool, error)
	Destroy(ctx context.Context, token string) error
}

// ResetStore is the password-reset token lifecycle.
type ResetStore interface {
	Issue(ctx context.Context, userID uint) (string, error)
	Consume(ctx context.Context, userID uint, token string) error
}

var (
	_ SessionStore = (*session.Store)(nil)
	_ ResetStore   = (*reset.Store)(nil)
)

// AuthService owns registration, login/logout, identity resolution, and the
// password reset flow.
type AuthService struct {
	users        repository.UserRepository
	sessions     SessionStore
	resets       ResetStore
	mail         mailer.Mailer
	resetURLBase string
	logger       *slog.Logger
}

// NewAuthService wires the auth service from its stores and collaborators.
func NewAuthService(
	users repository.UserRepository,
	sessions SessionStore,
	resets ResetStore,
	mail mailer.Mailer,
	resetURLBase string,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:        users,
		sessions:     sessions,
		resets:       resets,
		mail:         mail,
		resetURLBase: resetURLBase,
		logger:       logger,
	}
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register creates a user and logs them straight in, returning the new user
// and a session token.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	// Duplicate pre-check: report the username field first when both
	// collide, matching the registration contract.
	if existing, err := s.users.GetByUsername(ctx, in.Username); err != nil {
		return nil, "", err
	} else if existing != nil {
		return nil, "", models.NewDuplicateIdentityError("username")
	}
	if existing, err := s.users.GetByEmail(ctx, in.Email); err != nil {
		return nil, "", err
	} else if existing != nil {
		return nil, "", models.NewDuplicateIdentityError("email")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", models.NewInternalError(err)
	}

	user := &models.User{
		Username: in.Username,
		Email:    in.Email,
		Password: string(hashed),
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Two concurrent registrations can slip past the pre-check; the
		// repository maps the constraint violation to DuplicateIdentity.
		return nil, "", err
	}

	token, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, "", models.NewInternalError(err)
	}
	return user, token, nil
}

// Login authenticates by username or email. A credential containing "@" is
// treated as an email address; anything else as a username.
func (s *AuthService) Login(ctx context.Context, usernameOrEmail, password string) (*models.User, string, error) {
	var (
		user *models.User
		err  error
	)
	if strings.Contains(usernameOrEmail, "@") {
		user, err = s.users.GetByEmail(ctx, usernameOrEmail)
	} else {
		user, err = s.users.GetByUsername(ctx, usernameOrEmail)
	}
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		// Same error as a wrong password; account existence stays private.
		return nil, "", models.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, "", models.NewInvalidCredentialsError()
	}

	token, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, "", models.NewInternalError(err)
	}
	return user, token, nil
}

// Logout destroys the session. Idempotent: logging out an already-destroyed
// session is still a success.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Destroy(ctx, token); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ResolveIdentity maps a session token to a user ID. It never fails on a
// bad token — (0, false) is the unauthenticated variant. A session whose
// user no longer exists fails closed the same way.
func (s *AuthService) ResolveIdentity(ctx context.Context, token string) (uint, bool, error) {
	userID, ok, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return 0, false, models.NewInternalError(err)
	}
	if !ok {
		observability.SessionResolutions.WithLabelValues("miss").Inc()
		return 0, false, nil
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if models.CodeOf(err) == models.CodeNotFound {
			observability.SessionResolutions.WithLabelValues("stale_user").Inc()
			return 0, false, nil
		}
		return 0, false, err
	}
	observability.SessionResolutions.WithLabelValues("ok").Inc()
	return userID, true, nil
}

// Me returns the user record for an authenticated session.
func (s *AuthService) Me(ctx context.Context, token string) (*models.User, error) {
	userID, ok, err := s.ResolveIdentity(ctx, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewUnauthenticatedError()
	}
	return s.users.GetByID(ctx, userID)
}

// RequestReset starts the forgot-password flow. It always succeeds from the
// caller's point of view whether or not the email exists, and mail delivery
// failures are logged rather than surfaced.
func (s *AuthService) RequestReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return models.NewInternalError(err)
	}
	if user == nil {
		return nil
	}

	token, err := s.resets.Issue(ctx, user.ID)
	if err != nil {
		return models.NewInternalError(err)
	}

	link := fmt.Sprintf("%s?token=%s&userId=%d", s.resetURLBase, token, user.ID)
	body := fmt.Sprintf(`<a href="%s">Click here to reset your password</a>`, link)
	if err := s.mail.Send(user.Email, "Reset your password", body); err != nil {
		s.logger.ErrorContext(ctx, "reset mail delivery failed",
			slog.Uint64("user_id", uint64(user.ID)),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// ConsumeReset spends a reset token and installs the new password.
func (s *AuthService) ConsumeReset(ctx context.Context, userID uint, token, newPassword string) error {
	if err := s.resets.Consume(ctx, userID, token); err != nil {
		switch {
		case errors.Is(err, reset.ErrExpired):
			return models.NewTokenExpiredError()
		case errors.Is(err, reset.ErrInvalid):
			return models.NewTokenInvalidError()
		default:
			return models.NewInternalError(err)
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return models.NewInternalError(err)
	}
	return s.users.UpdatePassword(ctx, userID, string(hashed))
}
