package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/librosfab/support-service/internal/auth"
	"github.com/librosfab/support-service/internal/domain"
	"github.com/librosfab/support-service/internal/repository"
	apperrors "github.com/librosfab/support-service/pkg/util/errorutil"
)

// AuthService coordinates registration, login and session revocation.
type AuthService struct {
	users      repository.UserRepository
	tokens     *auth.TokenManager
	sessions   auth.SessionStore
	bcryptCost int
	now        func() time.Time
}

// AuthDependencies encapsulates requirements for the auth service.
type AuthDependencies struct {
	UserRepo   repository.UserRepository
	Tokens     *auth.TokenManager
	Sessions   auth.SessionStore
	BcryptCost int
	Now        func() time.Time
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Email           string
	Password        string
	ConfirmPassword string
}

// LoginResult is a signed-in user and its new session.
type LoginResult struct {
	User    *domain.User
	Session *auth.Session
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = auth.NewMemorySessionStore()
	}
	return &AuthService{
		users:      deps.UserRepo,
		tokens:     deps.Tokens,
		sessions:   sessions,
		bcryptCost: deps.BcryptCost,
		now:        now,
	}
}

// TokenManager exposes the session token manager.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}

// SessionStore exposes the revocation store.
func (s *AuthService) SessionStore() auth.SessionStore {
	return s.sessions
}

// NormalizeEmail trims and case-folds an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new customer account.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	email := NormalizeEmail(input.Email)
	if email == "" || input.Password == "" || input.ConfirmPassword == "" {
		return nil, apperrors.NewValidationError("all fields are required", nil)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, apperrors.NewValidationError("invalid email address", map[string]any{"field": "email"})
	}
	if len([]rune(input.Password)) < auth.MinPasswordLength {
		return nil, apperrors.NewInvalidInput(apperrors.CodePasswordTooShort, "password must be at least 6 characters")
	}
	if input.Password != input.ConfirmPassword {
		return nil, apperrors.NewInvalidInput(apperrors.CodePasswordMismatch, "passwords do not match")
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, duplicateEmail()
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewInternalError(err)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, duplicateEmail()
		}
		return nil, apperrors.NewInternalError(err)
	}
	return user, nil
}

func duplicateEmail() error {
	return apperrors.NewConflict(apperrors.CodeDuplicateEmail, "this email is already registered")
}

// Login verifies credentials and opens a session. An unknown email yields
// NOT_FOUND; a wrong password yields INVALID_CREDENTIALS.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperrors.NewValidationError("email and password are required", nil)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("account", map[string]any{"email": email})
		}
		return nil, apperrors.NewInternalError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewInvalidCredentials()
	}

	session, err := s.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &LoginResult{User: user, Session: session}, nil
}

// Logout revokes the caller's session for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, identity *domain.Identity) error {
	if identity == nil {
		return apperrors.NewUnauthenticated("please sign in")
	}
	if err := s.sessions.Revoke(ctx, identity.SessionID, s.tokens.TTL()); err != nil {
		return apperrors.NewInternalError(err)
	}
	return nil
}

// Me returns the account behind identity.
func (s *AuthService) Me(ctx context.Context, identity *domain.Identity) (*domain.User, error) {
	if identity == nil {
		return nil, apperrors.NewUnauthenticated("please sign in")
	}
	user, err := s.users.GetByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthenticated("please sign in")
		}
		return nil, apperrors.NewInternalError(err)
	}
	return user, nil
}
