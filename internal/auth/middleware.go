package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/librosfab/support-service/internal/domain"
	"github.com/librosfab/support-service/internal/repository"
	apperrors "github.com/librosfab/support-service/pkg/util/errorutil"
)

const identityKey = "auth_identity"

// Middleware resolves the caller's session into a domain.Identity. Requests
// without credentials pass through anonymously; the ticket gateway decides
// whether an identity is required.
type Middleware struct {
	tokens     *TokenManager
	sessions   SessionStore
	users      repository.UserRepository
	cookieName string
	logger     *zap.Logger
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *TokenManager, sessions SessionStore, users repository.UserRepository, cookieName string, logger *zap.Logger) *Middleware {
	if sessions == nil {
		sessions = NewMemorySessionStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{tokens: tokens, sessions: sessions, users: users, cookieName: cookieName, logger: logger}
}

// Handle loads the identity when the request carries a session.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	token, fromHeader, err := m.extractToken(c)
	if err != nil {
		return err
	}
	if token == "" {
		return c.Next()
	}

	identity, err := m.resolve(c, token)
	if err != nil {
		// stale cookies are dropped, not rejected
		if !fromHeader && apperrors.HasCode(err, apperrors.CodeUnauthenticated) {
			c.ClearCookie(m.cookieName)
			return c.Next()
		}
		return err
	}

	c.Locals(identityKey, identity)
	return c.Next()
}

func (m *Middleware) extractToken(c *fiber.Ctx) (string, bool, error) {
	if authHeader := c.Get(fiber.HeaderAuthorization); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", true, apperrors.NewUnauthenticated("invalid authorization header")
		}
		return strings.TrimSpace(parts[1]), true, nil
	}
	if m.cookieName != "" {
		return c.Cookies(m.cookieName), false, nil
	}
	return "", false, nil
}

func (m *Middleware) resolve(c *fiber.Ctx, token string) (*domain.Identity, error) {
	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return nil, apperrors.NewUnauthenticated("session expired, please sign in again")
	}

	revoked, err := m.sessions.IsRevoked(c.UserContext(), claims.ID)
	if err != nil {
		m.logger.Warn("session revocation check failed", zap.String("session_id", claims.ID), zap.Error(err))
	} else if revoked {
		return nil, apperrors.NewUnauthenticated("session expired, please sign in again")
	}

	user, err := m.users.GetByID(c.UserContext(), claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthenticated("session expired, please sign in again")
		}
		return nil, apperrors.NewInternalError(err)
	}

	return &domain.Identity{UserID: user.ID, Email: user.Email, SessionID: claims.ID}, nil
}

// IdentityFromContext returns the caller's identity, or nil when the request
// is anonymous.
func IdentityFromContext(c *fiber.Ctx) *domain.Identity {
	identity, _ := c.Locals(identityKey).(*domain.Identity)
	return identity
}
