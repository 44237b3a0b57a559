package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-workflow/internal/domain"
	apperrors "github.com/spec-kit/support-workflow/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// UserLookup loads end-user identities.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// AgentLookup loads support agents.
type AgentLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
	users  UserLookup
	agents AgentLookup
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users UserLookup, agents AgentLookup) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users, agents: agents}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}
	principal, err := m.resolve(c.UserContext(), authHeader)
	if err != nil {
		return err
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

// Optional resolves a principal when a bearer token is present and falls back
// to the anonymous principal otherwise. An invalid token is still rejected.
func (m *AuthMiddleware) Optional(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		anon := domain.Anonymous()
		c.Locals(principalKey, &anon)
		return c.Next()
	}
	principal, err := m.resolve(c.UserContext(), authHeader)
	if err != nil {
		return err
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

func (m *AuthMiddleware) resolve(ctx context.Context, authHeader string) (*domain.Principal, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid token")
	}

	switch claims.Kind {
	case domain.SubjectTypeUser:
		user, err := m.users.GetByID(ctx, claims.Subject)
		if err != nil {
			if apperrors.IsNoRows(err) {
				return nil, apperrors.NewUnauthorized("user not found")
			}
			return nil, apperrors.MapError(err)
		}
		if !user.IsActive() {
			return nil, apperrors.NewUnauthorized("user is not active")
		}
		principal := user.Principal()
		return &principal, nil
	case domain.SubjectTypeAgent:
		agent, err := m.agents.GetByID(ctx, claims.Subject)
		if err != nil {
			if apperrors.IsNoRows(err) {
				return nil, apperrors.NewUnauthorized("agent not found")
			}
			return nil, apperrors.MapError(err)
		}
		if !agent.Active {
			return nil, apperrors.NewUnauthorized("agent is not active")
		}
		role := agent.Role
		return &domain.Principal{
			Subject: domain.SubjectTypeAgent,
			ID:      agent.ID,
			Name:    agent.Name,
			Email:   agent.Email,
			Role:    &role,
		}, nil
	default:
		return nil, apperrors.NewUnauthorized("unknown subject")
	}
}

// PrincipalFromContext retrieves the acting principal; anonymous when none was resolved.
func PrincipalFromContext(c *fiber.Ctx) domain.Principal {
	if principal, ok := c.Locals(principalKey).(*domain.Principal); ok && principal != nil {
		return *principal
	}
	return domain.Anonymous()
}
