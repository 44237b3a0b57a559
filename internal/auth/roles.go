package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-workflow/internal/domain"
	apperrors "github.com/spec-kit/support-workflow/pkg/util/errorutil"
)

// RequireAgentRole ensures the agent principal has one of the allowed roles.
// With no roles given any agent passes.
func RequireAgentRole(allowed ...domain.AgentRole) fiber.Handler {
	allowedSet := make(map[domain.AgentRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal := PrincipalFromContext(c)
		if !principal.IsAgent() || principal.Role == nil {
			return apperrors.NewForbidden("agent role required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[*principal.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireAuthenticated ensures the caller is an agent or a user.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if PrincipalFromContext(c).IsAnonymous() {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}
