package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-workflow/internal/api/dto"
	"github.com/spec-kit/support-workflow/internal/service"
	apperrors "github.com/spec-kit/support-workflow/pkg/util/errorutil"
)

// AuthHandler exposes login endpoints for users and agents.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// LoginUser handles POST /auth/users/login.
func (h *AuthHandler) LoginUser(c *fiber.Ctx) error {
	input, err := parseLogin(c)
	if err != nil {
		return err
	}
	result, err := h.auth.LoginUser(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": loginResponse(result)})
}

// LoginAgent handles POST /auth/agents/login.
func (h *AuthHandler) LoginAgent(c *fiber.Ctx) error {
	input, err := parseLogin(c)
	if err != nil {
		return err
	}
	result, err := h.auth.LoginAgent(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": loginResponse(result)})
}

func parseLogin(c *fiber.Ctx) (service.LoginInput, error) {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return service.LoginInput{}, apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return service.LoginInput{}, apperrors.NewValidationError("email and password required", nil)
	}
	return service.LoginInput{Email: req.Email, Password: req.Password}, nil
}

func loginResponse(result *service.LoginResult) fiber.Map {
	p := result.Principal
	principal := dto.PrincipalResponse{
		ID:    p.ID,
		Kind:  string(p.Subject),
		Name:  p.Name,
		Email: p.Email,
	}
	if p.Role != nil {
		role := string(*p.Role)
		principal.Role = &role
	}
	return fiber.Map{
		"principal": principal,
		"auth":      dto.AuthResponse{Token: result.Token, ExpiresAt: result.ExpiresAt},
	}
}
