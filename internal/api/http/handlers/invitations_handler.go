package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-workflow/internal/api/dto"
	"github.com/spec-kit/support-workflow/internal/auth"
	"github.com/spec-kit/support-workflow/internal/domain"
	"github.com/spec-kit/support-workflow/internal/service"
	apperrors "github.com/spec-kit/support-workflow/pkg/util/errorutil"
)

// InvitationsHandler exposes the team invitation workflow.
type InvitationsHandler struct {
	workflow *service.Workflow
}

// NewInvitationsHandler constructs handler.
func NewInvitationsHandler(workflow *service.Workflow) *InvitationsHandler {
	return &InvitationsHandler{workflow: workflow}
}

// Issue POST /invitations.
func (h *InvitationsHandler) Issue(c *fiber.Ctx) error {
	var req dto.IssueInvitationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ttl, err := issueTTL(req)
	if err != nil {
		return err
	}
	view, err := h.workflow.IssueInvitation(c.UserContext(), auth.PrincipalFromContext(c), service.IssueInput{
		CompanyID: req.CompanyID,
		Email:     req.Email,
		Message:   req.Message,
		RoleID:    req.RoleID,
		TTL:       ttl,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewInvitationResponse(view, true)})
}

// Load GET /invitations/:token.
func (h *InvitationsHandler) Load(c *fiber.Ctx) error {
	view, err := h.workflow.LoadInvitation(c.UserContext(), domain.InvitationRef{Token: c.Params("token")})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewInvitationResponse(view, false)})
}

// Redeem POST /invitations/:token/redeem.
func (h *InvitationsHandler) Redeem(c *fiber.Ctx) error {
	var req dto.RedeemInvitationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.workflow.RedeemInvitation(c.UserContext(), domain.InvitationRef{Token: c.Params("token")}, service.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewRedeemResponse(result.User, result.Membership)})
}

// ListForCompany GET /companies/:id/invitations.
func (h *InvitationsHandler) ListForCompany(c *fiber.Ctx) error {
	limit, offset := parsePaging(c)
	summaries, err := h.workflow.ListCompanyInvitations(c.UserContext(), auth.PrincipalFromContext(c), c.Params("id"), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.InvitationResponse, 0, len(summaries))
	for i := range summaries {
		items = append(items, dto.NewInvitationListItem(&summaries[i].Invitation, summaries[i].EffectiveStatus))
	}
	return c.JSON(fiber.Map{"data": items})
}

// issueTTL converts the requested lifetime, rejecting values that would
// overflow or exceed the service maximum.
func issueTTL(req dto.IssueInvitationRequest) (time.Duration, error) {
	if req.TTLSeconds != nil {
		maxSeconds := int64(service.MaxInvitationTTL / time.Second)
		if *req.TTLSeconds > maxSeconds || *req.TTLSeconds < -maxSeconds {
			return 0, apperrors.NewValidationError("ttl_seconds out of range", map[string]any{"ttl_seconds": "out_of_range"})
		}
		return time.Duration(*req.TTLSeconds) * time.Second, nil
	}
	maxHours := int(service.MaxInvitationTTL / time.Hour)
	if req.TTLHours > maxHours || req.TTLHours < -maxHours {
		return 0, apperrors.NewValidationError("ttl_hours out of range", map[string]any{"ttl_hours": "out_of_range"})
	}
	return time.Duration(req.TTLHours) * time.Hour, nil
}
