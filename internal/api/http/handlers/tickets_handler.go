package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-workflow/internal/api/dto"
	"github.com/spec-kit/support-workflow/internal/auth"
	"github.com/spec-kit/support-workflow/internal/domain"
	"github.com/spec-kit/support-workflow/internal/repository"
	"github.com/spec-kit/support-workflow/internal/service"
	apperrors "github.com/spec-kit/support-workflow/pkg/util/errorutil"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// TicketsHandler exposes ticket endpoints for requesters and agents.
type TicketsHandler struct {
	workflow *service.Workflow
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(workflow *service.Workflow) *TicketsHandler {
	return &TicketsHandler{workflow: workflow}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.TicketCreateInput{
		Title:          req.Title,
		Description:    req.Description,
		RequesterName:  req.RequesterName,
		RequesterEmail: req.RequesterEmail,
		RequesterPhone: req.RequesterPhone,
		CategoryID:     req.CategoryID,
		PriorityID:     req.PriorityID,
	}
	for _, a := range req.Attachments {
		input.Attachments = append(input.Attachments, service.AttachmentInput(a))
	}

	ticket, err := h.workflow.SubmitTicket(c.UserContext(), auth.PrincipalFromContext(c), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	tickets, err := h.workflow.ListTickets(c.UserContext(), auth.PrincipalFromContext(c), parseTicketQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	details, err := h.workflow.GetTicket(c.UserContext(), auth.PrincipalFromContext(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(details)})
}

// UpdateStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.StatusID) == "" {
		return apperrors.NewValidationError("status_id required", nil)
	}
	ticket, err := h.workflow.SetTicketStatus(c.UserContext(), auth.PrincipalFromContext(c), c.Params("id"), req.StatusID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// UpdatePriority PATCH /tickets/:id/priority.
func (h *TicketsHandler) UpdatePriority(c *fiber.Ctx) error {
	var req dto.UpdatePriorityRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.PriorityID) == "" {
		return apperrors.NewValidationError("priority_id required", nil)
	}
	ticket, err := h.workflow.SetTicketPriority(c.UserContext(), auth.PrincipalFromContext(c), c.Params("id"), req.PriorityID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// UpdateCategory PATCH /tickets/:id/category.
func (h *TicketsHandler) UpdateCategory(c *fiber.Ctx) error {
	var req dto.UpdateCategoryRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.CategoryID) == "" {
		return apperrors.NewValidationError("category_id required", nil)
	}
	ticket, err := h.workflow.SetTicketCategory(c.UserContext(), auth.PrincipalFromContext(c), c.Params("id"), req.CategoryID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// AssignTicket PATCH /tickets/:id/assignee.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.workflow.AssignTicket(c.UserContext(), auth.PrincipalFromContext(c), c.Params("id"), req.AgentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// AddResponse POST /tickets/:id/responses.
func (h *TicketsHandler) AddResponse(c *fiber.Ctx) error {
	var req dto.AddResponseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	resp, err := h.workflow.AddTicketResponse(c.UserContext(), auth.PrincipalFromContext(c), c.Params("id"), service.ResponseInput{
		Message:        req.Message,
		IsInternalNote: req.IsInternalNote,
		ReopenStatusID: req.ReopenStatusID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponseItem(resp)})
}

// ListAgents GET /agents.
func (h *TicketsHandler) ListAgents(c *fiber.Ctx) error {
	var filter repository.AgentFilter
	if active := c.Query("active"); active != "" {
		if parsed, err := strconv.ParseBool(active); err == nil {
			filter.Active = &parsed
		}
	}
	filter.Limit, filter.Offset = parsePaging(c)

	agents, err := h.workflow.ListAgents(c.UserContext(), auth.PrincipalFromContext(c), filter)
	if err != nil {
		return err
	}
	items := make([]dto.AgentResponse, 0, len(agents))
	for _, a := range agents {
		items = append(items, dto.AgentResponse{
			ID:     a.ID,
			Name:   a.Name,
			Email:  a.Email,
			Role:   string(a.Role),
			Active: a.Active,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseTicketQuery(c *fiber.Ctx) domain.TicketFilter {
	filter := domain.TicketFilter{Search: c.Query("search")}
	if status := c.Query("status_id"); status != "" {
		filter.StatusID = &status
	}
	if assignee := c.Query("assignee_id"); assignee != "" {
		filter.AssigneeID = &assignee
	}
	if email := c.Query("requester_email"); email != "" {
		filter.RequesterEmail = &email
	}
	filter.Limit, filter.Offset = parsePaging(c)
	return filter
}

// parsePaging converts page/page_size into limit/offset.
func parsePaging(c *fiber.Ctx) (limit, offset int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), defaultPageSize)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	return pageSize, (page - 1) * pageSize
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}
