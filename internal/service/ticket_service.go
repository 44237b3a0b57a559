package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/support-workflow/internal/clock"
	"github.com/spec-kit/support-workflow/internal/domain"
	"github.com/spec-kit/support-workflow/internal/events"
	"github.com/spec-kit/support-workflow/internal/repository"
	apperrors "github.com/spec-kit/support-workflow/pkg/util/errorutil"
)

const responsePreviewLength = 140

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets     repository.TicketRepository
	responses   repository.TicketResponseRepository
	attachments repository.AttachmentRepository
	catalog     repository.CatalogRepository
	agents      repository.AgentRepository
	audit       AuditSink
	dispatcher  events.Dispatcher
	clock       clock.Clock
	logger      *zap.Logger
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	ResponseRepo   repository.TicketResponseRepository
	AttachmentRepo repository.AttachmentRepository
	CatalogRepo    repository.CatalogRepository
	AgentRepo      repository.AgentRepository
	Audit          AuditSink
	Dispatcher     events.Dispatcher
	Clock          clock.Clock
	Logger         *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title          string            `json:"title" validate:"required,max=255"`
	Description    string            `json:"description" validate:"required"`
	RequesterName  string            `json:"requester_name" validate:"required,max=255"`
	RequesterEmail string            `json:"requester_email" validate:"required,email,max=255"`
	RequesterPhone *string           `json:"requester_phone" validate:"omitempty,max=50"`
	CategoryID     string            `json:"category_id" validate:"required"`
	PriorityID     string            `json:"priority_id" validate:"required"`
	Attachments    []AttachmentInput `json:"attachments" validate:"omitempty,dive"`
}

// AttachmentInput defines attachment metadata.
type AttachmentInput struct {
	StorageKey string `json:"storage_key" validate:"required,max=512"`
	FileName   string `json:"file_name" validate:"required,max=255"`
	MimeType   string `json:"mime_type" validate:"omitempty,max=255"`
	SizeBytes  int64  `json:"size_bytes" validate:"gte=0"`
}

// ResponseInput describes a reply or internal note.
type ResponseInput struct {
	Message        string  `json:"message" validate:"required"`
	IsInternalNote bool    `json:"is_internal_note"`
	ReopenStatusID *string `json:"reopen_status_id"`
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:     deps.TicketRepo,
		responses:   deps.ResponseRepo,
		attachments: deps.AttachmentRepo,
		catalog:     deps.CatalogRepo,
		agents:      deps.AgentRepo,
		audit:       deps.Audit,
		dispatcher:  deps.Dispatcher,
		clock:       deps.Clock,
		logger:      deps.Logger,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// CreateTicket validates the submission and stores a ticket in the default status.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Principal, input TicketCreateInput) (*domain.Ticket, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.RequesterName = strings.TrimSpace(input.RequesterName)
	input.RequesterEmail = normalizeEmail(input.RequesterEmail)
	input.CategoryID = strings.TrimSpace(input.CategoryID)
	input.PriorityID = strings.TrimSpace(input.PriorityID)
	if input.RequesterPhone != nil {
		phone := strings.TrimSpace(*input.RequesterPhone)
		input.RequesterPhone = &phone
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	category, err := s.catalog.GetCategory(ctx, input.CategoryID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewValidationError("unknown category", map[string]any{"category_id": "unknown"})
		}
		return nil, apperrors.MapError(err)
	}
	if !category.Active {
		return nil, apperrors.NewValidationError("category is inactive", map[string]any{"category_id": "inactive"})
	}
	if _, err := s.catalog.GetPriority(ctx, input.PriorityID); err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority_id": "unknown"})
		}
		return nil, apperrors.MapError(err)
	}
	status, err := s.catalog.DefaultStatus(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	now := s.clock.Now()
	ticket := &domain.Ticket{
		Title:          input.Title,
		Description:    input.Description,
		RequesterName:  input.RequesterName,
		RequesterEmail: input.RequesterEmail,
		RequesterPhone: null.StringFromPtr(input.RequesterPhone),
		CategoryID:     category.ID,
		PriorityID:     input.PriorityID,
		StatusID:       status.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if input.RequesterPhone != nil && *input.RequesterPhone == "" {
		ticket.RequesterPhone = null.String{}
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	for _, in := range input.Attachments {
		attachment := &domain.Attachment{
			TicketID:   ticket.ID,
			StorageKey: strings.TrimSpace(in.StorageKey),
			FileName:   strings.TrimSpace(in.FileName),
			MimeType:   strings.TrimSpace(in.MimeType),
			SizeBytes:  in.SizeBytes,
			CreatedAt:  now,
		}
		if err := s.attachments.Create(ctx, attachment); err != nil {
			s.logger.Warn("attachment metadata not stored",
				zap.String("ticket_id", ticket.ID),
				zap.String("storage_key", attachment.StorageKey),
				zap.Error(err))
		}
	}

	s.record(ctx, actor, domain.ActionTicketCreated, ticket.ID, map[string]any{
		"number":      ticket.Number,
		"status_id":   ticket.StatusID,
		"category_id": ticket.CategoryID,
		"priority_id": ticket.PriorityID,
		"attachments": len(input.Attachments),
	})
	publishEvent(ctx, s.dispatcher, s.clock, events.Event{
		Type:      events.EventTicketCreated,
		SubjectID: ticket.ID,
		Actor:     events.ActorFrom(actor),
		Payload: events.TicketCreatedPayload{
			Number:         ticket.Number,
			Title:          ticket.Title,
			RequesterName:  ticket.RequesterName,
			RequesterEmail: ticket.RequesterEmail,
			CategoryID:     ticket.CategoryID,
			PriorityID:     ticket.PriorityID,
		},
	})
	return ticket, nil
}

// UpdateStatus moves a ticket to another catalog status.
func (s *TicketService) UpdateStatus(ctx context.Context, actor domain.Principal, ticketID, statusID string) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	status, err := s.catalog.GetStatus(ctx, strings.TrimSpace(statusID))
	if err != nil {
		return nil, apperrors.MapStoreError(err, "status", map[string]any{"status_id": statusID})
	}
	if err := s.applyStatus(ctx, actor, ticket, *status, nil); err != nil {
		return nil, err
	}
	return ticket, nil
}

// applyStatus persists the transition and emits its audit entry and event.
func (s *TicketService) applyStatus(ctx context.Context, actor domain.Principal, ticket *domain.Ticket, status domain.TicketStatus, extra map[string]any) error {
	oldStatusID := ticket.StatusID
	prevResolved, prevClosed := ticket.ResolvedAt, ticket.ClosedAt

	ticket.ApplyStatus(status, s.clock.Now())
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return apperrors.MapStoreError(err, "ticket", map[string]any{"ticket_id": ticket.ID})
	}

	detail := map[string]any{
		"old_status_id": oldStatusID,
		"new_status_id": status.ID,
		"is_closed":     status.IsClosed,
	}
	if !status.IsClosed && prevClosed != nil {
		detail["previous_closed_at"] = *prevClosed
		if prevResolved != nil {
			detail["previous_resolved_at"] = *prevResolved
		}
	}
	for k, v := range extra {
		detail[k] = v
	}
	s.record(ctx, actor, domain.ActionTicketStatusChanged, ticket.ID, detail)

	if oldStatusID == status.ID {
		return nil
	}
	publishEvent(ctx, s.dispatcher, s.clock, events.Event{
		Type:      events.EventTicketStatusChanged,
		SubjectID: ticket.ID,
		Actor:     events.ActorFrom(actor),
		Payload: events.TicketStatusChangedPayload{
			Number:         ticket.Number,
			Title:          ticket.Title,
			RequesterName:  ticket.RequesterName,
			RequesterEmail: ticket.RequesterEmail,
			OldStatusID:    oldStatusID,
			NewStatusID:    status.ID,
			NewStatusName:  status.Name,
			IsClosed:       status.IsClosed,
		},
	})
	return nil
}

// UpdatePriority changes the ticket priority.
func (s *TicketService) UpdatePriority(ctx context.Context, actor domain.Principal, ticketID, priorityID string) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	priority, err := s.catalog.GetPriority(ctx, strings.TrimSpace(priorityID))
	if err != nil {
		return nil, apperrors.MapStoreError(err, "priority", map[string]any{"priority_id": priorityID})
	}
	old := ticket.PriorityID
	ticket.PriorityID = priority.ID
	if err := s.saveField(ctx, actor, ticket, domain.ActionTicketPriorityChanged, "priority_id", old, priority.ID); err != nil {
		return nil, err
	}
	return ticket, nil
}

// UpdateCategory changes the ticket category.
func (s *TicketService) UpdateCategory(ctx context.Context, actor domain.Principal, ticketID, categoryID string) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	category, err := s.catalog.GetCategory(ctx, strings.TrimSpace(categoryID))
	if err != nil {
		return nil, apperrors.MapStoreError(err, "category", map[string]any{"category_id": categoryID})
	}
	old := ticket.CategoryID
	ticket.CategoryID = category.ID
	if err := s.saveField(ctx, actor, ticket, domain.ActionTicketCategoryChanged, "category_id", old, category.ID); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *TicketService) saveField(ctx context.Context, actor domain.Principal, ticket *domain.Ticket, action, field, oldValue, newValue string) error {
	ticket.UpdatedAt = s.clock.Now()
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return apperrors.MapStoreError(err, "ticket", map[string]any{"ticket_id": ticket.ID})
	}
	s.record(ctx, actor, action, ticket.ID, map[string]any{
		"field":     field,
		"old_value": oldValue,
		"new_value": newValue,
	})
	publishEvent(ctx, s.dispatcher, s.clock, events.Event{
		Type:      events.EventTicketUpdated,
		SubjectID: ticket.ID,
		Actor:     events.ActorFrom(actor),
		Payload: events.TicketUpdatedPayload{
			Number:   ticket.Number,
			Field:    field,
			OldValue: oldValue,
			NewValue: newValue,
		},
	})
	return nil
}

// AssignTicket sets the single owner of a ticket, replacing any previous one.
func (s *TicketService) AssignTicket(ctx context.Context, actor domain.Principal, ticketID, agentID string) (*domain.Ticket, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, apperrors.NewValidationError("agent id is required", map[string]any{"agent_id": "required"})
	}
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(agentID); err != nil {
		return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
	}
	if s.agents != nil {
		if _, err := s.agents.GetByID(ctx, agentID); err != nil {
			return nil, apperrors.MapStoreError(err, "agent", map[string]any{"agent_id": agentID})
		}
	}

	oldAssignee := ticket.AssigneeID
	ticket.AssigneeID = &agentID
	ticket.UpdatedAt = s.clock.Now()
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapStoreError(err, "ticket", map[string]any{"ticket_id": ticket.ID})
	}

	detail := map[string]any{"new_assignee_id": agentID, "old_assignee_id": nil}
	if oldAssignee != nil {
		detail["old_assignee_id"] = *oldAssignee
	}
	s.record(ctx, actor, domain.ActionTicketAssigned, ticket.ID, detail)
	publishEvent(ctx, s.dispatcher, s.clock, events.Event{
		Type:      events.EventTicketAssigned,
		SubjectID: ticket.ID,
		Actor:     events.ActorFrom(actor),
		Payload: events.TicketAssignedPayload{
			Number:        ticket.Number,
			Title:         ticket.Title,
			OldAssigneeID: oldAssignee,
			NewAssigneeID: agentID,
		},
	})
	return ticket, nil
}

// AddResponse appends a reply or internal note. A closed ticket accepts a
// response only when an agent reopens it in the same call.
func (s *TicketService) AddResponse(ctx context.Context, actor domain.Principal, ticketID string, input ResponseInput) (*domain.TicketResponse, error) {
	input.Message = strings.TrimSpace(input.Message)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if actor.IsAnonymous() {
		return nil, apperrors.NewUnauthorized("authentication required")
	}

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	authorType := domain.AuthorTypeAgent
	if actor.IsUser() {
		if !actor.MatchesEmail(ticket.RequesterEmail) {
			return nil, apperrors.NewForbidden("ticket belongs to another requester")
		}
		if input.IsInternalNote {
			return nil, apperrors.NewForbidden("requesters cannot post internal notes")
		}
		if input.ReopenStatusID != nil {
			return nil, apperrors.NewForbidden("requesters cannot reopen tickets")
		}
		authorType = domain.AuthorTypeRequester
	}

	reopened := false
	if ticket.IsClosed() {
		if input.ReopenStatusID == nil || strings.TrimSpace(*input.ReopenStatusID) == "" {
			return nil, apperrors.NewConflict("ticket is closed", map[string]any{
				"ticket_id": ticket.ID,
				"status_id": ticket.StatusID,
			})
		}
		status, err := s.catalog.GetStatus(ctx, strings.TrimSpace(*input.ReopenStatusID))
		if err != nil {
			return nil, apperrors.MapStoreError(err, "status", map[string]any{"status_id": *input.ReopenStatusID})
		}
		if status.IsClosed {
			return nil, apperrors.NewValidationError("reopen status must be an open status", map[string]any{"reopen_status_id": "closed"})
		}
		if err := s.applyStatus(ctx, actor, ticket, *status, map[string]any{"reason": "response"}); err != nil {
			return nil, err
		}
		reopened = true
	}

	now := s.clock.Now()
	if !reopened {
		ticket.UpdatedAt = now
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return nil, apperrors.MapStoreError(err, "ticket", map[string]any{"ticket_id": ticket.ID})
		}
	}

	response := &domain.TicketResponse{
		TicketID:       ticket.ID,
		AuthorType:     authorType,
		AuthorID:       actor.ActorID(),
		Message:        input.Message,
		IsInternalNote: input.IsInternalNote,
		CreatedAt:      now,
	}
	if err := s.responses.Create(ctx, response); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.record(ctx, actor, domain.ActionTicketResponseAdded, ticket.ID, map[string]any{
		"response_id":      response.ID,
		"author_type":      string(authorType),
		"is_internal_note": response.IsInternalNote,
		"reopened":         reopened,
	})
	publishEvent(ctx, s.dispatcher, s.clock, events.Event{
		Type:      events.EventTicketResponseAdded,
		SubjectID: ticket.ID,
		Actor:     events.ActorFrom(actor),
		Payload: events.TicketResponseAddedPayload{
			Number:         ticket.Number,
			Title:          ticket.Title,
			ResponseID:     response.ID,
			AuthorType:     authorType,
			AuthorID:       response.AuthorID,
			IsInternalNote: response.IsInternalNote,
			MessagePreview: stringPreview(response.Message, responsePreviewLength),
			RequesterName:  ticket.RequesterName,
			RequesterEmail: ticket.RequesterEmail,
			AssigneeID:     ticket.AssigneeID,
			Reopened:       reopened,
		},
	})
	return response, nil
}

// GetTicket loads a ticket with its responses and attachments.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string, includeInternal bool) (*domain.TicketDetails, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	responses, err := s.responses.ListByTicket(ctx, ticket.ID, includeInternal)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	attachments, err := s.attachments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if responses == nil {
		responses = []domain.TicketResponse{}
	}
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	return &domain.TicketDetails{
		Ticket:      ticket,
		Responses:   responses,
		Attachments: attachments,
		History:     []domain.AuditEntry{},
	}, nil
}

// ListTickets returns tickets ordered by most recent update.
func (s *TicketService) ListTickets(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	tickets, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets, nil
}

// Catalog returns the status, category and priority lookup tables.
func (s *TicketService) Catalog(ctx context.Context) (domain.Catalog, error) {
	statuses, err := s.catalog.ListStatuses(ctx)
	if err != nil {
		return domain.Catalog{}, apperrors.MapError(err)
	}
	categories, err := s.catalog.ListCategories(ctx)
	if err != nil {
		return domain.Catalog{}, apperrors.MapError(err)
	}
	priorities, err := s.catalog.ListPriorities(ctx)
	if err != nil {
		return domain.Catalog{}, apperrors.MapError(err)
	}
	return domain.Catalog{Statuses: statuses, Categories: categories, Priorities: priorities}, nil
}

// loadTicket resolves a ticket by id or by its TCK- number.
func (s *TicketService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticketID = strings.TrimSpace(ticketID)
	var (
		ticket *domain.Ticket
		err    error
	)
	switch {
	case strings.HasPrefix(ticketID, domain.TicketNumberPrefix):
		ticket, err = s.tickets.GetByNumber(ctx, ticketID)
	default:
		if _, parseErr := uuid.Parse(ticketID); parseErr != nil {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		ticket, err = s.tickets.GetByID(ctx, ticketID)
	}
	if err != nil {
		return nil, apperrors.MapStoreError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

func (s *TicketService) record(ctx context.Context, actor domain.Principal, action, ticketID string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, domain.AuditEntry{
		ActorType:   actor.ActorType(),
		ActorID:     actor.ActorID(),
		Action:      action,
		SubjectType: domain.SubjectTicket,
		SubjectID:   ticketID,
		Detail:      detail,
		Level:       domain.AuditLevelInfo,
		CreatedAt:   s.clock.Now(),
	})
}
