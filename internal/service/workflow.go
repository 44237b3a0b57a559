package service

import (
	"context"
	"strings"

	"github.com/spec-kit/support-workflow/internal/clock"
	"github.com/spec-kit/support-workflow/internal/domain"
	"github.com/spec-kit/support-workflow/internal/events"
	"github.com/spec-kit/support-workflow/internal/repository"
	apperrors "github.com/spec-kit/support-workflow/pkg/util/errorutil"
)

const ticketHistoryLimit = 200

// Workflow is the entry point for every ticket and invitation operation.
// The acting principal is always passed in by the caller.
type Workflow struct {
	tickets     *TicketService
	invitations *InvitationService
	audit       *AuditService
	agents      repository.AgentRepository
	dispatcher  events.Dispatcher
	clock       clock.Clock
}

// WorkflowDependencies bundles the managers composed by the workflow.
type WorkflowDependencies struct {
	Tickets     *TicketService
	Invitations *InvitationService
	Audit       *AuditService
	AgentRepo   repository.AgentRepository
	Dispatcher  events.Dispatcher
	Clock       clock.Clock
}

// NewWorkflow constructs the workflow.
func NewWorkflow(deps WorkflowDependencies) *Workflow {
	w := &Workflow{
		tickets:     deps.Tickets,
		invitations: deps.Invitations,
		audit:       deps.Audit,
		agents:      deps.AgentRepo,
		dispatcher:  deps.Dispatcher,
		clock:       deps.Clock,
	}
	if w.clock == nil {
		w.clock = clock.Real()
	}
	return w
}

// SubmitTicket creates a ticket. Signed-in users default to their own contact details.
func (w *Workflow) SubmitTicket(ctx context.Context, p domain.Principal, input TicketCreateInput) (*domain.Ticket, error) {
	if p.IsUser() {
		if strings.TrimSpace(input.RequesterName) == "" {
			input.RequesterName = p.Name
		}
		if strings.TrimSpace(input.RequesterEmail) == "" {
			input.RequesterEmail = p.Email
		}
	}
	return w.tickets.CreateTicket(ctx, p, input)
}

// ListTickets lists tickets. Users only see tickets they requested.
func (w *Workflow) ListTickets(ctx context.Context, p domain.Principal, filter domain.TicketFilter) ([]domain.Ticket, error) {
	if p.IsAnonymous() {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if p.IsUser() {
		email := normalizeEmail(p.Email)
		filter.RequesterEmail = &email
	}
	return w.tickets.ListTickets(ctx, filter)
}

// GetTicket returns the ticket, its responses and, for agents, its audit history.
func (w *Workflow) GetTicket(ctx context.Context, p domain.Principal, ticketID string) (*domain.TicketDetails, error) {
	if p.IsAnonymous() {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	details, err := w.tickets.GetTicket(ctx, ticketID, p.IsAgent())
	if err != nil {
		return nil, err
	}
	if p.IsUser() {
		if !p.MatchesEmail(details.Ticket.RequesterEmail) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return details, nil
	}
	if w.audit != nil {
		history, err := w.audit.ListBySubject(ctx, domain.SubjectTicket, details.Ticket.ID, ticketHistoryLimit, 0)
		if err != nil {
			return nil, err
		}
		details.History = history
	}
	return details, nil
}

// SetTicketStatus moves a ticket to another status.
func (w *Workflow) SetTicketStatus(ctx context.Context, p domain.Principal, ticketID, statusID string) (*domain.Ticket, error) {
	if err := requireAgent(p); err != nil {
		return nil, err
	}
	return w.tickets.UpdateStatus(ctx, p, ticketID, statusID)
}

// SetTicketPriority changes a ticket's priority.
func (w *Workflow) SetTicketPriority(ctx context.Context, p domain.Principal, ticketID, priorityID string) (*domain.Ticket, error) {
	if err := requireAgent(p); err != nil {
		return nil, err
	}
	return w.tickets.UpdatePriority(ctx, p, ticketID, priorityID)
}

// SetTicketCategory changes a ticket's category.
func (w *Workflow) SetTicketCategory(ctx context.Context, p domain.Principal, ticketID, categoryID string) (*domain.Ticket, error) {
	if err := requireAgent(p); err != nil {
		return nil, err
	}
	return w.tickets.UpdateCategory(ctx, p, ticketID, categoryID)
}

// AssignTicket hands a ticket to an agent.
func (w *Workflow) AssignTicket(ctx context.Context, p domain.Principal, ticketID, agentID string) (*domain.Ticket, error) {
	if err := requireAgent(p); err != nil {
		return nil, err
	}
	return w.tickets.AssignTicket(ctx, p, ticketID, agentID)
}

// AddTicketResponse appends a reply or internal note.
func (w *Workflow) AddTicketResponse(ctx context.Context, p domain.Principal, ticketID string, input ResponseInput) (*domain.TicketResponse, error) {
	return w.tickets.AddResponse(ctx, p, ticketID, input)
}

// IssueInvitation creates an invitation and sends it to the invitee.
func (w *Workflow) IssueInvitation(ctx context.Context, p domain.Principal, input IssueInput) (*domain.InvitationView, error) {
	view, err := w.invitations.IssueInvitation(ctx, p, input)
	if err != nil {
		return nil, err
	}
	inv := view.Invitation
	publishEvent(ctx, w.dispatcher, w.clock, events.Event{
		Type:      events.EventInvitationIssued,
		SubjectID: inv.ID,
		Actor:     events.ActorFrom(p),
		Payload: events.InvitationIssuedPayload{
			InvitationID: inv.ID,
			Token:        inv.Token,
			Email:        inv.Email,
			CompanyID:    inv.CompanyID,
			CompanyName:  view.Company.Name,
			InviterName:  p.Name,
			RoleID:       inv.RoleID,
			Message:      inv.Message.ValueOrZero(),
			ExpiresAt:    inv.ExpiresAt,
		},
	})
	return view, nil
}

// LoadInvitation returns a redeemable invitation.
func (w *Workflow) LoadInvitation(ctx context.Context, ref domain.InvitationRef) (*domain.InvitationView, error) {
	return w.invitations.LoadInvitation(ctx, ref)
}

// RedeemInvitation exchanges an invitation for an identity and membership.
func (w *Workflow) RedeemInvitation(ctx context.Context, ref domain.InvitationRef, input SignupInput) (*RedeemResult, error) {
	return w.invitations.RedeemInvitation(ctx, ref, input)
}

// ListCompanyInvitations lists a company's invitations for administrators.
func (w *Workflow) ListCompanyInvitations(ctx context.Context, p domain.Principal, companyID string, limit, offset int) ([]InvitationSummary, error) {
	if p.IsAnonymous() {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if !p.IsAdmin() {
		return nil, apperrors.NewForbidden("administrator role required")
	}
	return w.invitations.ListCompanyInvitations(ctx, companyID, limit, offset)
}

// Catalog returns the ticket lookup tables.
func (w *Workflow) Catalog(ctx context.Context) (domain.Catalog, error) {
	return w.tickets.Catalog(ctx)
}

// ListAgents lists agents available for assignment.
func (w *Workflow) ListAgents(ctx context.Context, p domain.Principal, filter repository.AgentFilter) ([]domain.Agent, error) {
	if err := requireAgent(p); err != nil {
		return nil, err
	}
	agents, err := w.agents.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if agents == nil {
		agents = []domain.Agent{}
	}
	return agents, nil
}

func requireAgent(p domain.Principal) error {
	if p.IsAnonymous() {
		return apperrors.NewUnauthorized("authentication required")
	}
	if !p.IsAgent() {
		return apperrors.NewForbidden("agent role required")
	}
	return nil
}
