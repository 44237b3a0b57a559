package events

import (
	"time"

	"github.com/spec-kit/support-workflow/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketUpdated       EventType = "ticket_updated"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketResponseAdded EventType = "ticket_response_added"
	EventInvitationIssued    EventType = "invitation_issued"
	EventInvitationRedeemed  EventType = "invitation_redeemed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type domain.ActorType `json:"type"`
	ID   *string          `json:"id,omitempty"`
}

// ActorFrom builds the event actor for a principal.
func ActorFrom(p domain.Principal) Actor {
	return Actor{Type: p.ActorType(), ID: p.ActorID()}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	SubjectID string    `json:"subject_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Number         string `json:"number"`
	Title          string `json:"title"`
	RequesterName  string `json:"requester_name"`
	RequesterEmail string `json:"requester_email"`
	CategoryID     string `json:"category_id"`
	PriorityID     string `json:"priority_id"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	Number         string `json:"number"`
	Title          string `json:"title"`
	RequesterName  string `json:"requester_name"`
	RequesterEmail string `json:"requester_email"`
	OldStatusID    string `json:"old_status_id"`
	NewStatusID    string `json:"new_status_id"`
	NewStatusName  string `json:"new_status_name"`
	IsClosed       bool   `json:"is_closed"`
}

// TicketUpdatedPayload payload for priority and category changes.
type TicketUpdatedPayload struct {
	Number   string `json:"number"`
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	Number        string  `json:"number"`
	Title         string  `json:"title"`
	OldAssigneeID *string `json:"old_assignee_id,omitempty"`
	NewAssigneeID string  `json:"new_assignee_id"`
}

// TicketResponseAddedPayload payload.
type TicketResponseAddedPayload struct {
	Number         string                    `json:"number"`
	Title          string                    `json:"title"`
	ResponseID     string                    `json:"response_id"`
	AuthorType     domain.ResponseAuthorType `json:"author_type"`
	AuthorID       *string                   `json:"author_id,omitempty"`
	IsInternalNote bool                      `json:"is_internal_note"`
	MessagePreview string                    `json:"message_preview"`
	RequesterName  string                    `json:"requester_name"`
	RequesterEmail string                    `json:"requester_email"`
	AssigneeID     *string                   `json:"assignee_id,omitempty"`
	Reopened       bool                      `json:"reopened"`
}

// InvitationIssuedPayload payload.
type InvitationIssuedPayload struct {
	InvitationID string    `json:"invitation_id"`
	Token        string    `json:"token"`
	Email        string    `json:"email"`
	CompanyID    string    `json:"company_id"`
	CompanyName  string    `json:"company_name"`
	InviterName  string    `json:"inviter_name"`
	RoleID       string    `json:"role_id"`
	Message      string    `json:"message,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// InvitationRedeemedPayload payload.
type InvitationRedeemedPayload struct {
	InvitationID string `json:"invitation_id"`
	CompanyID    string `json:"company_id"`
	CompanyName  string `json:"company_name"`
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
}
