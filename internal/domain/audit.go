package domain

import "time"

// ActorType identifies who performed an audited action.
type ActorType string

const (
	ActorTypeAgent     ActorType = "agent"
	ActorTypeUser      ActorType = "user"
	ActorTypeAnonymous ActorType = "anonymous"
	ActorTypeSystem    ActorType = "system"
)

// AuditLevel grades audit entries.
type AuditLevel string

const (
	AuditLevelInfo  AuditLevel = "info"
	AuditLevelWarn  AuditLevel = "warn"
	AuditLevelError AuditLevel = "error"
)

// Audit subjects.
const (
	SubjectTicket     = "ticket"
	SubjectInvitation = "invitation"
)

// Audit actions.
const (
	ActionTicketCreated         = "ticket.created"
	ActionTicketStatusChanged   = "ticket.status_changed"
	ActionTicketPriorityChanged = "ticket.priority_changed"
	ActionTicketCategoryChanged = "ticket.category_changed"
	ActionTicketAssigned        = "ticket.assigned"
	ActionTicketResponseAdded   = "ticket.response_added"
	ActionInvitationIssued      = "invitation.issued"
	ActionInvitationRedeemed    = "invitation.redeemed"
	ActionInvitationProvision   = "invitation.provisioning_step_failed"
)

// AuditEntry is an append-only record of a state change.
type AuditEntry struct {
	ID          string
	ActorType   ActorType
	ActorID     *string
	Action      string
	SubjectType string
	SubjectID   string
	Detail      map[string]any
	Level       AuditLevel
	CreatedAt   time.Time
}
