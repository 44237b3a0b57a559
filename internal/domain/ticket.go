package domain

import (
	"fmt"
	"time"

	"github.com/guregu/null/v5"
)

// TicketNumberPrefix prefixes every human-readable ticket number.
const TicketNumberPrefix = "TCK-"

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID             string
	Number         string
	Title          string
	Description    string
	RequesterName  string
	RequesterEmail string
	RequesterPhone null.String
	CategoryID     string
	PriorityID     string
	StatusID       string
	AssigneeID     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ResolvedAt     *time.Time
	ClosedAt       *time.Time
}

// FormatTicketNumber renders a store sequence value as a sortable ticket number.
func FormatTicketNumber(seq int64) string {
	return fmt.Sprintf("%s%010d", TicketNumberPrefix, seq)
}

// ApplyStatus moves the ticket to status and maintains the closed stamps:
// they are set when entering a closed status, kept across closed statuses
// and cleared on reopen.
func (t *Ticket) ApplyStatus(status TicketStatus, now time.Time) {
	t.StatusID = status.ID
	if status.IsClosed {
		if t.ResolvedAt == nil {
			resolved := now
			t.ResolvedAt = &resolved
		}
		if t.ClosedAt == nil {
			closed := now
			t.ClosedAt = &closed
		}
	} else {
		t.ResolvedAt = nil
		t.ClosedAt = nil
	}
	t.UpdatedAt = now
}

// IsClosed reports whether the ticket currently carries closed stamps.
func (t *Ticket) IsClosed() bool {
	return t.ClosedAt != nil
}

// TicketFilter narrows ticket listings.
type TicketFilter struct {
	StatusID       *string
	AssigneeID     *string
	RequesterEmail *string
	Search         string
	Limit          int
	Offset         int
}

// TicketDetails bundles a ticket with its response trail and history.
type TicketDetails struct {
	Ticket      *Ticket
	Responses   []TicketResponse
	Attachments []Attachment
	History     []AuditEntry
}
