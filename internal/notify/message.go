package notify

import "time"

// Channel is the delivery medium of a message.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelInbox Channel = "inbox"
)

// Template names understood by the downstream mailer.
const (
	TemplateTicketCreated        = "ticket_created"
	TemplateTicketStatusChanged  = "ticket_status_changed"
	TemplateTicketAssigned       = "ticket_assigned"
	TemplateTicketReply          = "ticket_reply"
	TemplateTicketRequesterReply = "ticket_requester_reply"
	TemplateInvitationIssued     = "invitation_issued"
	TemplateInvitationWelcome    = "invitation_welcome"
)

// Message is one outbound notification.
type Message struct {
	ID        string         `json:"id"`
	Channel   Channel        `json:"channel"`
	Template  string         `json:"template"`
	Recipient string         `json:"recipient"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}
