package dto

import (
	"time"

	"github.com/spec-kit/support-workflow/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	RequesterName  string              `json:"requester_name"`
	RequesterEmail string              `json:"requester_email"`
	RequesterPhone *string             `json:"requester_phone"`
	CategoryID     string              `json:"category_id"`
	PriorityID     string              `json:"priority_id"`
	Attachments    []AttachmentRequest `json:"attachments"`
}

// AttachmentRequest carries metadata of a file stored elsewhere.
type AttachmentRequest struct {
	StorageKey string `json:"storage_key"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	StatusID string `json:"status_id"`
}

// UpdatePriorityRequest payload.
type UpdatePriorityRequest struct {
	PriorityID string `json:"priority_id"`
}

// UpdateCategoryRequest payload.
type UpdateCategoryRequest struct {
	CategoryID string `json:"category_id"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AgentID string `json:"agent_id"`
}

// AddResponseRequest payload.
type AddResponseRequest struct {
	Message        string  `json:"message"`
	IsInternalNote bool    `json:"is_internal_note"`
	ReopenStatusID *string `json:"reopen_status_id"`
}

// TicketSummary response.
type TicketSummary struct {
	ID             string     `json:"id"`
	Number         string     `json:"number"`
	Title          string     `json:"title"`
	RequesterName  string     `json:"requester_name"`
	RequesterEmail string     `json:"requester_email"`
	CategoryID     string     `json:"category_id"`
	PriorityID     string     `json:"priority_id"`
	StatusID       string     `json:"status_id"`
	AssigneeID     *string    `json:"assignee_id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ResolvedAt     *time.Time `json:"resolved_at"`
	ClosedAt       *time.Time `json:"closed_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Description    string               `json:"description"`
	RequesterPhone *string              `json:"requester_phone"`
	Responses      []TicketResponseItem `json:"responses"`
	Attachments    []AttachmentItem     `json:"attachments"`
	History        []AuditEntryItem     `json:"history,omitempty"`
}

// TicketResponseItem represents one entry of the response trail.
type TicketResponseItem struct {
	ID             string    `json:"id"`
	AuthorType     string    `json:"author_type"`
	AuthorID       *string   `json:"author_id"`
	Message        string    `json:"message"`
	IsInternalNote bool      `json:"is_internal_note"`
	CreatedAt      time.Time `json:"created_at"`
}

// AttachmentItem describes stored attachment metadata.
type AttachmentItem struct {
	ID         string    `json:"id"`
	StorageKey string    `json:"storage_key"`
	FileName   string    `json:"file_name"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditEntryItem is one history row shown to agents.
type AuditEntryItem struct {
	ID        string         `json:"id"`
	ActorType string         `json:"actor_type"`
	ActorID   *string        `json:"actor_id"`
	Action    string         `json:"action"`
	Level     string         `json:"level"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewTicketSummary maps a ticket onto its summary.
func NewTicketSummary(t *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:             t.ID,
		Number:         t.Number,
		Title:          t.Title,
		RequesterName:  t.RequesterName,
		RequesterEmail: t.RequesterEmail,
		CategoryID:     t.CategoryID,
		PriorityID:     t.PriorityID,
		StatusID:       t.StatusID,
		AssigneeID:     t.AssigneeID,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
		ResolvedAt:     t.ResolvedAt,
		ClosedAt:       t.ClosedAt,
	}
}

// NewTicketDetail maps ticket details, including history when present.
func NewTicketDetail(d *domain.TicketDetails) TicketDetailResponse {
	resp := TicketDetailResponse{
		TicketSummary:  NewTicketSummary(d.Ticket),
		Description:    d.Ticket.Description,
		RequesterPhone: d.Ticket.RequesterPhone.Ptr(),
		Responses:      make([]TicketResponseItem, 0, len(d.Responses)),
		Attachments:    make([]AttachmentItem, 0, len(d.Attachments)),
	}
	for i := range d.Responses {
		resp.Responses = append(resp.Responses, NewTicketResponseItem(&d.Responses[i]))
	}
	for _, a := range d.Attachments {
		resp.Attachments = append(resp.Attachments, AttachmentItem{
			ID:         a.ID,
			StorageKey: a.StorageKey,
			FileName:   a.FileName,
			MimeType:   a.MimeType,
			SizeBytes:  a.SizeBytes,
			CreatedAt:  a.CreatedAt,
		})
	}
	for _, h := range d.History {
		resp.History = append(resp.History, AuditEntryItem{
			ID:        h.ID,
			ActorType: string(h.ActorType),
			ActorID:   h.ActorID,
			Action:    h.Action,
			Level:     string(h.Level),
			Detail:    h.Detail,
			CreatedAt: h.CreatedAt,
		})
	}
	return resp
}

// NewTicketResponseItem maps a single response.
func NewTicketResponseItem(r *domain.TicketResponse) TicketResponseItem {
	return TicketResponseItem{
		ID:             r.ID,
		AuthorType:     string(r.AuthorType),
		AuthorID:       r.AuthorID,
		Message:        r.Message,
		IsInternalNote: r.IsInternalNote,
		CreatedAt:      r.CreatedAt,
	}
}
