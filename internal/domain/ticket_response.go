package domain

import "time"

// ResponseAuthorType indicates who authored a response.
type ResponseAuthorType string

const (
	AuthorTypeAgent     ResponseAuthorType = "agent"
	AuthorTypeRequester ResponseAuthorType = "requester"
	AuthorTypeSystem    ResponseAuthorType = "system"
)

// TicketResponse is one entry of a ticket's response trail.
type TicketResponse struct {
	ID             string
	TicketID       string
	AuthorType     ResponseAuthorType
	AuthorID       *string
	Message        string
	IsInternalNote bool
	CreatedAt      time.Time
}

// Attachment references externally stored file metadata.
type Attachment struct {
	ID         string
	TicketID   string
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
	CreatedAt  time.Time
}
