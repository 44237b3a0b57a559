package repository

import (
	"context"

	"github.com/spec-kit/support-workflow/internal/domain"
)

// TicketResponseRepository manages the response trail of tickets.
type TicketResponseRepository interface {
	Create(ctx context.Context, resp *domain.TicketResponse) error
	ListByTicket(ctx context.Context, ticketID string, includeInternal bool) ([]domain.TicketResponse, error)
}

type ticketResponseRepository struct {
	db DBTX
}

// NewTicketResponseRepository builds repository.
func NewTicketResponseRepository(db DBTX) TicketResponseRepository {
	return &ticketResponseRepository{db: db}
}

func (r *ticketResponseRepository) Create(ctx context.Context, resp *domain.TicketResponse) error {
	const query = `
        INSERT INTO ticket_responses (ticket_id, author_type, author_id, message, is_internal_note, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	return r.db.QueryRow(ctx, query,
		resp.TicketID,
		resp.AuthorType,
		resp.AuthorID,
		resp.Message,
		resp.IsInternalNote,
		resp.CreatedAt,
	).Scan(&resp.ID)
}

func (r *ticketResponseRepository) ListByTicket(ctx context.Context, ticketID string, includeInternal bool) ([]domain.TicketResponse, error) {
	query := `
        SELECT id, ticket_id, author_type, author_id, message, is_internal_note, created_at
        FROM ticket_responses WHERE ticket_id=$1`
	if !includeInternal {
		query += ` AND is_internal_note = FALSE`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketResponse
	for rows.Next() {
		var resp domain.TicketResponse
		if err := rows.Scan(
			&resp.ID,
			&resp.TicketID,
			&resp.AuthorType,
			&resp.AuthorID,
			&resp.Message,
			&resp.IsInternalNote,
			&resp.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, resp)
	}
	return result, rows.Err()
}
