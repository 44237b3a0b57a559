package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-workflow/internal/domain"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	List(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, number, title, description, requester_name, requester_email, requester_phone,
               category_id, priority_id, status_id, assignee_agent_id, created_at, updated_at, resolved_at, closed_at`

// Create assigns the ticket number from the store sequence and inserts the row.
func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	var seq int64
	if err := r.db.QueryRow(ctx, `SELECT nextval('ticket_number_seq')`).Scan(&seq); err != nil {
		return fmt.Errorf("allocate ticket number: %w", err)
	}
	ticket.Number = domain.FormatTicketNumber(seq)

	const query = `
        INSERT INTO tickets (number, title, description, requester_name, requester_email, requester_phone,
            category_id, priority_id, status_id, assignee_agent_id, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id`
	return r.db.QueryRow(ctx, query,
		ticket.Number,
		ticket.Title,
		ticket.Description,
		ticket.RequesterName,
		ticket.RequesterEmail,
		ticket.RequesterPhone,
		ticket.CategoryID,
		ticket.PriorityID,
		ticket.StatusID,
		ticket.AssigneeID,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	).Scan(&ticket.ID)
}

// Update writes mutable fields. The number column is never part of the update.
func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, category_id=$3, priority_id=$4, status_id=$5,
            assignee_agent_id=$6, resolved_at=$7, closed_at=$8, updated_at=$9
        WHERE id=$10`
	cmd, err := r.db.Exec(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.CategoryID,
		ticket.PriorityID,
		ticket.StatusID,
		ticket.AssigneeID,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.UpdatedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE number=$1`
	return r.fetchSingle(ctx, query, number)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.StatusID != nil {
		args = append(args, *filter.StatusID)
		clauses = append(clauses, fmt.Sprintf("status_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_agent_id=$%d", len(args)))
	}
	if filter.RequesterEmail != nil {
		args = append(args, strings.ToLower(*filter.RequesterEmail))
		clauses = append(clauses, fmt.Sprintf("LOWER(requester_email)=$%d", len(args)))
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		args = append(args, containsPattern(strings.ToLower(term)))
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(
			`(LOWER(title) LIKE %[1]s ESCAPE '\' OR LOWER(description) LIKE %[1]s ESCAPE '\' OR LOWER(number) LIKE %[1]s ESCAPE '\')`,
			placeholder))
	}

	limit, offset := normalizeLimit(filter.Limit, filter.Offset)

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.Title,
		&ticket.Description,
		&ticket.RequesterName,
		&ticket.RequesterEmail,
		&ticket.RequesterPhone,
		&ticket.CategoryID,
		&ticket.PriorityID,
		&ticket.StatusID,
		&ticket.AssigneeID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
