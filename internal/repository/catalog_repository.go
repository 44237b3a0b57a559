package repository

import (
	"context"

	"github.com/spec-kit/support-workflow/internal/domain"
)

// CatalogRepository reads and seeds the status, category and priority lookup tables.
type CatalogRepository interface {
	ListStatuses(ctx context.Context) ([]domain.TicketStatus, error)
	ListCategories(ctx context.Context) ([]domain.TicketCategory, error)
	ListPriorities(ctx context.Context) ([]domain.TicketPriority, error)
	GetStatus(ctx context.Context, id string) (*domain.TicketStatus, error)
	GetCategory(ctx context.Context, id string) (*domain.TicketCategory, error)
	GetPriority(ctx context.Context, id string) (*domain.TicketPriority, error)
	DefaultStatus(ctx context.Context) (*domain.TicketStatus, error)
	Upsert(ctx context.Context, catalog domain.Catalog) error
}

type catalogRepository struct {
	db DBTX
}

// NewCatalogRepository constructs repository.
func NewCatalogRepository(db DBTX) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) ListStatuses(ctx context.Context) ([]domain.TicketStatus, error) {
	rows, err := r.db.Query(ctx, `
        SELECT id, name, is_closed, is_default, sort_order
        FROM ticket_statuses ORDER BY sort_order ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketStatus
	for rows.Next() {
		var s domain.TicketStatus
		if err := rows.Scan(&s.ID, &s.Name, &s.IsClosed, &s.IsDefault, &s.SortOrder); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *catalogRepository) ListCategories(ctx context.Context) ([]domain.TicketCategory, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, active FROM ticket_categories ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketCategory
	for rows.Next() {
		var c domain.TicketCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Active); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *catalogRepository) ListPriorities(ctx context.Context) ([]domain.TicketPriority, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, rank FROM ticket_priorities ORDER BY rank ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketPriority
	for rows.Next() {
		var p domain.TicketPriority
		if err := rows.Scan(&p.ID, &p.Name, &p.Rank); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *catalogRepository) GetStatus(ctx context.Context, id string) (*domain.TicketStatus, error) {
	var s domain.TicketStatus
	if err := r.db.QueryRow(ctx, `
        SELECT id, name, is_closed, is_default, sort_order
        FROM ticket_statuses WHERE id=$1`, id,
	).Scan(&s.ID, &s.Name, &s.IsClosed, &s.IsDefault, &s.SortOrder); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *catalogRepository) DefaultStatus(ctx context.Context) (*domain.TicketStatus, error) {
	var s domain.TicketStatus
	if err := r.db.QueryRow(ctx, `
        SELECT id, name, is_closed, is_default, sort_order
        FROM ticket_statuses WHERE is_default = TRUE LIMIT 1`,
	).Scan(&s.ID, &s.Name, &s.IsClosed, &s.IsDefault, &s.SortOrder); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *catalogRepository) GetCategory(ctx context.Context, id string) (*domain.TicketCategory, error) {
	var c domain.TicketCategory
	if err := r.db.QueryRow(ctx, `SELECT id, name, active FROM ticket_categories WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Active); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *catalogRepository) GetPriority(ctx context.Context, id string) (*domain.TicketPriority, error) {
	var p domain.TicketPriority
	if err := r.db.QueryRow(ctx, `SELECT id, name, rank FROM ticket_priorities WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Rank); err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert writes every entry by id. Run it inside a transaction: the default
// flag is cleared first so the seed file decides the single default status.
func (r *catalogRepository) Upsert(ctx context.Context, catalog domain.Catalog) error {
	if _, err := r.db.Exec(ctx, `UPDATE ticket_statuses SET is_default = FALSE WHERE is_default = TRUE`); err != nil {
		return err
	}
	for _, s := range catalog.Statuses {
		if _, err := r.db.Exec(ctx, `
            INSERT INTO ticket_statuses (id, name, is_closed, is_default, sort_order)
            VALUES ($1,$2,$3,$4,$5)
            ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, is_closed=EXCLUDED.is_closed,
                is_default=EXCLUDED.is_default, sort_order=EXCLUDED.sort_order`,
			s.ID, s.Name, s.IsClosed, s.IsDefault, s.SortOrder,
		); err != nil {
			return err
		}
	}
	for _, c := range catalog.Categories {
		if _, err := r.db.Exec(ctx, `
            INSERT INTO ticket_categories (id, name, active)
            VALUES ($1,$2,$3)
            ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, active=EXCLUDED.active`,
			c.ID, c.Name, c.Active,
		); err != nil {
			return err
		}
	}
	for _, p := range catalog.Priorities {
		if _, err := r.db.Exec(ctx, `
            INSERT INTO ticket_priorities (id, name, rank)
            VALUES ($1,$2,$3)
            ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, rank=EXCLUDED.rank`,
			p.ID, p.Name, p.Rank,
		); err != nil {
			return err
		}
	}
	return nil
}
