package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/spec-kit/support-workflow/internal/domain"
)

// AgentRepository reads support agents.
type AgentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	GetByEmail(ctx context.Context, email string) (*domain.Agent, error)
	List(ctx context.Context, filter AgentFilter) ([]domain.Agent, error)
}

// AgentFilter defines query params for agent listing.
type AgentFilter struct {
	Role   *domain.AgentRole
	Active *bool
	Limit  int
	Offset int
}

type agentRepository struct {
	db DBTX
}

// NewAgentRepository instantiates the repository.
func NewAgentRepository(db DBTX) AgentRepository {
	return &agentRepository{db: db}
}

const agentColumns = `id, name, email, password_hash, role, active_flag, created_at, updated_at`

func (r *agentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	return r.fetchSingle(ctx, `SELECT `+agentColumns+` FROM agents WHERE id=$1`, id)
}

func (r *agentRepository) GetByEmail(ctx context.Context, email string) (*domain.Agent, error) {
	return r.fetchSingle(ctx, `SELECT `+agentColumns+` FROM agents WHERE email=$1`, strings.ToLower(email))
}

func (r *agentRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Agent, error) {
	var agent domain.Agent
	if err := r.db.QueryRow(ctx, query, arg).Scan(
		&agent.ID,
		&agent.Name,
		&agent.Email,
		&agent.PasswordHash,
		&agent.Role,
		&agent.Active,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepository) List(ctx context.Context, filter AgentFilter) ([]domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents`
	args := []any{}
	clauses := []string{}

	if filter.Role != nil {
		args = append(args, *filter.Role)
		clauses = append(clauses, fmt.Sprintf("role=$%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active_flag=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	limit, offset := normalizeLimit(filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY name ASC LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Agent
	for rows.Next() {
		var agent domain.Agent
		if err := rows.Scan(
			&agent.ID,
			&agent.Name,
			&agent.Email,
			&agent.PasswordHash,
			&agent.Role,
			&agent.Active,
			&agent.CreatedAt,
			&agent.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, agent)
	}
	return result, rows.Err()
}
