package repository

import (
	"context"

	"github.com/spec-kit/support-workflow/internal/domain"
)

// MembershipRepository manages team memberships.
type MembershipRepository interface {
	Create(ctx context.Context, m *domain.TeamMembership) error
	GetByUserAndCompany(ctx context.Context, userID, companyID string) (*domain.TeamMembership, error)
}

type membershipRepository struct {
	db DBTX
}

// NewMembershipRepository constructs repository.
func NewMembershipRepository(db DBTX) MembershipRepository {
	return &membershipRepository{db: db}
}

// Create inserts a membership; a second row for the same user and company yields ErrDuplicate.
func (r *membershipRepository) Create(ctx context.Context, m *domain.TeamMembership) error {
	const query = `
        INSERT INTO team_memberships (user_id, company_id, role_id, status, joined_at, invited_by, invited_email, display_name)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id`
	err := r.db.QueryRow(ctx, query,
		m.UserID,
		m.CompanyID,
		m.RoleID,
		m.Status,
		m.JoinedAt,
		m.InvitedBy,
		m.InvitedEmail,
		m.DisplayName,
	).Scan(&m.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetByUserAndCompany returns pgx.ErrNoRows when the user has no membership in the company.
func (r *membershipRepository) GetByUserAndCompany(ctx context.Context, userID, companyID string) (*domain.TeamMembership, error) {
	const query = `
        SELECT id, user_id, company_id, role_id, status, joined_at, invited_by, invited_email, display_name
        FROM team_memberships WHERE user_id=$1 AND company_id=$2`
	var m domain.TeamMembership
	err := r.db.QueryRow(ctx, query, userID, companyID).Scan(
		&m.ID,
		&m.UserID,
		&m.CompanyID,
		&m.RoleID,
		&m.Status,
		&m.JoinedAt,
		&m.InvitedBy,
		&m.InvitedEmail,
		&m.DisplayName,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
