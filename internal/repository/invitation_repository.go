package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-workflow/internal/domain"
)

// InvitationRepository manages invitation persistence.
type InvitationRepository interface {
	Create(ctx context.Context, inv *domain.Invitation) error
	GetByToken(ctx context.Context, token string) (*domain.Invitation, error)
	GetByID(ctx context.Context, id string) (*domain.Invitation, error)
	// ClaimPending flips a pending, unexpired invitation to accepted. It reports
	// false when another caller won the claim or the invitation expired.
	ClaimPending(ctx context.Context, id string, now time.Time) (bool, error)
	// ReleaseClaim returns a claimed invitation to pending while no user is linked.
	ReleaseClaim(ctx context.Context, id string) error
	SetAcceptedUser(ctx context.Context, id, userID string) error
	ListByCompany(ctx context.Context, companyID string, limit, offset int) ([]domain.Invitation, error)
}

type invitationRepository struct {
	db DBTX
}

// NewInvitationRepository constructs repository.
func NewInvitationRepository(db DBTX) InvitationRepository {
	return &invitationRepository{db: db}
}

const invitationColumns = `id, token, email, company_id, inviter_id, role_id, message, expires_at,
               status, accepted_at, accepted_user_id, created_at`

func (r *invitationRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	const query = `
        INSERT INTO invitations (token, email, company_id, inviter_id, role_id, message, expires_at, status, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id`
	err := r.db.QueryRow(ctx, query,
		inv.Token,
		inv.Email,
		inv.CompanyID,
		inv.InviterID,
		inv.RoleID,
		inv.Message,
		inv.ExpiresAt,
		inv.Status,
		inv.CreatedAt,
	).Scan(&inv.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *invitationRepository) GetByToken(ctx context.Context, token string) (*domain.Invitation, error) {
	return scanInvitation(r.db.QueryRow(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token=$1`, token))
}

func (r *invitationRepository) GetByID(ctx context.Context, id string) (*domain.Invitation, error) {
	return scanInvitation(r.db.QueryRow(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id=$1`, id))
}

func (r *invitationRepository) ClaimPending(ctx context.Context, id string, now time.Time) (bool, error) {
	const query = `
        UPDATE invitations SET status='accepted', accepted_at=$2
        WHERE id=$1 AND status='pending' AND expires_at >= $2`
	cmd, err := r.db.Exec(ctx, query, id, now)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *invitationRepository) ReleaseClaim(ctx context.Context, id string) error {
	const query = `
        UPDATE invitations SET status='pending', accepted_at=NULL
        WHERE id=$1 AND status='accepted' AND accepted_user_id IS NULL`
	_, err := r.db.Exec(ctx, query, id)
	return err
}

func (r *invitationRepository) SetAcceptedUser(ctx context.Context, id, userID string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE invitations SET accepted_user_id=$2 WHERE id=$1 AND status='accepted'`, id, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *invitationRepository) ListByCompany(ctx context.Context, companyID string, limit, offset int) ([]domain.Invitation, error) {
	limit, offset = normalizeLimit(limit, offset)
	rows, err := r.db.Query(ctx, `SELECT `+invitationColumns+`
        FROM invitations WHERE company_id=$1
        ORDER BY created_at DESC LIMIT $2 OFFSET $3`, companyID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *inv)
	}
	return result, rows.Err()
}

func scanInvitation(row pgx.Row) (*domain.Invitation, error) {
	var inv domain.Invitation
	if err := row.Scan(
		&inv.ID,
		&inv.Token,
		&inv.Email,
		&inv.CompanyID,
		&inv.InviterID,
		&inv.RoleID,
		&inv.Message,
		&inv.ExpiresAt,
		&inv.Status,
		&inv.AcceptedAt,
		&inv.AcceptedUserID,
		&inv.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &inv, nil
}
