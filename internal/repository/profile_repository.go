package repository

import (
	"context"

	"github.com/spec-kit/support-workflow/internal/domain"
)

// ProfileRepository stores user profiles.
type ProfileRepository interface {
	Upsert(ctx context.Context, p *domain.Profile) error
}

type profileRepository struct {
	db DBTX
}

// NewProfileRepository constructs repository.
func NewProfileRepository(db DBTX) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) Upsert(ctx context.Context, p *domain.Profile) error {
	const query = `
        INSERT INTO profiles (user_id, display_name, email, company_id, created_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (user_id) DO UPDATE SET display_name=EXCLUDED.display_name,
            email=EXCLUDED.email, company_id=EXCLUDED.company_id`
	_, err := r.db.Exec(ctx, query, p.UserID, p.DisplayName, p.Email, p.CompanyID, p.CreatedAt)
	return err
}
