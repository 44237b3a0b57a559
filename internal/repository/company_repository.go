package repository

import (
	"context"

	"github.com/spec-kit/support-workflow/internal/domain"
)

// CompanyRepository reads companies that own memberships.
type CompanyRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Company, error)
}

type companyRepository struct {
	db DBTX
}

// NewCompanyRepository constructs repository.
func NewCompanyRepository(db DBTX) CompanyRepository {
	return &companyRepository{db: db}
}

func (r *companyRepository) GetByID(ctx context.Context, id string) (*domain.Company, error) {
	const query = `
        SELECT id, name, is_active, created_at, updated_at
        FROM companies WHERE id=$1`
	var company domain.Company
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&company.ID,
		&company.Name,
		&company.Active,
		&company.CreatedAt,
		&company.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &company, nil
}
