package repository

import (
	"context"

	"github.com/spec-kit/support-workflow/internal/domain"
)

// AuditLogRepository stores audit entries.
type AuditLogRepository interface {
	Create(ctx context.Context, entry *domain.AuditEntry) error
	ListBySubject(ctx context.Context, subjectType, subjectID string, limit, offset int) ([]domain.AuditEntry, error)
}

type auditLogRepository struct {
	db DBTX
}

// NewAuditLogRepository builds repository.
func NewAuditLogRepository(db DBTX) AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *domain.AuditEntry) error {
	const query = `
        INSERT INTO audit_log (actor_type, actor_id, action, subject_type, subject_id, detail, level, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id`
	return r.db.QueryRow(ctx, query,
		entry.ActorType,
		entry.ActorID,
		entry.Action,
		entry.SubjectType,
		entry.SubjectID,
		entry.Detail,
		entry.Level,
		entry.CreatedAt,
	).Scan(&entry.ID)
}

func (r *auditLogRepository) ListBySubject(ctx context.Context, subjectType, subjectID string, limit, offset int) ([]domain.AuditEntry, error) {
	limit, offset = normalizeLimit(limit, offset)
	const query = `
        SELECT id, actor_type, actor_id, action, subject_type, subject_id, detail, level, created_at
        FROM audit_log WHERE subject_type=$1 AND subject_id=$2
        ORDER BY created_at ASC LIMIT $3 OFFSET $4`
	rows, err := r.db.Query(ctx, query, subjectType, subjectID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.ActorType,
			&entry.ActorID,
			&entry.Action,
			&entry.SubjectType,
			&entry.SubjectID,
			&entry.Detail,
			&entry.Level,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
