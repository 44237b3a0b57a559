package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-workflow/internal/clock"
	"github.com/spec-kit/support-workflow/internal/domain"
	"github.com/spec-kit/support-workflow/internal/observability"
	"github.com/spec-kit/support-workflow/internal/repository"
	apperrors "github.com/spec-kit/support-workflow/pkg/util/errorutil"
)

// AuditSink records audit entries without ever failing the caller.
type AuditSink interface {
	Record(ctx context.Context, entry domain.AuditEntry)
}

// AuditService persists audit entries and falls back to the log when the store is unavailable.
type AuditService struct {
	repo    repository.AuditLogRepository
	logger  *zap.Logger
	metrics *observability.Metrics
	clock   clock.Clock
	timeout time.Duration
}

// AuditDependencies bundles collaborators for the audit service.
type AuditDependencies struct {
	AuditRepo    repository.AuditLogRepository
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Clock        clock.Clock
	WriteTimeout time.Duration
}

// NewAuditService creates the service.
func NewAuditService(deps AuditDependencies) *AuditService {
	s := &AuditService{
		repo:    deps.AuditRepo,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		clock:   deps.Clock,
		timeout: deps.WriteTimeout,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.timeout <= 0 {
		s.timeout = 2 * time.Second
	}
	return s
}

// Record appends entry. The insert runs detached from the caller's
// cancellation; a failed write is logged at warn level and counted.
func (s *AuditService) Record(ctx context.Context, entry domain.AuditEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now()
	}
	if entry.Level == "" {
		entry.Level = domain.AuditLevelInfo
	}
	if entry.Detail == nil {
		entry.Detail = map[string]any{}
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var err error
	if s.repo == nil {
		err = errAuditStoreMissing
	} else {
		err = s.repo.Create(writeCtx, &entry)
	}
	if err == nil {
		return
	}

	s.metrics.RecordAuditFailure(entry.Action)
	fields := []zap.Field{
		zap.String("action", entry.Action),
		zap.String("actor_type", string(entry.ActorType)),
		zap.String("subject_type", entry.SubjectType),
		zap.String("subject_id", entry.SubjectID),
		zap.String("level", string(entry.Level)),
		zap.Any("detail", entry.Detail),
		zap.Time("at", entry.CreatedAt),
		zap.Error(err),
	}
	if entry.ActorID != nil {
		fields = append(fields, zap.String("actor_id", *entry.ActorID))
	}
	s.logger.Warn("audit write failed", fields...)
}

// ListBySubject returns the audit trail of one subject, oldest first.
func (s *AuditService) ListBySubject(ctx context.Context, subjectType, subjectID string, limit, offset int) ([]domain.AuditEntry, error) {
	if s.repo == nil {
		return []domain.AuditEntry{}, nil
	}
	entries, err := s.repo.ListBySubject(ctx, subjectType, subjectID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

var errAuditStoreMissing = errors.New("audit store not configured")
