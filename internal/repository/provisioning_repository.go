package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-workflow/internal/domain"
)

// ProvisionStep names one best-effort step run after an invitation is redeemed.
type ProvisionStep string

const (
	StepAcceptedUser ProvisionStep = "accepted_user"
	StepProfile      ProvisionStep = "profile"
	StepMembership   ProvisionStep = "membership"
)

// ProvisionSteps lists the steps in execution order.
var ProvisionSteps = []ProvisionStep{StepAcceptedUser, StepProfile, StepMembership}

// ProvisionRequest carries the records written for a redeemed invitation.
type ProvisionRequest struct {
	InvitationID string
	UserID       string
	Profile      domain.Profile
	Membership   domain.TeamMembership
}

// ProvisionResult reports the created membership and any per-step failure.
type ProvisionResult struct {
	Membership *domain.TeamMembership
	Failures   map[ProvisionStep]error
}

// ProvisioningRepository runs the provisioning steps.
type ProvisioningRepository interface {
	Provision(ctx context.Context, req ProvisionRequest) (ProvisionResult, error)
}

type provisioningRepository struct {
	db TxBeginner
}

// NewProvisioningRepository constructs repository.
func NewProvisioningRepository(db TxBeginner) ProvisioningRepository {
	return &provisioningRepository{db: db}
}

// Provision runs every step in one transaction with a savepoint per step, so a
// failing step is rolled back alone and the others still commit. The returned
// error is non-nil only when the enclosing transaction itself failed.
func (r *provisioningRepository) Provision(ctx context.Context, req ProvisionRequest) (ProvisionResult, error) {
	result := ProvisionResult{Failures: map[ProvisionStep]error{}}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("begin provisioning: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	membership := req.Membership
	steps := map[ProvisionStep]func(pgx.Tx) error{
		StepAcceptedUser: func(sp pgx.Tx) error {
			return NewInvitationRepository(sp).SetAcceptedUser(ctx, req.InvitationID, req.UserID)
		},
		StepProfile: func(sp pgx.Tx) error {
			profile := req.Profile
			return NewProfileRepository(sp).Upsert(ctx, &profile)
		},
		StepMembership: func(sp pgx.Tx) error {
			return NewMembershipRepository(sp).Create(ctx, &membership)
		},
	}

	for _, step := range ProvisionSteps {
		if err := runSavepoint(ctx, tx, steps[step]); err != nil {
			result.Failures[step] = err
			continue
		}
		if step == StepMembership {
			result.Membership = &membership
		}
	}

	if err := tx.Commit(ctx); err != nil {
		result.Membership = nil
		return result, fmt.Errorf("commit provisioning: %w", err)
	}
	return result, nil
}

func runSavepoint(ctx context.Context, tx pgx.Tx, fn func(pgx.Tx) error) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(sp); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}
