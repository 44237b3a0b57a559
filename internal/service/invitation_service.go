package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/guregu/null/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/support-workflow/internal/clock"
	"github.com/spec-kit/support-workflow/internal/domain"
	"github.com/spec-kit/support-workflow/internal/events"
	"github.com/spec-kit/support-workflow/internal/observability"
	"github.com/spec-kit/support-workflow/internal/repository"
	apperrors "github.com/spec-kit/support-workflow/pkg/util/errorutil"
)

const (
	invitationTokenBytes  = 32
	tokenCollisionRetries = 3
	defaultInvitationTTL  = 7 * 24 * time.Hour
	defaultProvisionWait  = 10 * time.Second

	// MaxInvitationTTL bounds the lifetime a caller may request in either direction.
	MaxInvitationTTL = 365 * 24 * time.Hour
)

// IdentityProvider creates the login identity for a redeemed invitation.
type IdentityProvider interface {
	CreateIdentity(ctx context.Context, name, email, password string) (*domain.User, error)
}

// InvitationService issues and redeems team invitations.
type InvitationService struct {
	invitations  repository.InvitationRepository
	companies    repository.CompanyRepository
	memberships  MembershipLookup
	provisioning repository.ProvisioningRepository
	identity     IdentityProvider
	audit        AuditSink
	dispatcher   events.Dispatcher
	clock        clock.Clock
	logger       *zap.Logger
	metrics      *observability.Metrics
	defaultTTL   time.Duration
	provisionTTL time.Duration
}

// MembershipLookup finds the inviter's standing in a company.
type MembershipLookup interface {
	GetByUserAndCompany(ctx context.Context, userID, companyID string) (*domain.TeamMembership, error)
}

// InvitationDependencies bundles collaborators for the invitation service.
type InvitationDependencies struct {
	InvitationRepo   repository.InvitationRepository
	CompanyRepo      repository.CompanyRepository
	MembershipRepo   MembershipLookup
	ProvisioningRepo repository.ProvisioningRepository
	Identity         IdentityProvider
	Audit            AuditSink
	Dispatcher       events.Dispatcher
	Clock            clock.Clock
	Logger           *zap.Logger
	Metrics          *observability.Metrics
	DefaultTTL       time.Duration
	// ProvisionTimeout bounds the provisioning transaction, which runs
	// detached from the caller's cancellation.
	ProvisionTimeout time.Duration
}

// IssueInput describes a new invitation. A zero TTL selects the configured
// default; a negative TTL yields an invitation that is already expired.
// RoleID must be a known membership role.
type IssueInput struct {
	CompanyID string        `json:"company_id" validate:"required"`
	Email     string        `json:"email" validate:"required,email,max=255"`
	Message   *string       `json:"message" validate:"omitempty,max=2000"`
	RoleID    *string       `json:"role_id" validate:"omitempty,max=64"`
	TTL       time.Duration `json:"-"`
}

// SignupInput carries the identity details supplied at redemption.
type SignupInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"omitempty,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// RedeemResult is the outcome of a successful redemption. Membership is nil
// when provisioning could not create it.
type RedeemResult struct {
	User       *domain.User
	Membership *domain.TeamMembership
}

// InvitationSummary pairs an invitation with its status derived at read time.
type InvitationSummary struct {
	Invitation      domain.Invitation
	EffectiveStatus domain.InvitationStatus
}

// NewInvitationService constructs the service.
func NewInvitationService(deps InvitationDependencies) *InvitationService {
	s := &InvitationService{
		invitations:  deps.InvitationRepo,
		companies:    deps.CompanyRepo,
		memberships:  deps.MembershipRepo,
		provisioning: deps.ProvisioningRepo,
		identity:     deps.Identity,
		audit:        deps.Audit,
		dispatcher:   deps.Dispatcher,
		clock:        deps.Clock,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		defaultTTL:   deps.DefaultTTL,
		provisionTTL: deps.ProvisionTimeout,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.defaultTTL <= 0 {
		s.defaultTTL = defaultInvitationTTL
	}
	if s.provisionTTL <= 0 {
		s.provisionTTL = defaultProvisionWait
	}
	return s
}

// IssueInvitation creates a pending invitation with a fresh token. Admin
// agents may invite into any company; users need an active membership in the
// company ranked at least as high as the role they grant.
func (s *InvitationService) IssueInvitation(ctx context.Context, actor domain.Principal, input IssueInput) (*domain.InvitationView, error) {
	if actor.IsAnonymous() {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	input.CompanyID = strings.TrimSpace(input.CompanyID)
	input.Email = normalizeEmail(input.Email)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.TTL > MaxInvitationTTL || input.TTL < -MaxInvitationTTL {
		return nil, apperrors.NewValidationError("invitation lifetime out of range", map[string]any{"ttl": "out_of_range"})
	}

	company, err := s.companies.GetByID(ctx, input.CompanyID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewValidationError("unknown company", map[string]any{"company_id": "unknown"})
		}
		return nil, apperrors.MapError(err)
	}
	if !company.Active {
		return nil, apperrors.NewValidationError("company is inactive", map[string]any{"company_id": "inactive"})
	}

	roleID := domain.DefaultMembershipRole
	if input.RoleID != nil && strings.TrimSpace(*input.RoleID) != "" {
		roleID = strings.ToLower(strings.TrimSpace(*input.RoleID))
	}
	if _, known := domain.MembershipRoleLevel(roleID); !known {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role_id": "unknown"})
	}
	if err := s.authorizeInviter(ctx, actor, company.ID, roleID); err != nil {
		return nil, err
	}
	var message null.String
	if input.Message != nil && strings.TrimSpace(*input.Message) != "" {
		message = null.StringFrom(strings.TrimSpace(*input.Message))
	}
	ttl := input.TTL
	if ttl == 0 {
		ttl = s.defaultTTL
	}

	now := s.clock.Now()
	inv := &domain.Invitation{
		Email:     input.Email,
		CompanyID: company.ID,
		InviterID: actor.ID,
		RoleID:    roleID,
		Message:   message,
		ExpiresAt: now.Add(ttl),
		Status:    domain.InvitationStatusPending,
		CreatedAt: now,
	}

	for attempt := 1; ; attempt++ {
		token, err := generateSecureToken(invitationTokenBytes)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		inv.Token = token
		err = s.invitations.Create(ctx, inv)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrDuplicate) && attempt < tokenCollisionRetries {
			continue
		}
		return nil, apperrors.MapError(err)
	}

	s.record(ctx, actor.ActorType(), actor.ActorID(), domain.ActionInvitationIssued, inv.ID, domain.AuditLevelInfo, map[string]any{
		"email":      inv.Email,
		"company_id": inv.CompanyID,
		"role_id":    inv.RoleID,
		"expires_at": inv.ExpiresAt,
	})
	return &domain.InvitationView{Invitation: inv, Company: company}, nil
}

// LoadInvitation returns a redeemable invitation. Expiry is checked before
// the stored status.
func (s *InvitationService) LoadInvitation(ctx context.Context, ref domain.InvitationRef) (*domain.InvitationView, error) {
	inv, err := s.fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.checkRedeemable(inv, s.clock.Now()); err != nil {
		return nil, err
	}
	company, err := s.companies.GetByID(ctx, inv.CompanyID)
	if err != nil {
		return nil, apperrors.MapStoreError(err, "company", map[string]any{"company_id": inv.CompanyID})
	}
	return &domain.InvitationView{Invitation: inv, Company: company}, nil
}

// RedeemInvitation claims the invitation, creates the identity and
// provisions profile and membership. Only identity creation can fail the
// call; provisioning problems are logged and audited.
func (s *InvitationService) RedeemInvitation(ctx context.Context, ref domain.InvitationRef, input SignupInput) (*RedeemResult, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = normalizeEmail(input.Email)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	view, err := s.LoadInvitation(ctx, ref)
	if err != nil {
		return nil, err
	}
	inv := view.Invitation
	if input.Email == "" {
		input.Email = inv.Email
	}
	if input.Email != inv.Email {
		return nil, apperrors.NewValidationError("email does not match the invitation", map[string]any{"email": "mismatch"})
	}

	now := s.clock.Now()
	claimed, err := s.invitations.ClaimPending(ctx, inv.ID, now)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !claimed {
		return nil, s.claimLost(ctx, inv.ID, now)
	}

	user, err := s.identity.CreateIdentity(ctx, input.Name, input.Email, input.Password)
	if err != nil {
		if releaseErr := s.invitations.ReleaseClaim(context.WithoutCancel(ctx), inv.ID); releaseErr != nil {
			s.logger.Error("invitation claim not released",
				zap.String("invitation_id", inv.ID),
				zap.Error(releaseErr))
		}
		return nil, apperrors.MapError(err)
	}
	inv.Status = domain.InvitationStatusAccepted
	inv.AcceptedAt = &now
	inv.AcceptedUserID = &user.ID

	// The identity exists now; provisioning must finish even if the caller goes away.
	provisionCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.provisionTTL)
	defer cancel()
	invitedBy := inv.InviterID
	provision, err := s.provisioning.Provision(provisionCtx, repository.ProvisionRequest{
		InvitationID: inv.ID,
		UserID:       user.ID,
		Profile: domain.Profile{
			UserID:      user.ID,
			DisplayName: input.Name,
			Email:       user.Email,
			CompanyID:   inv.CompanyID,
			CreatedAt:   now,
		},
		Membership: domain.TeamMembership{
			UserID:       user.ID,
			CompanyID:    inv.CompanyID,
			RoleID:       inv.RoleID,
			Status:       domain.MembershipStatusActive,
			JoinedAt:     now,
			InvitedBy:    &invitedBy,
			InvitedEmail: inv.Email,
			DisplayName:  input.Name,
		},
	})
	userID := user.ID
	if err != nil {
		s.provisionFailed(ctx, inv.ID, userID, "transaction", err)
		for _, step := range repository.ProvisionSteps {
			s.metrics.RecordProvisioningStep(string(step), OutcomeFailed)
		}
	} else {
		for _, step := range repository.ProvisionSteps {
			if stepErr, failed := provision.Failures[step]; failed {
				s.provisionFailed(ctx, inv.ID, userID, string(step), stepErr)
				s.metrics.RecordProvisioningStep(string(step), OutcomeFailed)
				continue
			}
			s.metrics.RecordProvisioningStep(string(step), "ok")
		}
	}

	s.record(ctx, domain.ActorTypeUser, &userID, domain.ActionInvitationRedeemed, inv.ID, domain.AuditLevelInfo, map[string]any{
		"user_id":    userID,
		"company_id": inv.CompanyID,
		"role_id":    inv.RoleID,
		"membership": provision.Membership != nil,
	})
	publishEvent(ctx, s.dispatcher, s.clock, events.Event{
		Type:      events.EventInvitationRedeemed,
		SubjectID: inv.ID,
		Actor:     events.Actor{Type: domain.ActorTypeUser, ID: &userID},
		Payload: events.InvitationRedeemedPayload{
			InvitationID: inv.ID,
			CompanyID:    inv.CompanyID,
			CompanyName:  view.Company.Name,
			UserID:       userID,
			Name:         user.Name,
			Email:        user.Email,
		},
	})

	return &RedeemResult{User: user, Membership: provision.Membership}, nil
}

// ListCompanyInvitations lists a company's invitations with derived status.
func (s *InvitationService) ListCompanyInvitations(ctx context.Context, companyID string, limit, offset int) ([]InvitationSummary, error) {
	companyID = strings.TrimSpace(companyID)
	if _, err := s.companies.GetByID(ctx, companyID); err != nil {
		return nil, apperrors.MapStoreError(err, "company", map[string]any{"company_id": companyID})
	}
	invitations, err := s.invitations.ListByCompany(ctx, companyID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	now := s.clock.Now()
	result := make([]InvitationSummary, 0, len(invitations))
	for _, inv := range invitations {
		result = append(result, InvitationSummary{Invitation: inv, EffectiveStatus: inv.EffectiveStatus(now)})
	}
	return result, nil
}

func (s *InvitationService) authorizeInviter(ctx context.Context, actor domain.Principal, companyID, roleID string) error {
	if actor.IsAdmin() {
		return nil
	}
	if !actor.IsUser() || s.memberships == nil {
		return apperrors.NewForbidden("not allowed to invite into this company")
	}
	membership, err := s.memberships.GetByUserAndCompany(ctx, actor.ID, companyID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return apperrors.NewForbidden("not a member of this company")
		}
		return apperrors.MapError(err)
	}
	if !membership.CanInvite(roleID) {
		return apperrors.NewForbidden("cannot grant a role above your own")
	}
	return nil
}

func (s *InvitationService) fetch(ctx context.Context, ref domain.InvitationRef) (*domain.Invitation, error) {
	token := strings.TrimSpace(ref.Token)
	id := strings.TrimSpace(ref.ID)
	var (
		inv *domain.Invitation
		err error
	)
	switch {
	case token != "":
		inv, err = s.invitations.GetByToken(ctx, token)
	case id != "":
		inv, err = s.invitations.GetByID(ctx, id)
	default:
		return nil, apperrors.NewValidationError("invitation token or id is required", map[string]any{"token": "required"})
	}
	if err != nil {
		return nil, apperrors.MapStoreError(err, "invitation", nil)
	}
	return inv, nil
}

func (s *InvitationService) checkRedeemable(inv *domain.Invitation, now time.Time) error {
	details := map[string]any{"invitation_id": inv.ID}
	if inv.IsExpired(now) {
		details["expires_at"] = inv.ExpiresAt
		return apperrors.NewExpired(details)
	}
	if inv.Status == domain.InvitationStatusAccepted {
		return apperrors.NewAlreadyAccepted(details)
	}
	return nil
}

// claimLost re-reads an invitation whose claim affected no row and reports why.
func (s *InvitationService) claimLost(ctx context.Context, id string, now time.Time) error {
	current, err := s.invitations.GetByID(ctx, id)
	if err != nil {
		return apperrors.MapStoreError(err, "invitation", nil)
	}
	if err := s.checkRedeemable(current, now); err != nil {
		return err
	}
	return apperrors.NewAlreadyAccepted(map[string]any{"invitation_id": id})
}

func (s *InvitationService) provisionFailed(ctx context.Context, invitationID, userID, step string, err error) {
	s.logger.Warn("invitation provisioning step failed",
		zap.String("invitation_id", invitationID),
		zap.String("user_id", userID),
		zap.String("step", step),
		zap.Error(err))
	s.record(ctx, domain.ActorTypeSystem, nil, domain.ActionInvitationProvision, invitationID, domain.AuditLevelWarn, map[string]any{
		"step":    step,
		"user_id": userID,
		"error":   err.Error(),
	})
}

func (s *InvitationService) record(ctx context.Context, actorType domain.ActorType, actorID *string, action, invitationID string, level domain.AuditLevel, detail map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, domain.AuditEntry{
		ActorType:   actorType,
		ActorID:     actorID,
		Action:      action,
		SubjectType: domain.SubjectInvitation,
		SubjectID:   invitationID,
		Detail:      detail,
		Level:       level,
		CreatedAt:   s.clock.Now(),
	})
}

func generateSecureToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
