package service

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-workflow/internal/domain"
	"github.com/spec-kit/support-workflow/internal/notify"
	"github.com/spec-kit/support-workflow/internal/repository"
	apperrors "github.com/spec-kit/support-workflow/pkg/util/errorutil"
)

func issue(t *testing.T, h *harness, email string, ttl time.Duration) *domain.Invitation {
	t.Helper()
	view, err := h.invite.IssueInvitation(context.Background(), h.admin, IssueInput{
		CompanyID: h.company.ID,
		Email:     email,
		TTL:       ttl,
	})
	require.NoError(t, err)
	return view.Invitation
}

func signup(email string) SignupInput {
	return SignupInput{Name: "Nina New", Email: email, Password: "correct-horse"}
}

func TestIssueInvitation(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending invitation with default ttl and role", func(t *testing.T) {
		h := newHarness(t)
		message := "  welcome aboard "
		view, err := h.invite.IssueInvitation(ctx, h.admin, IssueInput{
			CompanyID: h.company.ID,
			Email:     " Nina@Example.COM ",
			Message:   &message,
		})
		require.NoError(t, err)

		inv := view.Invitation
		assert.Equal(t, "nina@example.com", inv.Email)
		assert.Equal(t, domain.InvitationStatusPending, inv.Status)
		assert.Equal(t, domain.DefaultMembershipRole, inv.RoleID)
		assert.Equal(t, h.admin.ID, inv.InviterID)
		assert.Equal(t, "welcome aboard", inv.Message.ValueOrZero())
		assert.Equal(t, testEpoch.Add(168*time.Hour), inv.ExpiresAt)
		assert.Equal(t, "Acme", view.Company.Name)

		raw, err := base64.RawURLEncoding.DecodeString(inv.Token)
		require.NoError(t, err)
		assert.Len(t, raw, 32)

		issued := h.auditRepo.byAction(domain.ActionInvitationIssued)
		require.Len(t, issued, 1)
		assert.NotContains(t, issued[0].Detail, "token")
	})

	t.Run("tokens are unique", func(t *testing.T) {
		h := newHarness(t)
		a := issue(t, h, "a@example.com", 0)
		b := issue(t, h, "b@example.com", 0)
		assert.NotEqual(t, a.Token, b.Token)
	})

	tests := []struct {
		name  string
		input func(h *harness) IssueInput
		field string
	}{
		{"missing email", func(h *harness) IssueInput { return IssueInput{CompanyID: h.company.ID} }, "email"},
		{"malformed email", func(h *harness) IssueInput { return IssueInput{CompanyID: h.company.ID, Email: "nope"} }, "email"},
		{"unknown company", func(h *harness) IssueInput { return IssueInput{CompanyID: "ghost", Email: "a@b.co"} }, "company_id"},
		{"missing company", func(h *harness) IssueInput { return IssueInput{Email: "a@b.co"} }, "company_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.invite.IssueInvitation(ctx, h.admin, tt.input(h))
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
			assert.Contains(t, apperrors.ToDomainError(err).Details, tt.field)
		})
	}

	t.Run("anonymous caller is rejected", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.invite.IssueInvitation(ctx, domain.Anonymous(), IssueInput{CompanyID: h.company.ID, Email: "a@b.co"})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeUnauthorized))
	})

	t.Run("unknown role is rejected", func(t *testing.T) {
		h := newHarness(t)
		role := "superuser"
		_, err := h.invite.IssueInvitation(ctx, h.admin, IssueInput{CompanyID: h.company.ID, Email: "a@b.co", RoleID: &role})
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
		assert.Contains(t, apperrors.ToDomainError(err).Details, "role_id")
	})

	t.Run("lifetime is bounded", func(t *testing.T) {
		h := newHarness(t)
		for _, ttl := range []time.Duration{MaxInvitationTTL + time.Hour, -MaxInvitationTTL - time.Hour} {
			_, err := h.invite.IssueInvitation(ctx, h.admin, IssueInput{CompanyID: h.company.ID, Email: "a@b.co", TTL: ttl})
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
			assert.Contains(t, apperrors.ToDomainError(err).Details, "ttl")
		}
		_, err := h.invite.IssueInvitation(ctx, h.admin, IssueInput{CompanyID: h.company.ID, Email: "a@b.co", TTL: MaxInvitationTTL})
		require.NoError(t, err)
	})
}

func TestIssueInvitationAuthorization(t *testing.T) {
	ctx := context.Background()
	otherCompany := domain.Company{ID: uuid.NewString(), Name: "Globex", Active: true}

	tests := []struct {
		name  string
		setup func(h *harness) domain.Principal
		role  string
		code  string
	}{
		{
			name:  "admin agent grants owner",
			setup: func(h *harness) domain.Principal { return h.admin },
			role:  domain.MembershipRoleOwner,
		},
		{
			name:  "plain agent is forbidden",
			setup: func(h *harness) domain.Principal { return h.agent },
			role:  domain.MembershipRoleMember,
			code:  apperrors.CodeForbidden,
		},
		{
			name:  "user outside the company is forbidden",
			setup: func(h *harness) domain.Principal { return h.customer },
			role:  domain.MembershipRoleMember,
			code:  apperrors.CodeForbidden,
		},
		{
			name: "member of another company is forbidden",
			setup: func(h *harness) domain.Principal {
				h.provisioning.join(h.customer.ID, otherCompany.ID, domain.MembershipRoleOwner, domain.MembershipStatusActive)
				return h.customer
			},
			role: domain.MembershipRoleMember,
			code: apperrors.CodeForbidden,
		},
		{
			name: "member grants member",
			setup: func(h *harness) domain.Principal {
				h.provisioning.join(h.customer.ID, h.company.ID, domain.MembershipRoleMember, domain.MembershipStatusActive)
				return h.customer
			},
			role: domain.MembershipRoleMember,
		},
		{
			name: "member cannot grant owner",
			setup: func(h *harness) domain.Principal {
				h.provisioning.join(h.customer.ID, h.company.ID, domain.MembershipRoleMember, domain.MembershipStatusActive)
				return h.customer
			},
			role: domain.MembershipRoleOwner,
			code: apperrors.CodeForbidden,
		},
		{
			name: "member cannot grant admin",
			setup: func(h *harness) domain.Principal {
				h.provisioning.join(h.customer.ID, h.company.ID, domain.MembershipRoleMember, domain.MembershipStatusActive)
				return h.customer
			},
			role: domain.MembershipRoleAdmin,
			code: apperrors.CodeForbidden,
		},
		{
			name: "company admin grants admin",
			setup: func(h *harness) domain.Principal {
				h.provisioning.join(h.customer.ID, h.company.ID, domain.MembershipRoleAdmin, domain.MembershipStatusActive)
				return h.customer
			},
			role: domain.MembershipRoleAdmin,
		},
		{
			name: "suspended membership is forbidden",
			setup: func(h *harness) domain.Principal {
				h.provisioning.join(h.customer.ID, h.company.ID, domain.MembershipRoleOwner, "suspended")
				return h.customer
			},
			role: domain.MembershipRoleGuest,
			code: apperrors.CodeForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.companies.companies[otherCompany.ID] = otherCompany
			actor := tt.setup(h)
			role := tt.role

			view, err := h.workflow.IssueInvitation(ctx, actor, IssueInput{CompanyID: h.company.ID, Email: "new@example.com", RoleID: &role})
			if tt.code != "" {
				require.Error(t, err)
				assert.True(t, apperrors.IsCode(err, tt.code), "got %v", err)
				assert.Empty(t, h.invitations.invitations)
				assert.Empty(t, h.sender.byTemplate(notify.TemplateInvitationIssued))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.role, view.Invitation.RoleID)
			assert.Equal(t, actor.ID, view.Invitation.InviterID)
		})
	}

	t.Run("redeemed member can invite teammates", func(t *testing.T) {
		h := newHarness(t)
		inv := issue(t, h, "nina@example.com", 24*time.Hour)
		result, err := h.invite.RedeemInvitation(ctx, domain.InvitationRef{Token: inv.Token}, signup(""))
		require.NoError(t, err)

		nina := result.User.Principal()
		_, err = h.workflow.IssueInvitation(ctx, nina, IssueInput{CompanyID: h.company.ID, Email: "omar@example.com"})
		require.NoError(t, err)

		owner := domain.MembershipRoleOwner
		_, err = h.workflow.IssueInvitation(ctx, nina, IssueInput{CompanyID: h.company.ID, Email: "pat@example.com", RoleID: &owner})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
	})
}

func TestLoadInvitation(t *testing.T) {
	ctx := context.Background()

	t.Run("by token and by id", func(t *testing.T) {
		h := newHarness(t)
		inv := issue(t, h, "nina@example.com", 24*time.Hour)

		byToken, err := h.invite.LoadInvitation(ctx, domain.InvitationRef{Token: inv.Token})
		require.NoError(t, err)
		assert.Equal(t, inv.ID, byToken.Invitation.ID)

		byID, err := h.invite.LoadInvitation(ctx, domain.InvitationRef{ID: inv.ID})
		require.NoError(t, err)
		assert.Equal(t, inv.Token, byID.Invitation.Token)
	})

	t.Run("missing invitation is not found", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.invite.LoadInvitation(ctx, domain.InvitationRef{Token: "nope"})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

		_, err = h.invite.LoadInvitation(ctx, domain.InvitationRef{})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	})

	t.Run("expiry is derived lazily at read time", func(t *testing.T) {
		h := newHarness(t)
		inv := issue(t, h, "nina@example.com", time.Hour)

		h.clock.Advance(time.Hour)
		_, err := h.invite.LoadInvitation(ctx, domain.InvitationRef{Token: inv.Token})
		require.NoError(t, err, "still valid at the exact expiry instant")

		h.clock.Advance(time.Second)
		_, err = h.invite.LoadInvitation(ctx, domain.InvitationRef{Token: inv.Token})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeExpired))
		assert.Equal(t, domain.InvitationStatusPending, h.invitations.get(inv.ID).Status, "expiry is never written")
	})

	t.Run("expiry wins over accepted status", func(t *testing.T) {
		h := newHarness(t)
		inv := issue(t, h, "nina@example.com", time.Hour)
		_, err := h.invite.RedeemInvitation(ctx, domain.InvitationRef{Token: inv.Token}, signup(""))
		require.NoError(t, err)

		_, err = h.invite.LoadInvitation(ctx, domain.InvitationRef{Token: inv.Token})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeAlreadyAccepted))

		h.clock.Advance(2 * time.Hour)
		_, err = h.invite.LoadInvitation(ctx, domain.InvitationRef{Token: inv.Token})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeExpired))
	})
}

func TestRedeemInvitation(t *testing.T) {
	ctx := context.Background()

	t.Run("provisions identity profile and membership", func(t *testing.T) {
		h := newHarness(t)
		inv := issue(t, h, "nina@example.com", 24*time.Hour)

		result, err := h.invite.RedeemInvitation(ctx, domain.InvitationRef{Token: inv.Token}, signup("NINA@example.com"))
		require.NoError(t, err)
		require.NotNil(t, result.User)
		require.NotNil(t, result.Membership)
		assert.Equal(t, "nina@example.com", result.User.Email)
		assert.NotEqual(t, "correct-horse", result.User.PasswordHash)
		assert.Equal(t, h.company.ID, result.Membership.CompanyID)
		assert.Equal(t, domain.DefaultMembershipRole, result.Membership.RoleID)
		assert.Equal(t, domain.MembershipStatusActive, result.Membership.Status)
		require.NotNil(t, result.Membership.InvitedBy)
		assert.Equal(t, h.admin.ID, *result.Membership.InvitedBy)

		stored := h.invitations.get(inv.ID)
		assert.Equal(t, domain.InvitationStatusAccepted, stored.Status)
		require.NotNil(t, stored.AcceptedUserID)
		assert.Equal(t, result.User.ID, *stored.AcceptedUserID)
		assert.Len(t, h.provisioning.profiles, 1)
		assert.Len(t, h.auditRepo.byAction(domain.ActionInvitationRedeemed), 1)
	})

	t.Run("already expired at issuance creates no identity", func(t *testing.T) {
		h := newHarness(t)
		inv := issue(t, h, "nina@example.com", -time.Second)

		_, err := h.invite.RedeemInvitation(ctx, domain.InvitationRef{Token: inv.Token}, signup(""))
		assert.True(t, apperrors.IsCode(err, apperrors.CodeExpired))
		assert.Zero(t, h.users.count())
		assert.Zero(t, h.invitations.claims)
	})

	t.Run("second redemption is already accepted", func(t *testing.T) {
		h := newHarness(t)
		inv := issue(t, h, "nina@example.com", 24*time.Hour)

		_, err := h.invite.RedeemInvitation(ctx, domain.InvitationRef{Token: inv.Token}, signup(""))
		require.NoError(t, err)
		_, err = h.invite.RedeemInvitation(ctx, domain.InvitationRef{Token: inv.Token}, signup(""))
		assert.True(t, apperrors.IsCode(err, apperrors.CodeAlreadyAccepted))
		assert.Equal(t, 1, h.users.count())
		assert.Equal(t, 1, h.provisioning.membershipCount())
	})

	t.Run("identity conflict releases the claim", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.auth.CreateIdentity(ctx, "Existing", "nina@example.com", "password123")
		require.NoError(t, err)
		inv := issue(t, h, "nina@example.com", 24*time.Hour)

		_, err = h.invite.RedeemInvitation(ctx, domain.InvitationRef{Token: inv.Token}, signup(""))
		assert.True(t, apperrors.IsCode(err, apperrors.CodeIdentityConflict))

		stored := h.invitations.get(inv.ID)
		assert.Equal(t, domain.InvitationStatusPending, stored.Status)
		assert.Nil(t, stored.AcceptedAt)
		assert.Zero(t, h.provisioning.membershipCount())
		assert.Empty(t, h.auditRepo.byAction(domain.ActionInvitationRedeemed))
	})

	t.Run("signup validation", func(t *testing.T) {
		h := newHarness(t)
		inv := issue(t, h, "nina@example.com", 24*time.Hour)
		ref := domain.InvitationRef{Token: inv.Token}

		_, err := h.invite.RedeemInvitation(ctx, ref, SignupInput{Name: "N", Password: "short"})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
		assert.Contains(t, apperrors.ToDomainError(err).Details, "password")

		_, err = h.invite.RedeemInvitation(ctx, ref, signup("other@example.com"))
		assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
		assert.Equal(t, domain.InvitationStatusPending, h.invitations.get(inv.ID).Status)
	})

	t.Run("provisioning failures are best effort", func(t *testing.T) {
		h := newHarness(t)
		h.provisioning.failSteps[repository.StepMembership] = errStoreDown
		h.provisioning.failSteps[repository.StepProfile] = errStoreDown
		inv := issue(t, h, "nina@example.com", 24*time.Hour)

		result, err := h.invite.RedeemInvitation(ctx, domain.InvitationRef{Token: inv.Token}, signup(""))
		require.NoError(t, err)
		assert.NotNil(t, result.User)
		assert.Nil(t, result.Membership)

		stored := h.invitations.get(inv.ID)
		require.NotNil(t, stored.AcceptedUserID, "independent step still applied")

		warnings := h.auditRepo.byAction(domain.ActionInvitationProvision)
		require.Len(t, warnings, 2)
		for _, w := range warnings {
			assert.Equal(t, domain.AuditLevelWarn, w.Level)
		}
		scraped := scrapeMetrics(t, h.metrics)
		assert.Contains(t, scraped, `test_provisioning_steps_total{outcome="failed",step="membership"} 1`)
		assert.Contains(t, scraped, `test_provisioning_steps_total{outcome="ok",step="accepted_user"} 1`)
		assert.Len(t, h.auditRepo.byAction(domain.ActionInvitationRedeemed), 1)
	})

	t.Run("failed provisioning transaction still succeeds", func(t *testing.T) {
		h := newHarness(t)
		h.provisioning.txErr = errStoreDown
		inv := issue(t, h, "nina@example.com", 24*time.Hour)

		result, err := h.invite.RedeemInvitation(ctx, domain.InvitationRef{Token: inv.Token}, signup(""))
		require.NoError(t, err)
		assert.Nil(t, result.Membership)
		assert.Len(t, h.auditRepo.byAction(domain.ActionInvitationProvision), 1)
	})
}

// cancelAfterIdentity cancels the caller's context once the identity exists,
// as a client disconnecting mid-redemption would.
type cancelAfterIdentity struct {
	IdentityProvider
	cancel context.CancelFunc
}

func (c cancelAfterIdentity) CreateIdentity(ctx context.Context, name, email, password string) (*domain.User, error) {
	user, err := c.IdentityProvider.CreateIdentity(ctx, name, email, password)
	c.cancel()
	return user, err
}

func TestRedeemProvisionsAfterCallerCancels(t *testing.T) {
	h := newHarness(t)
	inv := issue(t, h, "nina@example.com", 24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewInvitationService(InvitationDependencies{
		InvitationRepo:   h.invitations,
		CompanyRepo:      h.companies,
		MembershipRepo:   h.provisioning,
		ProvisioningRepo: h.provisioning,
		Identity:         cancelAfterIdentity{IdentityProvider: h.auth, cancel: cancel},
		Audit:            h.audit,
		Clock:            h.clock,
		Metrics:          h.metrics,
	})

	result, err := svc.RedeemInvitation(ctx, domain.InvitationRef{Token: inv.Token}, signup(""))
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	require.NotNil(t, result.Membership)
	assert.Equal(t, 1, h.provisioning.membershipCount())
	stored := h.invitations.get(inv.ID)
	require.NotNil(t, stored.AcceptedUserID)
	assert.Equal(t, result.User.ID, *stored.AcceptedUserID)
	assert.Empty(t, h.auditRepo.byAction(domain.ActionInvitationProvision))
}

func TestConcurrentRedemptionHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	inv := issue(t, h, "nina@example.com", 24*time.Hour)

	const attempts = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		accepted  int
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.invite.RedeemInvitation(ctx, domain.InvitationRef{Token: inv.Token}, signup(""))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperrors.IsCode(err, apperrors.CodeAlreadyAccepted):
				accepted++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, accepted)
	assert.Equal(t, 1, h.users.count())
	assert.Equal(t, 1, h.provisioning.membershipCount())
	assert.Equal(t, 1, h.invitations.claims)
}

func TestListCompanyInvitations(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pending := issue(t, h, "a@example.com", 24*time.Hour)
	h.clock.Advance(time.Minute)
	expiring := issue(t, h, "b@example.com", time.Hour)
	h.clock.Advance(2 * time.Hour)

	items, err := h.invite.ListCompanyInvitations(ctx, h.company.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)

	statuses := map[string]domain.InvitationStatus{}
	for _, item := range items {
		statuses[item.Invitation.ID] = item.EffectiveStatus
	}
	assert.Equal(t, domain.InvitationStatusPending, statuses[pending.ID])
	assert.Equal(t, domain.InvitationStatusExpired, statuses[expiring.ID])

	_, err = h.invite.ListCompanyInvitations(ctx, "ghost", 0, 0)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}
