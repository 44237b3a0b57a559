package service

import (
	"context"
	"errors"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/support-workflow/internal/auth"
	"github.com/spec-kit/support-workflow/internal/clock"
	"github.com/spec-kit/support-workflow/internal/domain"
	"github.com/spec-kit/support-workflow/internal/events"
	"github.com/spec-kit/support-workflow/internal/notify"
	"github.com/spec-kit/support-workflow/internal/observability"
	"github.com/spec-kit/support-workflow/internal/repository"
)

var testEpoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func testCatalog() domain.Catalog {
	return domain.Catalog{
		Statuses: []domain.TicketStatus{
			{ID: "open", Name: "Open", IsDefault: true, SortOrder: 10},
			{ID: "in_progress", Name: "In progress", SortOrder: 20},
			{ID: "resolved", Name: "Resolved", IsClosed: true, SortOrder: 40},
			{ID: "closed", Name: "Closed", IsClosed: true, SortOrder: 50},
		},
		Categories: []domain.TicketCategory{
			{ID: "general", Name: "General", Active: true},
			{ID: "billing", Name: "Billing", Active: true},
			{ID: "legacy", Name: "Legacy", Active: false},
		},
		Priorities: []domain.TicketPriority{
			{ID: "high", Name: "High", Rank: 1},
			{ID: "medium", Name: "Medium", Rank: 2},
		},
	}
}

type fakeTicketRepo struct {
	mu      sync.Mutex
	seq     int64
	tickets map[string]domain.Ticket
	updates int
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: map[string]domain.Ticket{}}
}

func (r *fakeTicketRepo) Create(_ context.Context, t *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	t.ID = uuid.NewString()
	t.Number = domain.FormatTicketNumber(r.seq)
	r.tickets[t.ID] = *t
	return nil
}

func (r *fakeTicketRepo) Update(_ context.Context, t *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[t.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	next := *t
	next.Number = stored.Number
	next.CreatedAt = stored.CreatedAt
	r.tickets[t.ID] = next
	r.updates++
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (r *fakeTicketRepo) GetByNumber(_ context.Context, number string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tickets {
		if t.Number == number {
			found := t
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) List(_ context.Context, filter domain.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.tickets {
		if filter.StatusID != nil && t.StatusID != *filter.StatusID {
			continue
		}
		if filter.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *filter.AssigneeID) {
			continue
		}
		if filter.RequesterEmail != nil && !strings.EqualFold(t.RequesterEmail, *filter.RequesterEmail) {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(t.Title+" "+t.Description+" "+t.Number), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *fakeTicketRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tickets)
}

type fakeResponseRepo struct {
	mu        sync.Mutex
	responses []domain.TicketResponse
}

func (r *fakeResponseRepo) Create(_ context.Context, resp *domain.TicketResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp.ID = uuid.NewString()
	r.responses = append(r.responses, *resp)
	return nil
}

func (r *fakeResponseRepo) ListByTicket(_ context.Context, ticketID string, includeInternal bool) ([]domain.TicketResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TicketResponse
	for _, resp := range r.responses {
		if resp.TicketID != ticketID || (resp.IsInternalNote && !includeInternal) {
			continue
		}
		out = append(out, resp)
	}
	return out, nil
}

type fakeAttachmentRepo struct {
	mu          sync.Mutex
	attachments []domain.Attachment
	err         error
}

func (r *fakeAttachmentRepo) Create(_ context.Context, a *domain.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	a.ID = uuid.NewString()
	r.attachments = append(r.attachments, *a)
	return nil
}

func (r *fakeAttachmentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Attachment
	for _, a := range r.attachments {
		if a.TicketID == ticketID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeCatalogRepo struct {
	catalog domain.Catalog
}

func (r *fakeCatalogRepo) ListStatuses(context.Context) ([]domain.TicketStatus, error) {
	return r.catalog.Statuses, nil
}

func (r *fakeCatalogRepo) ListCategories(context.Context) ([]domain.TicketCategory, error) {
	return r.catalog.Categories, nil
}

func (r *fakeCatalogRepo) ListPriorities(context.Context) ([]domain.TicketPriority, error) {
	return r.catalog.Priorities, nil
}

func (r *fakeCatalogRepo) GetStatus(_ context.Context, id string) (*domain.TicketStatus, error) {
	for _, s := range r.catalog.Statuses {
		if s.ID == id {
			found := s
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeCatalogRepo) GetCategory(_ context.Context, id string) (*domain.TicketCategory, error) {
	for _, c := range r.catalog.Categories {
		if c.ID == id {
			found := c
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeCatalogRepo) GetPriority(_ context.Context, id string) (*domain.TicketPriority, error) {
	for _, p := range r.catalog.Priorities {
		if p.ID == id {
			found := p
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeCatalogRepo) DefaultStatus(context.Context) (*domain.TicketStatus, error) {
	s, ok := r.catalog.DefaultStatus()
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &s, nil
}

func (r *fakeCatalogRepo) Upsert(_ context.Context, catalog domain.Catalog) error {
	r.catalog = catalog
	return nil
}

type fakeAgentRepo struct {
	agents map[string]domain.Agent
}

func (r *fakeAgentRepo) GetByID(_ context.Context, id string) (*domain.Agent, error) {
	a, ok := r.agents[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &a, nil
}

func (r *fakeAgentRepo) GetByEmail(_ context.Context, email string) (*domain.Agent, error) {
	for _, a := range r.agents {
		if strings.EqualFold(a.Email, email) {
			found := a
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeAgentRepo) List(_ context.Context, filter repository.AgentFilter) ([]domain.Agent, error) {
	var out []domain.Agent
	for _, a := range r.agents {
		if filter.Role != nil && a.Role != *filter.Role {
			continue
		}
		if filter.Active != nil && a.Active != *filter.Active {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	err     error
}

func (r *fakeAuditRepo) Create(ctx context.Context, e *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	e.ID = uuid.NewString()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *fakeAuditRepo) ListBySubject(_ context.Context, subjectType, subjectID string, _, _ int) ([]domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range r.entries {
		if e.SubjectType == subjectType && e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) actions(subjectID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		if subjectID == "" || e.SubjectID == subjectID {
			out = append(out, e.Action)
		}
	}
	return out
}

func (r *fakeAuditRepo) byAction(action string) []domain.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range r.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type fakeInvitationRepo struct {
	mu          sync.Mutex
	invitations map[string]domain.Invitation
	claims      int
}

func newFakeInvitationRepo() *fakeInvitationRepo {
	return &fakeInvitationRepo{invitations: map[string]domain.Invitation{}}
}

func (r *fakeInvitationRepo) Create(_ context.Context, inv *domain.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.invitations {
		if existing.Token == inv.Token {
			return repository.ErrDuplicate
		}
	}
	inv.ID = uuid.NewString()
	r.invitations[inv.ID] = *inv
	return nil
}

func (r *fakeInvitationRepo) GetByToken(_ context.Context, token string) (*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invitations {
		if inv.Token == token {
			found := inv
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeInvitationRepo) GetByID(_ context.Context, id string) (*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invitations[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &inv, nil
}

func (r *fakeInvitationRepo) ClaimPending(_ context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invitations[id]
	if !ok || inv.Status != domain.InvitationStatusPending || inv.ExpiresAt.Before(now) {
		return false, nil
	}
	inv.Status = domain.InvitationStatusAccepted
	inv.AcceptedAt = &now
	r.invitations[id] = inv
	r.claims++
	return true, nil
}

func (r *fakeInvitationRepo) ReleaseClaim(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invitations[id]
	if ok && inv.Status == domain.InvitationStatusAccepted && inv.AcceptedUserID == nil {
		inv.Status = domain.InvitationStatusPending
		inv.AcceptedAt = nil
		r.invitations[id] = inv
	}
	return nil
}

func (r *fakeInvitationRepo) SetAcceptedUser(_ context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invitations[id]
	if !ok || inv.Status != domain.InvitationStatusAccepted {
		return pgx.ErrNoRows
	}
	inv.AcceptedUserID = &userID
	r.invitations[id] = inv
	return nil
}

func (r *fakeInvitationRepo) ListByCompany(_ context.Context, companyID string, _, _ int) ([]domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Invitation
	for _, inv := range r.invitations {
		if inv.CompanyID == companyID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeInvitationRepo) get(id string) domain.Invitation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invitations[id]
}

type fakeCompanyRepo struct {
	companies map[string]domain.Company
}

func (r *fakeCompanyRepo) GetByID(_ context.Context, id string) (*domain.Company, error) {
	c, ok := r.companies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &c, nil
}

// fakeProvisioningRepo mirrors the savepoint semantics: each step either
// succeeds or is recorded as a failure without affecting the others.
type fakeProvisioningRepo struct {
	mu          sync.Mutex
	invitations *fakeInvitationRepo
	failSteps   map[repository.ProvisionStep]error
	txErr       error
	profiles    []domain.Profile
	memberships []domain.TeamMembership
}

func (r *fakeProvisioningRepo) Provision(ctx context.Context, req repository.ProvisionRequest) (repository.ProvisionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := repository.ProvisionResult{Failures: map[repository.ProvisionStep]error{}}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if r.txErr != nil {
		return result, r.txErr
	}
	for _, step := range repository.ProvisionSteps {
		if err, ok := r.failSteps[step]; ok {
			result.Failures[step] = err
			continue
		}
		switch step {
		case repository.StepAcceptedUser:
			if err := r.invitations.SetAcceptedUser(ctx, req.InvitationID, req.UserID); err != nil {
				result.Failures[step] = err
			}
		case repository.StepProfile:
			r.profiles = append(r.profiles, req.Profile)
		case repository.StepMembership:
			for _, m := range r.memberships {
				if m.UserID == req.Membership.UserID && m.CompanyID == req.Membership.CompanyID {
					result.Failures[step] = repository.ErrDuplicate
				}
			}
			if _, failed := result.Failures[step]; failed {
				continue
			}
			m := req.Membership
			m.ID = uuid.NewString()
			r.memberships = append(r.memberships, m)
			result.Membership = &m
		}
	}
	return result, nil
}

func (r *fakeProvisioningRepo) GetByUserAndCompany(_ context.Context, userID, companyID string) (*domain.TeamMembership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.memberships {
		if m.UserID == userID && m.CompanyID == companyID {
			found := m
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeProvisioningRepo) join(userID, companyID, role, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memberships = append(r.memberships, domain.TeamMembership{
		ID:        uuid.NewString(),
		UserID:    userID,
		CompanyID: companyID,
		RoleID:    role,
		Status:    status,
	})
}

func (r *fakeProvisioningRepo) membershipCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.memberships)
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]domain.User{}}
}

func (r *fakeUserRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrDuplicate
		}
	}
	u.ID = uuid.NewString()
	u.Email = strings.ToLower(u.Email)
	r.users[u.ID] = *u
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			found := u
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

type recordingSender struct {
	mu       sync.Mutex
	messages []notify.Message
	err      error
	calls    int
}

func (s *recordingSender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordingSender) sent() []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Message{}, s.messages...)
}

func (s *recordingSender) byTemplate(template string) []notify.Message {
	var out []notify.Message
	for _, m := range s.sent() {
		if m.Template == template {
			out = append(out, m)
		}
	}
	return out
}

func (s *recordingSender) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.calls = 0
}

var errStoreDown = errors.New("store down")

// harness wires the real services over in-memory stores.
type harness struct {
	clock        *clock.FakeClock
	tickets      *fakeTicketRepo
	responses    *fakeResponseRepo
	attachments  *fakeAttachmentRepo
	catalog      *fakeCatalogRepo
	agents       *fakeAgentRepo
	auditRepo    *fakeAuditRepo
	invitations  *fakeInvitationRepo
	companies    *fakeCompanyRepo
	provisioning *fakeProvisioningRepo
	users        *fakeUserRepo
	sender       *recordingSender
	metrics      *observability.Metrics

	audit    *AuditService
	ticket   *TicketService
	invite   *InvitationService
	auth     *AuthService
	workflow *Workflow

	agent    domain.Principal
	admin    domain.Principal
	customer domain.Principal
	company  domain.Company
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:       clock.Fake(testEpoch),
		tickets:     newFakeTicketRepo(),
		responses:   &fakeResponseRepo{},
		attachments: &fakeAttachmentRepo{},
		catalog:     &fakeCatalogRepo{catalog: testCatalog()},
		auditRepo:   &fakeAuditRepo{},
		invitations: newFakeInvitationRepo(),
		users:       newFakeUserRepo(),
		sender:      &recordingSender{},
		metrics:     observability.NewMetrics("test"),
	}
	h.provisioning = &fakeProvisioningRepo{invitations: h.invitations, failSteps: map[repository.ProvisionStep]error{}}

	agentRole := domain.AgentRoleAgent
	adminRole := domain.AgentRoleAdmin
	agentID := uuid.NewString()
	adminID := uuid.NewString()
	h.agents = &fakeAgentRepo{agents: map[string]domain.Agent{
		agentID: {ID: agentID, Name: "Ava Agent", Email: "ava@support.test", Role: agentRole, Active: true},
		adminID: {ID: adminID, Name: "Max Admin", Email: "max@support.test", Role: adminRole, Active: true},
	}}
	h.agent = domain.Principal{Subject: domain.SubjectTypeAgent, ID: agentID, Name: "Ava Agent", Email: "ava@support.test", Role: &agentRole}
	h.admin = domain.Principal{Subject: domain.SubjectTypeAgent, ID: adminID, Name: "Max Admin", Email: "max@support.test", Role: &adminRole}
	h.customer = domain.Principal{Subject: domain.SubjectTypeUser, ID: uuid.NewString(), Name: "Cora Customer", Email: "cora@example.com"}
	h.company = domain.Company{ID: uuid.NewString(), Name: "Acme", Active: true}
	h.companies = &fakeCompanyRepo{companies: map[string]domain.Company{h.company.ID: h.company}}

	logger := zap.NewNop()
	dispatcher := events.NewInMemoryDispatcher(logger)
	NewNotificationService(NotificationDependencies{
		Dispatcher:  dispatcher,
		Sender:      h.sender,
		Logger:      logger,
		Metrics:     h.metrics,
		Clock:       h.clock,
		MaxAttempts: 2,
	}).RegisterHandlers()

	h.audit = NewAuditService(AuditDependencies{
		AuditRepo:    h.auditRepo,
		Logger:       logger,
		Metrics:      h.metrics,
		Clock:        h.clock,
		WriteTimeout: time.Second,
	})
	h.ticket = NewTicketService(TicketDependencies{
		TicketRepo:     h.tickets,
		ResponseRepo:   h.responses,
		AttachmentRepo: h.attachments,
		CatalogRepo:    h.catalog,
		AgentRepo:      h.agents,
		Audit:          h.audit,
		Dispatcher:     dispatcher,
		Clock:          h.clock,
		Logger:         logger,
	})
	h.auth = NewAuthService(AuthDependencies{
		UserRepo:   h.users,
		AgentRepo:  h.agents,
		Tokens:     auth.NewTokenManager("test-secret", time.Hour, h.clock),
		BcryptCost: 4,
	})
	h.invite = NewInvitationService(InvitationDependencies{
		InvitationRepo:   h.invitations,
		CompanyRepo:      h.companies,
		MembershipRepo:   h.provisioning,
		ProvisioningRepo: h.provisioning,
		Identity:         h.auth,
		Audit:            h.audit,
		Dispatcher:       dispatcher,
		Clock:            h.clock,
		Logger:           logger,
		Metrics:          h.metrics,
		DefaultTTL:       168 * time.Hour,
	})
	h.workflow = NewWorkflow(WorkflowDependencies{
		Tickets:     h.ticket,
		Invitations: h.invite,
		Audit:       h.audit,
		AgentRepo:   h.agents,
		Dispatcher:  dispatcher,
		Clock:       h.clock,
	})
	return h
}

func scrapeMetrics(t *testing.T, m *observability.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func validTicketInput() TicketCreateInput {
	return TicketCreateInput{
		Title:          "Printer on fire",
		Description:    "The office printer is emitting smoke.",
		RequesterName:  "Cora Customer",
		RequesterEmail: "cora@example.com",
		CategoryID:     "general",
		PriorityID:     "high",
	}
}
