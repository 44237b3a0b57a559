package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spec-kit/support-workflow/internal/auth"
	"github.com/spec-kit/support-workflow/internal/domain"
	"github.com/spec-kit/support-workflow/internal/repository"
	apperrors "github.com/spec-kit/support-workflow/pkg/util/errorutil"
)

// AuthService coordinates identity creation and login flows.
type AuthService struct {
	users      repository.UserRepository
	agents     repository.AgentRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// AuthDependencies encapsulates requirements for auth service.
type AuthDependencies struct {
	UserRepo   repository.UserRepository
	AgentRepo  repository.AgentRepository
	Tokens     *auth.TokenManager
	BcryptCost int
}

// LoginInput carries credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResult is an issued bearer token.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Principal domain.Principal
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	return &AuthService{
		users:      deps.UserRepo,
		agents:     deps.AgentRepo,
		tokenMgr:   deps.Tokens,
		bcryptCost: deps.BcryptCost,
	}
}

// CreateIdentity registers a user login. A taken email yields IDENTITY_CONFLICT.
func (s *AuthService) CreateIdentity(ctx context.Context, name, email, password string) (*domain.User, error) {
	email = normalizeEmail(email)
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewIdentityConflict("email already registered", map[string]any{"email": email})
	} else if !apperrors.IsNoRows(err) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Status:       domain.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewIdentityConflict("email already registered", map[string]any{"email": email})
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// LoginUser authenticates an end-user.
func (s *AuthService) LoginUser(ctx context.Context, input LoginInput) (*LoginResult, error) {
	input.Email = normalizeEmail(input.Email)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	user, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if !user.IsActive() {
		return nil, apperrors.NewUnauthorized("account is not active")
	}
	if err := auth.ComparePassword(user.PasswordHash, input.Password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(user.ID, domain.SubjectTypeUser, nil)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &LoginResult{
		Token:     token,
		ExpiresAt: exp,
		Principal: user.Principal(),
	}, nil
}

// LoginAgent authenticates an agent and returns a role-bearing token.
func (s *AuthService) LoginAgent(ctx context.Context, input LoginInput) (*LoginResult, error) {
	input.Email = normalizeEmail(input.Email)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	agent, err := s.agents.GetByEmail(ctx, input.Email)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if !agent.Active {
		return nil, apperrors.NewUnauthorized("agent is inactive")
	}
	if err := auth.ComparePassword(agent.PasswordHash, input.Password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	role := agent.Role
	token, exp, err := s.tokenMgr.GenerateToken(agent.ID, domain.SubjectTypeAgent, &role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &LoginResult{
		Token:     token,
		ExpiresAt: exp,
		Principal: domain.Principal{Subject: domain.SubjectTypeAgent, ID: agent.ID, Name: agent.Name, Email: agent.Email, Role: &role},
	}, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
