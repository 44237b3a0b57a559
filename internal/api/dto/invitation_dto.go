package dto

import (
	"time"

	"github.com/spec-kit/support-workflow/internal/domain"
)

// IssueInvitationRequest payload. TTLSeconds wins over TTLHours; a zero
// lifetime selects the default and either magnitude is capped at one year.
type IssueInvitationRequest struct {
	CompanyID  string  `json:"company_id"`
	Email      string  `json:"email"`
	Message    *string `json:"message"`
	RoleID     *string `json:"role_id"`
	TTLHours   int     `json:"ttl_hours"`
	TTLSeconds *int64  `json:"ttl_seconds"`
}

// RedeemInvitationRequest payload.
type RedeemInvitationRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// InvitationResponse describes an invitation together with its company.
type InvitationResponse struct {
	ID          string     `json:"id"`
	Token       string     `json:"token,omitempty"`
	Email       string     `json:"email"`
	CompanyID   string     `json:"company_id"`
	CompanyName string     `json:"company_name,omitempty"`
	RoleID      string     `json:"role_id"`
	Message     *string    `json:"message"`
	Status      string     `json:"status"`
	ExpiresAt   time.Time  `json:"expires_at"`
	AcceptedAt  *time.Time `json:"accepted_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// RedeemResponse reports the identity and membership created by a redemption.
type RedeemResponse struct {
	User       UserResponse        `json:"user"`
	Membership *MembershipResponse `json:"membership"`
}

// UserResponse is the public view of an identity.
type UserResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// MembershipResponse is the public view of a team membership.
type MembershipResponse struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	RoleID    string    `json:"role_id"`
	Status    string    `json:"status"`
	JoinedAt  time.Time `json:"joined_at"`
}

// NewInvitationResponse maps an invitation view. The token is only exposed when includeToken is set.
func NewInvitationResponse(view *domain.InvitationView, includeToken bool) InvitationResponse {
	resp := newInvitation(view.Invitation, string(view.Invitation.Status), includeToken)
	if view.Company != nil {
		resp.CompanyName = view.Company.Name
	}
	return resp
}

// NewInvitationListItem maps an invitation with its read-time status.
func NewInvitationListItem(inv *domain.Invitation, status domain.InvitationStatus) InvitationResponse {
	return newInvitation(inv, string(status), false)
}

func newInvitation(inv *domain.Invitation, status string, includeToken bool) InvitationResponse {
	resp := InvitationResponse{
		ID:         inv.ID,
		Email:      inv.Email,
		CompanyID:  inv.CompanyID,
		RoleID:     inv.RoleID,
		Message:    inv.Message.Ptr(),
		Status:     status,
		ExpiresAt:  inv.ExpiresAt,
		AcceptedAt: inv.AcceptedAt,
		CreatedAt:  inv.CreatedAt,
	}
	if includeToken {
		resp.Token = inv.Token
	}
	return resp
}

// NewRedeemResponse maps a redemption outcome.
func NewRedeemResponse(user *domain.User, membership *domain.TeamMembership) RedeemResponse {
	resp := RedeemResponse{User: UserResponse{ID: user.ID, Name: user.Name, Email: user.Email}}
	if membership != nil {
		resp.Membership = &MembershipResponse{
			ID:        membership.ID,
			CompanyID: membership.CompanyID,
			RoleID:    membership.RoleID,
			Status:    membership.Status,
			JoinedAt:  membership.JoinedAt,
		}
	}
	return resp
}
