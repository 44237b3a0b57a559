package domain

import (
	"time"

	"github.com/guregu/null/v5"
)

// InvitationStatus represents the lifecycle of an invitation.
type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
	InvitationStatusExpired  InvitationStatus = "expired"
)

// DefaultMembershipRole is used when an invitation names no role.
const DefaultMembershipRole = "member"

// Invitation is a single-use, time-limited team invitation.
type Invitation struct {
	ID             string
	Token          string
	Email          string
	CompanyID      string
	InviterID      string
	RoleID         string
	Message        null.String
	ExpiresAt      time.Time
	Status         InvitationStatus
	AcceptedAt     *time.Time
	AcceptedUserID *string
	CreatedAt      time.Time
}

// IsExpired reports whether the invitation can no longer be redeemed at now.
func (i *Invitation) IsExpired(now time.Time) bool {
	return i.Status == InvitationStatusExpired || now.After(i.ExpiresAt)
}

// EffectiveStatus derives the status at now; expiry wins over the stored status.
func (i *Invitation) EffectiveStatus(now time.Time) InvitationStatus {
	if i.IsExpired(now) {
		return InvitationStatusExpired
	}
	return i.Status
}

// InvitationRef addresses an invitation by token or id.
type InvitationRef struct {
	Token string
	ID    string
}

// InvitationView is an invitation plus the company it grants access to.
type InvitationView struct {
	Invitation *Invitation
	Company    *Company
}
