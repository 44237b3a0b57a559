package domain

import "time"

// MembershipStatusActive marks a membership created by a redemption.
const MembershipStatusActive = "active"

// TeamMembership links a user to a company.
type TeamMembership struct {
	ID           string
	UserID       string
	CompanyID    string
	RoleID       string
	Status       string
	JoinedAt     time.Time
	InvitedBy    *string
	InvitedEmail string
	DisplayName  string
}

// Profile is the user-facing record created alongside an identity.
type Profile struct {
	UserID      string
	DisplayName string
	Email       string
	CompanyID   string
	CreatedAt   time.Time
}

// Membership roles, lowest to highest.
const (
	MembershipRoleGuest  = "guest"
	MembershipRoleMember = "member"
	MembershipRoleAdmin  = "admin"
	MembershipRoleOwner  = "owner"
)

var membershipRoleLevel = map[string]int{
	MembershipRoleGuest:  25,
	MembershipRoleMember: 50,
	MembershipRoleAdmin:  75,
	MembershipRoleOwner:  100,
}

// MembershipRoleLevel returns the rank of a role and whether it is known.
func MembershipRoleLevel(role string) (int, bool) {
	level, ok := membershipRoleLevel[role]
	return level, ok
}

// CanInvite reports whether the membership may invite someone into role.
// Only active members and above can invite, and never above their own rank.
func (m *TeamMembership) CanInvite(role string) bool {
	if m == nil || m.Status != MembershipStatusActive {
		return false
	}
	have, ok := MembershipRoleLevel(m.RoleID)
	if !ok || have < membershipRoleLevel[MembershipRoleMember] {
		return false
	}
	want, ok := MembershipRoleLevel(role)
	return ok && want <= have
}
