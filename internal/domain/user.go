package domain

import (
	"strings"
	"time"
)

// UserStatus represents lifecycle states for an end-user.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is the identity created when an invitation is redeemed.
// Email is stored lower-cased; it doubles as the login name.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsActive reports whether the user may sign in.
func (u *User) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}

// Principal returns the acting principal for this user.
func (u *User) Principal() Principal {
	return Principal{
		Subject: SubjectTypeUser,
		ID:      u.ID,
		Name:    u.Name,
		Email:   strings.ToLower(u.Email),
	}
}
