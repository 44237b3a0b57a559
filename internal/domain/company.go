package domain

import "time"

// Company owns team memberships and invitations.
type Company struct {
	ID        string
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
