package domain

import "strings"

// SubjectType differentiates the kinds of callers.
type SubjectType string

const (
	SubjectTypeAgent     SubjectType = "agent"
	SubjectTypeUser      SubjectType = "user"
	SubjectTypeAnonymous SubjectType = "anonymous"
)

// Principal is the acting caller, passed explicitly into every workflow call.
type Principal struct {
	Subject SubjectType
	ID      string
	Name    string
	Email   string
	Role    *AgentRole
}

// Anonymous returns the principal for unauthenticated callers.
func Anonymous() Principal {
	return Principal{Subject: SubjectTypeAnonymous}
}

func (p Principal) IsAgent() bool { return p.Subject == SubjectTypeAgent }

func (p Principal) IsUser() bool { return p.Subject == SubjectTypeUser }

func (p Principal) IsAnonymous() bool {
	return p.Subject == "" || p.Subject == SubjectTypeAnonymous
}

// IsAdmin reports whether the principal is an agent with the admin role.
func (p Principal) IsAdmin() bool {
	return p.IsAgent() && p.Role != nil && *p.Role == AgentRoleAdmin
}

// MatchesEmail compares the principal's email case-insensitively.
func (p Principal) MatchesEmail(email string) bool {
	return p.Email != "" && strings.EqualFold(strings.TrimSpace(p.Email), strings.TrimSpace(email))
}

// ActorType maps the principal onto the audit actor vocabulary.
func (p Principal) ActorType() ActorType {
	switch p.Subject {
	case SubjectTypeAgent:
		return ActorTypeAgent
	case SubjectTypeUser:
		return ActorTypeUser
	default:
		return ActorTypeAnonymous
	}
}

// ActorID returns the principal id, or nil for anonymous callers.
func (p Principal) ActorID() *string {
	if p.ID == "" {
		return nil
	}
	id := p.ID
	return &id
}
