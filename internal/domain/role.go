package domain

// Role is the local participant's side of a call. It is set once per session.
type Role int

const (
	RoleUnset Role = iota
	RoleCaller
	RoleAnswerer
)

func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleAnswerer:
		return "answerer"
	default:
		return "unset"
	}
}

// Peer returns the opposite role; Unset has no peer.
func (r Role) Peer() Role {
	switch r {
	case RoleCaller:
		return RoleAnswerer
	case RoleAnswerer:
		return RoleCaller
	default:
		return RoleUnset
	}
}

// ParseCandidateSide maps the wire names of the candidate lists to roles.
func ParseCandidateSide(s string) (Role, error) {
	switch s {
	case "offer", "caller":
		return RoleCaller, nil
	case "answer", "answerer":
		return RoleAnswerer, nil
	default:
		return RoleUnset, ErrInvalidRole
	}
}

// CandidateSide is the inverse of ParseCandidateSide.
func (r Role) CandidateSide() string {
	switch r {
	case RoleCaller:
		return "offer"
	case RoleAnswerer:
		return "answer"
	default:
		return ""
	}
}
