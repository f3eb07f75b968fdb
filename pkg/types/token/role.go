package token

// Role is a grantable capability tag. The collection owner is not a Role:
// ownership is a distinguished singleton fixed at genesis, kept out of the
// mutable role set so it can never be revoked through the role path.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMinter Role = "minter"
)

func (r Role) String() string {
	return string(r)
}

// Grantable reports whether the role may be granted or revoked at runtime.
func (r Role) Grantable() bool {
	return r == RoleAdmin || r == RoleMinter
}

// RoleSet is the set of roles held by a single principal.
type RoleSet []Role

func (s RoleSet) Has(role Role) bool {
	for _, held := range s {
		if held == role {
			return true
		}
	}

	return false
}

// With returns the set including role. The receiver is unchanged.
func (s RoleSet) With(role Role) RoleSet {
	if s.Has(role) {
		return s
	}

	out := make(RoleSet, len(s), len(s)+1)
	copy(out, s)
	return append(out, role)
}

// Without returns the set excluding role. The receiver is unchanged.
func (s RoleSet) Without(role Role) RoleSet {
	out := make(RoleSet, 0, len(s))
	for _, held := range s {
		if held != role {
			out = append(out, held)
		}
	}

	return out
}
