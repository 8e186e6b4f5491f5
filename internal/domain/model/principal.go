package model

import "time"

// Permission names a capability checked before privileged operations.
type Permission string

// Administer grants full control over the service, including the system
// credential store.
const Administer Permission = "administer"

// Principal is the identity an operation runs as.
type Principal struct {
	Name   string
	Admin  bool
	System bool
}

var (
	// SystemPrincipal is the elevated identity used for privileged store writes.
	SystemPrincipal = Principal{Name: "SYSTEM", Admin: true, System: true}
	// Anonymous is the identity of unauthenticated callers.
	Anonymous = Principal{Name: "anonymous"}
)

// IsAnonymous reports whether p carries no identity.
func (p Principal) IsAnonymous() bool {
	return p == Anonymous || p.Name == ""
}

// HasPermission reports whether p holds perm.
func (p Principal) HasPermission(perm Permission) bool {
	if p.System {
		return true
	}
	switch perm {
	case Administer:
		return p.Admin
	}
	return false
}

// User is an API caller registered with the service.
type User struct {
	ID        string
	Name      string
	Admin     bool
	CreatedAt time.Time
}

// Principal returns the identity requests authenticated as u run under.
func (u User) Principal() Principal {
	return Principal{Name: u.Name, Admin: u.Admin}
}
