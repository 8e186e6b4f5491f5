package model

import (
	"fmt"
	"time"
)

// CredentialKind distinguishes the secret shape a credential carries.
type CredentialKind string

const (
	CredentialKindUsernamePassword CredentialKind = "username_password"
	CredentialKindSecretText       CredentialKind = "secret_text"
)

// CredentialScope controls where a credential may be used.
type CredentialScope string

const (
	CredentialScopeGlobal CredentialScope = "GLOBAL"
	CredentialScopeSystem CredentialScope = "SYSTEM"
	CredentialScopeUser   CredentialScope = "USER"
)

// Valid reports whether the scope is one of the known values.
func (s CredentialScope) Valid() bool {
	switch s {
	case CredentialScopeGlobal, CredentialScopeSystem, CredentialScopeUser:
		return true
	}
	return false
}

// SystemStore is the Owner value of credentials and domains held by the
// system store rather than a per-user store.
const SystemStore = ""

// Credential is a stored secret. Username is empty for secret text
// credentials. DomainID is zero for the global domain.
type Credential struct {
	ID          string
	Owner       string
	DomainID    int64
	Kind        CredentialKind
	Scope       CredentialScope
	Description string
	Username    string
	Secret      Secret
	CreatedAt   time.Time
}

// DisplayName renders the credential the way it appears in selection lists.
// The secret is always masked.
func (c Credential) DisplayName() string {
	var name string
	switch c.Kind {
	case CredentialKindUsernamePassword:
		name = c.Username + "/" + redacted
	default:
		name = c.ID
	}
	if c.Description != "" {
		name = fmt.Sprintf("%s (%s)", name, c.Description)
	}
	return name
}
