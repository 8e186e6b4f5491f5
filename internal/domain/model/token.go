package model

import (
	"fmt"
	"strings"
	"time"
)

// GitLab personal access token scopes.
const (
	ScopeAPI      = "api"
	ScopeReadUser = "read_user"
)

// RequiredScopes are requested for every minted token.
var RequiredScopes = []string{ScopeAPI, ScopeReadUser}

// TokenRequest carries everything needed to mint one personal access token.
// A zero ExpiresAt requests a token without an expiry date.
type TokenRequest struct {
	ServerURL string
	Username  string
	Password  Secret
	TokenName string
	Scopes    []string
	ExpiresAt time.Time
}

// TokenInfo describes a minted token as reported back by the server.
type TokenInfo struct {
	Username string
	Email    string
	Name     string
	Scopes   []string
	Active   bool
}

// OwnedBy reports whether the token belongs to the account login signs in
// as. GitLab accepts either a username or an email address as login.
func (t TokenInfo) OwnedBy(login string) bool {
	if strings.EqualFold(t.Username, login) {
		return true
	}
	return strings.Contains(login, "@") && t.Email != "" && strings.EqualFold(t.Email, login)
}

// IssuedCredentialDescription records which server and user a token came from.
func IssuedCredentialDescription(serverURL, username string) string {
	return fmt.Sprintf("Auto Generated by %s server for %s user", serverURL, username)
}
