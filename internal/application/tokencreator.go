package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
	"github.com/ericfisherdev/gitlabpat/internal/domain/port/driven"
)

// DefaultTokenName labels tokens minted from a stored credential.
const DefaultTokenName = "mytoken"

const (
	emptyOptionName   = "- none -"
	currentOptionName = "- current -"
)

// TokenCreator exchanges GitLab username/password pairs for personal access
// tokens and stores each token as a new system credential, in a domain that
// matches the server it was minted for.
type TokenCreator struct {
	creds         driven.CredentialStore
	domains       driven.DomainStore
	issuer        driven.TokenIssuer
	verifier      driven.TokenVerifier
	defaultServer string
	tokenLifetime time.Duration
	logger        *slog.Logger

	newID func() string
	now   func() time.Time
}

// NewTokenCreator creates a TokenCreator. verifier may be nil to skip checking
// minted tokens. A zero tokenLifetime requests tokens without expiry.
func NewTokenCreator(
	creds driven.CredentialStore,
	domains driven.DomainStore,
	issuer driven.TokenIssuer,
	verifier driven.TokenVerifier,
	defaultServer string,
	tokenLifetime time.Duration,
	logger *slog.Logger,
) *TokenCreator {
	return &TokenCreator{
		creds:         guardedCredentialStore{creds},
		domains:       guardedDomainStore{domains},
		issuer:        issuer,
		verifier:      verifier,
		defaultServer: model.ResolveServerURL(defaultServer, model.DefaultServerURL),
		tokenLifetime: tokenLifetime,
		logger:        logger,
		newID:         uuid.NewString,
		now:           time.Now,
	}
}

// FillCredentialsItems lists the username/password credentials that may be
// exchanged for serverURL. Callers without Administer only get their current
// selection echoed back so no credential metadata leaks.
func (s *TokenCreator) FillCredentialsItems(ctx context.Context, serverURL, credentialsID string) ([]model.ListBoxOption, error) {
	p := PrincipalFrom(ctx)
	if !p.HasPermission(model.Administer) {
		return []model.ListBoxOption{{Name: currentOptionName, Value: credentialsID}}, nil
	}

	options := []model.ListBoxOption{{Name: emptyOptionName, Value: ""}}

	target, err := model.ParseServerURL(s.resolve(serverURL))
	if err != nil {
		s.logger.Warn("cannot list credentials for invalid server url", "server_url", serverURL, "error", err)
		return options, nil
	}

	seen := make(map[string]bool)
	for _, owner := range lookupOwners(p) {
		creds, err := s.creds.ListMatching(ctx, owner, model.CredentialKindUsernamePassword, target)
		if err != nil {
			return nil, fmt.Errorf("list credentials for %s: %w", storeName(owner), err)
		}
		for _, c := range creds {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			options = append(options, model.ListBoxOption{Name: c.DisplayName(), Value: c.ID})
		}
	}

	return options, nil
}

// CreateTokenByCredentials mints a token with the stored username/password
// credential credentialsID, looked up first in the system store and then in
// the caller's own store. The returned error is non-nil only for
// authorization failures; everything else is reported as a FormValidation.
func (s *TokenCreator) CreateTokenByCredentials(ctx context.Context, serverURL, credentialsID string) (model.FormValidation, error) {
	if err := CheckPermission(ctx, model.Administer); err != nil {
		return model.FormValidation{}, err
	}
	if strings.TrimSpace(credentialsID) == "" {
		return model.ValidationError("Please specify credentials to create token"), nil
	}

	server := s.resolve(serverURL)
	target, err := model.ParseServerURL(server)
	if err != nil {
		return model.ValidationError("Invalid GitLab server URL %s", server), nil
	}

	if v := s.checkStorage(ctx, server); v != nil {
		return *v, nil
	}

	cred, err := s.lookup(ctx, target, credentialsID)
	if err != nil {
		s.logger.Error("failed to look up credentials", "credentials_id", credentialsID, "error", err)
		return model.ValidationError("Can't create GitLab token, credentials lookup failed"), nil
	}
	if cred == nil {
		return model.ValidationError("Can't create GitLab token, credentials are null"), nil
	}

	token, owner, err := s.exchange(ctx, server, cred.Username, cred.Secret, DefaultTokenName)
	if err != nil {
		s.logger.Warn("token exchange failed", "server_url", server, "username", cred.Username, "error", err)
		return model.ValidationError("Can't create GL token - %s", err.Error()), nil
	}

	return s.persist(ctx, server, target, token, owner), nil
}

// CreateTokenByPassword mints a token with a username and password supplied
// directly. Each token gets a fresh random name.
func (s *TokenCreator) CreateTokenByPassword(ctx context.Context, serverURL, username string, password model.Secret) (model.FormValidation, error) {
	if err := CheckPermission(ctx, model.Administer); err != nil {
		return model.FormValidation{}, err
	}
	if strings.TrimSpace(username) == "" {
		return model.ValidationError("Please specify a username to create token"), nil
	}
	if password.IsEmpty() {
		return model.ValidationError("Please specify a password to create token"), nil
	}

	server := s.resolve(serverURL)
	target, err := model.ParseServerURL(server)
	if err != nil {
		return model.ValidationError("Invalid GitLab server URL %s", server), nil
	}

	if v := s.checkStorage(ctx, server); v != nil {
		return *v, nil
	}

	token, owner, err := s.exchange(ctx, server, username, password, s.newID())
	if err != nil {
		s.logger.Warn("token exchange failed", "server_url", server, "username", username, "error", err)
		return model.ValidationError("Can't create GL token for %s - %s", username, err.Error()), nil
	}

	return s.persist(ctx, server, target, token, owner), nil
}

// checkStorage fails early when minted tokens could not be stored, so no
// token is created on the server and no domain is written.
func (s *TokenCreator) checkStorage(ctx context.Context, server string) *model.FormValidation {
	err := s.creds.CheckWritable(ctx)
	if err == nil {
		return nil
	}
	s.logger.Error("credential storage unavailable", "server_url", server, "error", err)
	v := model.ValidationError("Can't store GitLab token credentials for %s", server)
	return &v
}

func (s *TokenCreator) resolve(serverURL string) string {
	return model.ResolveServerURL(serverURL, s.defaultServer)
}

// lookupOwners lists the stores searched for p, system store first.
func lookupOwners(p model.Principal) []string {
	owners := []string{model.SystemStore}
	if !p.IsAnonymous() && !p.System {
		owners = append(owners, p.Name)
	}
	return owners
}

// lookup finds the username/password credential id among those applicable to
// target. Returns (nil, nil) when no store has it.
func (s *TokenCreator) lookup(ctx context.Context, target *url.URL, id string) (*model.Credential, error) {
	for _, owner := range lookupOwners(PrincipalFrom(ctx)) {
		creds, err := s.creds.ListMatching(ctx, owner, model.CredentialKindUsernamePassword, target)
		if err != nil {
			return nil, fmt.Errorf("list credentials for %s: %w", storeName(owner), err)
		}
		for _, c := range creds {
			if c.ID == id {
				return &c, nil
			}
		}
	}
	return nil, nil
}

// exchange mints one token and returns it with the name of the account it
// belongs to. No retry is attempted.
func (s *TokenCreator) exchange(ctx context.Context, server, login string, password model.Secret, tokenName string) (model.Secret, string, error) {
	req := model.TokenRequest{
		ServerURL: server,
		Username:  login,
		Password:  password,
		TokenName: tokenName,
		Scopes:    slices.Clone(model.RequiredScopes),
	}
	if s.tokenLifetime > 0 {
		req.ExpiresAt = s.now().UTC().Add(s.tokenLifetime).Truncate(24 * time.Hour)
	}

	token, err := s.issuer.CreatePersonalAccessToken(ctx, req)
	if err != nil {
		return model.Secret{}, "", err
	}
	if token.IsEmpty() {
		return model.Secret{}, "", errors.New("server returned an empty token")
	}

	if s.verifier == nil {
		return token, login, nil
	}

	info, err := s.verifier.VerifyToken(ctx, server, token)
	if err != nil {
		return model.Secret{}, "", fmt.Errorf("verify token: %w", err)
	}
	if !info.OwnedBy(login) {
		return model.Secret{}, "", fmt.Errorf("token belongs to %q, expected %q", info.Username, login)
	}
	for _, scope := range model.RequiredScopes {
		if !slices.Contains(info.Scopes, scope) {
			return model.Secret{}, "", fmt.Errorf("token is missing scope %q", scope)
		}
	}

	return token, info.Username, nil
}

// persist stores token as a new system credential under the domain for
// target. The write runs as the system principal.
func (s *TokenCreator) persist(ctx context.Context, server string, target *url.URL, token model.Secret, username string) model.FormValidation {
	cred := model.Credential{
		ID:          s.newID(),
		Owner:       model.SystemStore,
		Kind:        model.CredentialKindSecretText,
		Scope:       model.CredentialScopeGlobal,
		Description: model.IssuedCredentialDescription(server, username),
		Secret:      token,
		CreatedAt:   s.now().UTC(),
	}

	err := Impersonate(ctx, model.SystemPrincipal, func(ctx context.Context) error {
		domain, err := s.domains.GetOrCreate(ctx, model.DomainForServer(target))
		if err != nil {
			return fmt.Errorf("get or create domain: %w", err)
		}
		// A domain created for another scheme of the same host is widened.
		if !domain.Matches(target) {
			widened, err := s.domains.AddScheme(ctx, domain.Owner, domain.ID, target.Scheme)
			if err != nil {
				return fmt.Errorf("add scheme to domain %q: %w", domain.Name, err)
			}
			domain = widened
			if !domain.Matches(target) {
				return fmt.Errorf("domain %q does not match %s", domain.Name, server)
			}
		}
		cred.DomainID = domain.ID
		return s.creds.Add(ctx, cred)
	})
	if err != nil {
		s.logger.Error("can't add credentials for domain",
			"server_url", server,
			"domain", target.Hostname(),
			"error", err,
		)
		return model.ValidationError("Can't store GitLab token credentials for %s", server)
	}

	s.logger.Info("created token credentials",
		"credentials_id", cred.ID,
		"server_url", server,
		"username", username,
		"domain", target.Hostname(),
	)
	return model.ValidationOK("Created credentials with id %s", cred.ID)
}
