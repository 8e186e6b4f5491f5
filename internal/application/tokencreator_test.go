package application

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
	"github.com/ericfisherdev/gitlabpat/internal/domain/port/driven"
)

type tokenCreatorFixture struct {
	svc     *TokenCreator
	creds   *fakeCredentialStore
	domains *fakeDomainStore
	issuer  *fakeIssuer
}

func newTokenCreatorFixture(t *testing.T) *tokenCreatorFixture {
	t.Helper()
	domains := &fakeDomainStore{}
	creds := &fakeCredentialStore{domains: domains}
	issuer := &fakeIssuer{}
	svc := NewTokenCreator(creds, domains, issuer, nil, "", 0, discardLogger())
	return &tokenCreatorFixture{svc: svc, creds: creds, domains: domains, issuer: issuer}
}

func (f *tokenCreatorFixture) seed(t *testing.T, cred model.Credential) {
	t.Helper()
	cred.Kind = model.CredentialKindUsernamePassword
	cred.Scope = model.CredentialScopeGlobal
	if cred.Secret.IsEmpty() {
		cred.Secret = model.NewSecret("pw-" + cred.Username)
	}
	f.creds.creds = append(f.creds.creds, cred)
}

func (f *tokenCreatorFixture) issued() []model.Credential {
	return f.creds.ofKind(model.CredentialKindSecretText)
}

func TestCreateTokenByCredentials_BlankID(t *testing.T) {
	f := newTokenCreatorFixture(t)

	for _, id := range []string{"", "   "} {
		result, err := f.svc.CreateTokenByCredentials(adminCtx(), "https://gitlab.example.com", id)
		require.NoError(t, err)
		assert.False(t, result.IsOK())
		assert.Equal(t, "Please specify credentials to create token", result.Message)
	}
	assert.Zero(t, f.issuer.calls())
	assert.Empty(t, f.issued())
}

func TestCreateTokenByCredentials_NotFoundInEitherStore(t *testing.T) {
	f := newTokenCreatorFixture(t)
	f.seed(t, model.Credential{ID: "other", Owner: model.SystemStore, Username: "alice"})
	f.seed(t, model.Credential{ID: "bobs", Owner: "bob", Username: "bob"})

	result, err := f.svc.CreateTokenByCredentials(adminCtx(), "https://gitlab.example.com", "missing")
	require.NoError(t, err)
	assert.False(t, result.IsOK())
	assert.Equal(t, "Can't create GitLab token, credentials are null", result.Message)
	assert.Zero(t, f.issuer.calls())
}

func TestCreateTokenByCredentials_IgnoresOtherUsersStores(t *testing.T) {
	f := newTokenCreatorFixture(t)
	f.seed(t, model.Credential{ID: "bobs", Owner: "bob", Username: "bob"})

	result, err := f.svc.CreateTokenByCredentials(adminCtx(), "https://gitlab.example.com", "bobs")
	require.NoError(t, err)
	assert.False(t, result.IsOK())
	assert.Zero(t, f.issuer.calls())
}

func TestCreateTokenByCredentials_SystemStore(t *testing.T) {
	f := newTokenCreatorFixture(t)
	f.seed(t, model.Credential{ID: "login", Owner: model.SystemStore, Username: "alice"})

	result, err := f.svc.CreateTokenByCredentials(adminCtx(), "https://gitlab.example.com", "login")
	require.NoError(t, err)
	require.True(t, result.IsOK(), result.Message)

	require.Equal(t, 1, f.issuer.calls())
	req := f.issuer.requests[0]
	assert.Equal(t, "https://gitlab.example.com", req.ServerURL)
	assert.Equal(t, "alice", req.Username)
	assert.Equal(t, "pw-alice", req.Password.Reveal())
	assert.Equal(t, DefaultTokenName, req.TokenName)
	assert.Equal(t, []string{"api", "read_user"}, req.Scopes)
	assert.True(t, req.ExpiresAt.IsZero())

	issued := f.issued()
	require.Len(t, issued, 1)
	assert.Equal(t, "Created credentials with id "+issued[0].ID, result.Message)
	assert.NotEqual(t, "login", issued[0].ID, "success message must name the new credential")
	assert.Equal(t, "glpat-alice", issued[0].Secret.Reveal())
}

func TestCreateTokenByCredentials_FallsBackToCallerStore(t *testing.T) {
	f := newTokenCreatorFixture(t)
	f.seed(t, model.Credential{ID: "mine", Owner: "root", Username: "rootuser"})

	result, err := f.svc.CreateTokenByCredentials(adminCtx(), "https://gitlab.example.com", "mine")
	require.NoError(t, err)
	require.True(t, result.IsOK(), result.Message)
	require.Equal(t, 1, f.issuer.calls())
	assert.Equal(t, "rootuser", f.issuer.requests[0].Username)
}

func TestCreateTokenByCredentials_SystemStoreWins(t *testing.T) {
	f := newTokenCreatorFixture(t)
	f.seed(t, model.Credential{ID: "dup", Owner: "root", Username: "from-user-store"})
	f.seed(t, model.Credential{ID: "dup", Owner: model.SystemStore, Username: "from-system-store"})

	_, err := f.svc.CreateTokenByCredentials(adminCtx(), "https://gitlab.example.com", "dup")
	require.NoError(t, err)
	require.Equal(t, 1, f.issuer.calls())
	assert.Equal(t, "from-system-store", f.issuer.requests[0].Username)
}

func TestCreateTokenByCredentials_RespectsDomainMatching(t *testing.T) {
	f := newTokenCreatorFixture(t)
	other, err := f.domains.GetOrCreate(WithPrincipal(context.Background(), model.SystemPrincipal), model.Domain{
		Name:           "other.example.com",
		Specifications: []model.DomainSpecification{model.HostnameSpecification("other.example.com", "")},
	})
	require.NoError(t, err)
	f.seed(t, model.Credential{ID: "scoped", Owner: model.SystemStore, Username: "alice", DomainID: other.ID})

	result, err := f.svc.CreateTokenByCredentials(adminCtx(), "https://gitlab.example.com", "scoped")
	require.NoError(t, err)
	assert.False(t, result.IsOK())
	assert.Zero(t, f.issuer.calls())

	result, err = f.svc.CreateTokenByCredentials(adminCtx(), "https://other.example.com", "scoped")
	require.NoError(t, err)
	assert.True(t, result.IsOK(), result.Message)
}

func TestCreateTokenByCredentials_RemoteFailure(t *testing.T) {
	f := newTokenCreatorFixture(t)
	f.seed(t, model.Credential{ID: "login", Owner: model.SystemStore, Username: "alice"})
	f.issuer.err = errBoom

	result, err := f.svc.CreateTokenByCredentials(adminCtx(), "https://gitlab.example.com", "login")
	require.NoError(t, err)
	assert.False(t, result.IsOK())
	assert.Equal(t, "Can't create GL token - boom", result.Message)
	assert.Empty(t, f.issued())
	assert.Empty(t, f.domains.domains)
}

func TestCreateTokenByCredentials_LookupFailure(t *testing.T) {
	f := newTokenCreatorFixture(t)
	f.creds.listErr = errBoom

	result, err := f.svc.CreateTokenByCredentials(adminCtx(), "https://gitlab.example.com", "login")
	require.NoError(t, err)
	assert.False(t, result.IsOK())
	assert.NotContains(t, result.Message, "boom")
	assert.Zero(t, f.issuer.calls())
}

func TestCreateToken_PermissionCheckedFirst(t *testing.T) {
	f := newTokenCreatorFixture(t)
	f.seed(t, model.Credential{ID: "login", Owner: model.SystemStore, Username: "alice"})

	_, err := f.svc.CreateTokenByCredentials(userCtx("bob"), "", "login")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CreateTokenByCredentials(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.svc.CreateTokenByPassword(userCtx("bob"), "", "alice", model.NewSecret("pw"))
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Zero(t, f.issuer.calls())
	assert.Empty(t, f.issued())
}

func TestCreateTokenByPassword_Success(t *testing.T) {
	f := newTokenCreatorFixture(t)

	result, err := f.svc.CreateTokenByPassword(adminCtx(), "https://gitlab.example.com:8443/gitlab", "alice", model.NewSecret("s3cret"))
	require.NoError(t, err)
	require.True(t, result.IsOK(), result.Message)

	require.Equal(t, 1, f.issuer.calls())
	req := f.issuer.requests[0]
	assert.Equal(t, "s3cret", req.Password.Reveal())
	_, err = uuid.Parse(req.TokenName)
	assert.NoError(t, err, "token name should be a random UUID")

	issued := f.issued()
	require.Len(t, issued, 1)
	cred := issued[0]
	_, err = uuid.Parse(cred.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.SystemStore, cred.Owner)
	assert.Equal(t, model.CredentialScopeGlobal, cred.Scope)
	assert.Contains(t, cred.Description, "https://gitlab.example.com:8443/gitlab")
	assert.Contains(t, cred.Description, "alice")
	assert.Equal(t, "Auto Generated by https://gitlab.example.com:8443/gitlab server for alice user", cred.Description)
	assert.Equal(t, "Created credentials with id "+cred.ID, result.Message)

	domain, ok := f.domains.byID(cred.DomainID)
	require.True(t, ok)
	assert.Equal(t, "gitlab.example.com", domain.Name)
	assert.Equal(t, model.AutoDomainDescription, domain.Description)
	assert.True(t, domain.AutoGenerated)
	assert.Equal(t, []model.DomainSpecification{
		model.SchemeSpecification("https"),
		model.HostnameSpecification("gitlab.example.com", ""),
	}, domain.Specifications)
}

func TestCreateTokenByPassword_DefaultServer(t *testing.T) {
	f := newTokenCreatorFixture(t)

	result, err := f.svc.CreateTokenByPassword(adminCtx(), "  ", "alice", model.NewSecret("pw"))
	require.NoError(t, err)
	require.True(t, result.IsOK(), result.Message)

	assert.Equal(t, model.DefaultServerURL, f.issuer.requests[0].ServerURL)
	issued := f.issued()
	require.Len(t, issued, 1)
	assert.Contains(t, issued[0].Description, model.DefaultServerURL)
	domain, ok := f.domains.byID(issued[0].DomainID)
	require.True(t, ok)
	assert.Equal(t, "gitlab.com", domain.Name)
}

func TestCreateTokenByPassword_ConfiguredDefaultServer(t *testing.T) {
	domains := &fakeDomainStore{}
	creds := &fakeCredentialStore{domains: domains}
	issuer := &fakeIssuer{}
	svc := NewTokenCreator(creds, domains, issuer, nil, "https://git.internal", 0, discardLogger())

	_, err := svc.CreateTokenByPassword(adminCtx(), "", "alice", model.NewSecret("pw"))
	require.NoError(t, err)
	require.Equal(t, 1, issuer.calls())
	assert.Equal(t, "https://git.internal", issuer.requests[0].ServerURL)
}

func TestCreateTokenByPassword_Validation(t *testing.T) {
	f := newTokenCreatorFixture(t)

	result, err := f.svc.CreateTokenByPassword(adminCtx(), "", "", model.NewSecret("pw"))
	require.NoError(t, err)
	assert.False(t, result.IsOK())

	result, err = f.svc.CreateTokenByPassword(adminCtx(), "", "alice", model.Secret{})
	require.NoError(t, err)
	assert.False(t, result.IsOK())

	result, err = f.svc.CreateTokenByPassword(adminCtx(), "not a url", "alice", model.NewSecret("pw"))
	require.NoError(t, err)
	assert.False(t, result.IsOK())
	assert.Contains(t, result.Message, "Invalid GitLab server URL")

	assert.Zero(t, f.issuer.calls())
}

func TestCreateTokenByPassword_RemoteFailure(t *testing.T) {
	f := newTokenCreatorFixture(t)
	f.issuer.err = errBoom

	result, err := f.svc.CreateTokenByPassword(adminCtx(), "https://gitlab.example.com", "alice", model.NewSecret("pw"))
	require.NoError(t, err)
	assert.False(t, result.IsOK())
	assert.Equal(t, "Can't create GL token for alice - boom", result.Message)
	assert.Empty(t, f.issued())
}

func TestCreateTokenByPassword_PersistenceFailureIsSurfaced(t *testing.T) {
	f := newTokenCreatorFixture(t)
	f.creds.addErr = errBoom

	result, err := f.svc.CreateTokenByPassword(adminCtx(), "https://gitlab.example.com", "alice", model.NewSecret("pw"))
	require.NoError(t, err)
	assert.False(t, result.IsOK())
	assert.Equal(t, "Can't store GitLab token credentials for https://gitlab.example.com", result.Message)

	f.creds.addErr = nil
	f.domains.err = errBoom
	result, err = f.svc.CreateTokenByPassword(adminCtx(), "https://gitlab.example.com", "alice", model.NewSecret("pw"))
	require.NoError(t, err)
	assert.False(t, result.IsOK())
}

func TestCreateTokenByPassword_WritesAsSystemPrincipal(t *testing.T) {
	f := newTokenCreatorFixture(t)
	ctx := adminCtx()

	result, err := f.svc.CreateTokenByPassword(ctx, "https://gitlab.example.com", "alice", model.NewSecret("pw"))
	require.NoError(t, err)
	require.True(t, result.IsOK(), result.Message)

	assert.Equal(t, []model.Principal{model.SystemPrincipal}, f.creds.callers)
	assert.Equal(t, []model.Principal{model.SystemPrincipal}, f.domains.callers)
	assert.Equal(t, "root", PrincipalFrom(ctx).Name, "caller context must not be elevated")
}

func TestCreateTokenByPassword_TwoUsersSameServer(t *testing.T) {
	f := newTokenCreatorFixture(t)

	r1, err := f.svc.CreateTokenByPassword(adminCtx(), "https://gitlab.example.com", "alice", model.NewSecret("pw1"))
	require.NoError(t, err)
	require.True(t, r1.IsOK())
	r2, err := f.svc.CreateTokenByPassword(adminCtx(), "https://gitlab.example.com", "bob", model.NewSecret("pw2"))
	require.NoError(t, err)
	require.True(t, r2.IsOK())

	issued := f.issued()
	require.Len(t, issued, 2)
	assert.NotEqual(t, issued[0].ID, issued[1].ID)
	assert.NotEqual(t, issued[0].Description, issued[1].Description)
	assert.Equal(t, issued[0].DomainID, issued[1].DomainID)
	assert.Len(t, f.domains.domains, 1)
}

func TestCreateTokenByPassword_SameHostOtherScheme(t *testing.T) {
	f := newTokenCreatorFixture(t)

	r1, err := f.svc.CreateTokenByPassword(adminCtx(), "https://gitlab.example.com", "alice", model.NewSecret("pw1"))
	require.NoError(t, err)
	require.True(t, r1.IsOK(), r1.Message)
	r2, err := f.svc.CreateTokenByPassword(adminCtx(), "http://gitlab.example.com", "bob", model.NewSecret("pw2"))
	require.NoError(t, err)
	require.True(t, r2.IsOK(), r2.Message)

	require.Len(t, f.domains.domains, 1)
	assert.Equal(t, []model.DomainSpecification{
		model.SchemeSpecification("https", "http"),
		model.HostnameSpecification("gitlab.example.com", ""),
	}, f.domains.domains[0].Specifications)

	for _, raw := range []string{"https://gitlab.example.com", "http://gitlab.example.com"} {
		target, err := url.Parse(raw)
		require.NoError(t, err)
		visible, err := f.creds.ListMatching(context.Background(), model.SystemStore, model.CredentialKindSecretText, target)
		require.NoError(t, err)
		assert.Len(t, visible, 2, raw)
	}
}

func TestCreateTokenByPassword_StorageUnavailable(t *testing.T) {
	f := newTokenCreatorFixture(t)
	f.creds.writableErr = driven.ErrEncryptionKeyNotSet

	result, err := f.svc.CreateTokenByPassword(adminCtx(), "https://gitlab.example.com", "alice", model.NewSecret("pw"))
	require.NoError(t, err)
	assert.False(t, result.IsOK())
	assert.Equal(t, "Can't store GitLab token credentials for https://gitlab.example.com", result.Message)

	assert.Zero(t, f.issuer.calls(), "no token should be minted that cannot be stored")
	assert.Empty(t, f.domains.domains)
	assert.Empty(t, f.issued())
}

func TestCreateTokenByCredentials_StorageUnavailable(t *testing.T) {
	f := newTokenCreatorFixture(t)
	f.seed(t, model.Credential{ID: "login", Owner: model.SystemStore, Username: "alice"})
	f.creds.writableErr = driven.ErrEncryptionKeyNotSet

	result, err := f.svc.CreateTokenByCredentials(adminCtx(), "https://gitlab.example.com", "login")
	require.NoError(t, err)
	assert.False(t, result.IsOK())
	assert.Zero(t, f.issuer.calls())
	assert.Empty(t, f.domains.domains)
}

func TestCreateTokenByPassword_TokenLifetime(t *testing.T) {
	f := newTokenCreatorFixture(t)
	f.svc.tokenLifetime = 30 * 24 * time.Hour
	f.svc.now = func() time.Time { return time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC) }

	_, err := f.svc.CreateTokenByPassword(adminCtx(), "", "alice", model.NewSecret("pw"))
	require.NoError(t, err)
	require.Equal(t, 1, f.issuer.calls())
	assert.Equal(t, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), f.issuer.requests[0].ExpiresAt)
}

func TestCreateTokenByPassword_Verification(t *testing.T) {
	tests := []struct {
		name    string
		login   string
		info    model.TokenInfo
		err     error
		wantOK  bool
		message string
	}{
		{
			name:   "matching user and scopes",
			info:   model.TokenInfo{Username: "Alice", Scopes: []string{"api", "read_user"}},
			wantOK: true,
		},
		{
			name:   "email login matches account email",
			login:  "alice@example.com",
			info:   model.TokenInfo{Username: "alice", Email: "Alice@Example.com", Scopes: []string{"api", "read_user"}},
			wantOK: true,
		},
		{
			name:    "email login with other account email",
			login:   "alice@example.com",
			info:    model.TokenInfo{Username: "alice", Email: "mallory@example.com", Scopes: []string{"api", "read_user"}},
			message: `token belongs to "alice", expected "alice@example.com"`,
		},
		{
			name:    "wrong user",
			info:    model.TokenInfo{Username: "mallory", Scopes: []string{"api", "read_user"}},
			message: `token belongs to "mallory"`,
		},
		{
			name:    "missing scope",
			info:    model.TokenInfo{Username: "alice", Scopes: []string{"api"}},
			message: `missing scope "read_user"`,
		},
		{
			name:    "verifier error",
			err:     errBoom,
			message: "verify token: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTokenCreatorFixture(t)
			f.svc.verifier = &fakeVerifier{info: tt.info, err: tt.err}
			login := tt.login
			if login == "" {
				login = "alice"
			}

			result, err := f.svc.CreateTokenByPassword(adminCtx(), "https://gitlab.example.com", login, model.NewSecret("pw"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, result.IsOK(), result.Message)
			if tt.wantOK {
				issued := f.issued()
				require.Len(t, issued, 1)
				assert.Equal(t, "Auto Generated by https://gitlab.example.com server for "+tt.info.Username+" user", issued[0].Description)
				return
			}
			assert.Contains(t, result.Message, tt.message)
			assert.Empty(t, f.issued())
		})
	}
}

func TestCreateTokenByPassword_EmptyTokenRejected(t *testing.T) {
	f := newTokenCreatorFixture(t)
	f.issuer.tokens = []string{""}

	result, err := f.svc.CreateTokenByPassword(adminCtx(), "", "alice", model.NewSecret("pw"))
	require.NoError(t, err)
	assert.False(t, result.IsOK())
	assert.Empty(t, f.issued())
}

func TestFillCredentialsItems_NonAdminGetsCurrentValueOnly(t *testing.T) {
	f := newTokenCreatorFixture(t)
	f.seed(t, model.Credential{ID: "login", Owner: model.SystemStore, Username: "alice"})
	f.seed(t, model.Credential{ID: "bobs", Owner: "bob", Username: "bob"})

	options, err := f.svc.FillCredentialsItems(userCtx("bob"), "", "selected")
	require.NoError(t, err)
	assert.Equal(t, []model.ListBoxOption{{Name: "- current -", Value: "selected"}}, options)

	options, err = f.svc.FillCredentialsItems(context.Background(), "", "selected")
	require.NoError(t, err)
	assert.Len(t, options, 1)
}

func TestFillCredentialsItems_Admin(t *testing.T) {
	f := newTokenCreatorFixture(t)
	elevated := WithPrincipal(context.Background(), model.SystemPrincipal)
	elsewhere, err := f.domains.GetOrCreate(elevated, model.Domain{
		Name:           "elsewhere.example",
		Specifications: []model.DomainSpecification{model.HostnameSpecification("elsewhere.example", "")},
	})
	require.NoError(t, err)

	f.seed(t, model.Credential{ID: "sys", Owner: model.SystemStore, Username: "alice", Description: "ci login"})
	f.seed(t, model.Credential{ID: "scoped-away", Owner: model.SystemStore, Username: "nobody", DomainID: elsewhere.ID})
	f.seed(t, model.Credential{ID: "mine", Owner: "root", Username: "rootuser"})
	f.seed(t, model.Credential{ID: "sys", Owner: "root", Username: "shadowed"})
	f.seed(t, model.Credential{ID: "theirs", Owner: "bob", Username: "bob"})
	f.creds.creds = append(f.creds.creds, model.Credential{ID: "token", Owner: model.SystemStore, Kind: model.CredentialKindSecretText})

	options, err := f.svc.FillCredentialsItems(adminCtx(), "https://gitlab.example.com", "")
	require.NoError(t, err)
	assert.Equal(t, []model.ListBoxOption{
		{Name: "- none -", Value: ""},
		{Name: "alice/****** (ci login)", Value: "sys"},
		{Name: "rootuser/******", Value: "mine"},
	}, options)
}

func TestFillCredentialsItems_InvalidURL(t *testing.T) {
	f := newTokenCreatorFixture(t)
	f.seed(t, model.Credential{ID: "sys", Owner: model.SystemStore, Username: "alice"})

	options, err := f.svc.FillCredentialsItems(adminCtx(), "no-scheme", "")
	require.NoError(t, err)
	assert.Equal(t, []model.ListBoxOption{{Name: "- none -", Value: ""}}, options)
}

func TestLookup_ExactIDMatch(t *testing.T) {
	f := newTokenCreatorFixture(t)
	f.seed(t, model.Credential{ID: "a", Owner: model.SystemStore, Username: "alice"})
	f.seed(t, model.Credential{ID: "b", Owner: model.SystemStore, Username: "bob"})

	target, err := url.Parse("https://gitlab.com")
	require.NoError(t, err)
	got, err := f.svc.lookup(adminCtx(), target, "b")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bob", got.Username)
	assert.Equal(t, "pw-bob", got.Secret.Reveal())
}
