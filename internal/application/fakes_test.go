package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"sync"

	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
	"github.com/ericfisherdev/gitlabpat/internal/domain/port/driven"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func adminCtx() context.Context {
	return WithPrincipal(context.Background(), model.Principal{Name: "root", Admin: true})
}

func userCtx(name string) context.Context {
	return WithPrincipal(context.Background(), model.Principal{Name: name})
}

// --- fake stores ---

type fakeDomainStore struct {
	mu      sync.Mutex
	domains []model.Domain
	nextID  int64
	err     error
	callers []model.Principal
}

func (f *fakeDomainStore) GetOrCreate(ctx context.Context, d model.Domain) (model.Domain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callers = append(f.callers, PrincipalFrom(ctx))
	if f.err != nil {
		return model.Domain{}, f.err
	}
	for _, existing := range f.domains {
		if existing.Owner == d.Owner && existing.Name == d.Name {
			return existing, nil
		}
	}
	f.nextID++
	d.ID = f.nextID
	f.domains = append(f.domains, d)
	return d, nil
}

func (f *fakeDomainStore) AddScheme(ctx context.Context, owner string, id int64, scheme string) (model.Domain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callers = append(f.callers, PrincipalFrom(ctx))
	for i, d := range f.domains {
		if d.Owner != owner || d.ID != id {
			continue
		}
		specs := slices.Clone(d.Specifications)
		for j, spec := range specs {
			if spec.Kind == model.SpecificationScheme {
				specs[j].Includes = spec.Includes + "," + scheme
				break
			}
		}
		f.domains[i].Specifications = specs
		return f.domains[i], nil
	}
	return model.Domain{}, errors.New("domain not found")
}

func (f *fakeDomainStore) GetByName(_ context.Context, owner, name string) (*model.Domain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.domains {
		if d.Owner == owner && d.Name == name {
			return &d, nil
		}
	}
	return nil, nil
}

func (f *fakeDomainStore) List(_ context.Context, owner string) ([]model.Domain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Domain
	for _, d := range f.domains {
		if d.Owner == owner {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDomainStore) byID(id int64) (model.Domain, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.domains {
		if d.ID == id {
			return d, true
		}
	}
	return model.Domain{}, false
}

type fakeCredentialStore struct {
	mu          sync.Mutex
	creds       []model.Credential
	domains     *fakeDomainStore
	addErr      error
	listErr     error
	writableErr error
	callers     []model.Principal
}

func (f *fakeCredentialStore) CheckWritable(_ context.Context) error {
	return f.writableErr
}

func (f *fakeCredentialStore) Add(ctx context.Context, cred model.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callers = append(f.callers, PrincipalFrom(ctx))
	if f.addErr != nil {
		return f.addErr
	}
	for _, c := range f.creds {
		if c.ID == cred.ID {
			return driven.ErrCredentialExists
		}
	}
	f.creds = append(f.creds, cred)
	return nil
}

func (f *fakeCredentialStore) Get(_ context.Context, owner, id string) (*model.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.creds {
		if c.Owner == owner && c.ID == id {
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeCredentialStore) List(_ context.Context, owner string) ([]model.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Credential
	for _, c := range f.creds {
		if c.Owner == owner {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCredentialStore) ListMatching(ctx context.Context, owner string, kind model.CredentialKind, target *url.URL) ([]model.Credential, error) {
	all, err := f.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	var out []model.Credential
	for _, c := range all {
		if c.Kind != kind {
			continue
		}
		if c.DomainID != 0 {
			d, ok := f.domains.byID(c.DomainID)
			if !ok || !d.Matches(target) {
				continue
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCredentialStore) ofKind(kind model.CredentialKind) []model.Credential {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Credential
	for _, c := range f.creds {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// --- fake GitLab ---

type fakeIssuer struct {
	mu       sync.Mutex
	requests []model.TokenRequest
	tokens   []string
	err      error
}

func (f *fakeIssuer) CreatePersonalAccessToken(_ context.Context, req model.TokenRequest) (model.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return model.Secret{}, f.err
	}
	token := "glpat-" + req.Username
	if n := len(f.tokens); n > 0 {
		token = f.tokens[0]
		f.tokens = f.tokens[1:]
	}
	return model.NewSecret(token), nil
}

func (f *fakeIssuer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeVerifier struct {
	info model.TokenInfo
	err  error
}

func (f *fakeVerifier) VerifyToken(_ context.Context, _ string, _ model.Secret) (model.TokenInfo, error) {
	return f.info, f.err
}

var errBoom = errors.New("boom")
