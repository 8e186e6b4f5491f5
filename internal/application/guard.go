package application

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
	"github.com/ericfisherdev/gitlabpat/internal/domain/port/driven"
)

// guardedCredentialStore enforces store write permissions for the principal
// carried by each call's context. Reads pass through; visibility is decided
// by the services.
type guardedCredentialStore struct {
	driven.CredentialStore
}

func (g guardedCredentialStore) Add(ctx context.Context, cred model.Credential) error {
	if p := PrincipalFrom(ctx); !canWriteStore(p, cred.Owner) {
		return fmt.Errorf("%s cannot write credential store %q: %w", p.Name, storeName(cred.Owner), ErrForbidden)
	}
	return g.CredentialStore.Add(ctx, cred)
}

type guardedDomainStore struct {
	driven.DomainStore
}

func (g guardedDomainStore) GetOrCreate(ctx context.Context, d model.Domain) (model.Domain, error) {
	if p := PrincipalFrom(ctx); !canWriteStore(p, d.Owner) {
		return model.Domain{}, fmt.Errorf("%s cannot write domains of store %q: %w", p.Name, storeName(d.Owner), ErrForbidden)
	}
	return g.DomainStore.GetOrCreate(ctx, d)
}

func (g guardedDomainStore) AddScheme(ctx context.Context, owner string, id int64, scheme string) (model.Domain, error) {
	if p := PrincipalFrom(ctx); !canWriteStore(p, owner) {
		return model.Domain{}, fmt.Errorf("%s cannot write domains of store %q: %w", p.Name, storeName(owner), ErrForbidden)
	}
	return g.DomainStore.AddScheme(ctx, owner, id, scheme)
}

func storeName(owner string) string {
	if owner == model.SystemStore {
		return "system"
	}
	return owner
}

