package driven

import (
	"context"

	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
)

// DomainStore defines the driven port for credential domain persistence.
type DomainStore interface {
	// GetOrCreate returns the domain named d.Name in d.Owner's store, creating
	// it with d's description and specifications when absent. An existing
	// domain is returned as stored; its specifications are not compared.
	GetOrCreate(ctx context.Context, d model.Domain) (model.Domain, error)

	// AddScheme widens the scheme specifications of domain id in owner's
	// store to also accept scheme, and returns the updated domain. A domain
	// without a scheme specification already accepts every scheme and is
	// returned unchanged.
	AddScheme(ctx context.Context, owner string, id int64, scheme string) (model.Domain, error)

	// GetByName returns (nil, nil) if no such domain exists.
	GetByName(ctx context.Context, owner, name string) (*model.Domain, error)

	List(ctx context.Context, owner string) ([]model.Domain, error)
}
