package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
)

// ErrUserExists is returned by Create when the user name is taken.
var ErrUserExists = errors.New("user already exists")

// UserStore defines the driven port for API caller persistence.
type UserStore interface {
	Create(ctx context.Context, user model.User, apiKeyHash string) error

	// GetByID returns the user and its stored API key hash, or (nil, "", nil)
	// when absent.
	GetByID(ctx context.Context, id string) (*model.User, string, error)

	// GetByName returns (nil, nil) when absent.
	GetByName(ctx context.Context, name string) (*model.User, error)

	List(ctx context.Context) ([]model.User, error)
}
