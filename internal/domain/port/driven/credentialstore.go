package driven

import (
	"context"
	"errors"
	"net/url"

	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// GITLABPAT_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set GITLABPAT_SECRET_KEY")

// ErrCredentialExists is returned by Add when the credential ID is taken.
var ErrCredentialExists = errors.New("credential id already exists")

// CredentialStore defines the driven port for encrypted credential persistence.
// The adapter layer is responsible for encryption/decryption; this interface
// operates on plaintext secrets at the domain boundary. Owner is
// model.SystemStore for the system store or a user name for a per-user store.
type CredentialStore interface {
	// Add persists a new credential. Returns ErrCredentialExists if the ID is
	// already used by any store.
	Add(ctx context.Context, cred model.Credential) error

	// CheckWritable reports whether Add can currently persist secrets.
	// Returns ErrEncryptionKeyNotSet when no key is configured.
	CheckWritable(ctx context.Context) error

	// Get retrieves a credential by ID within owner's store.
	// Returns (nil, nil) if it does not exist.
	Get(ctx context.Context, owner, id string) (*model.Credential, error)

	// List returns every credential in owner's store.
	List(ctx context.Context, owner string) ([]model.Credential, error)

	// ListMatching returns the credentials of the given kind in owner's store
	// whose domain matches target. Credentials in the global domain always match.
	ListMatching(ctx context.Context, owner string, kind model.CredentialKind, target *url.URL) ([]model.Credential, error)
}
