package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
	"github.com/ericfisherdev/gitlabpat/internal/domain/port/driven"
)

// StoreSystem and StoreUser select which credential store an added
// credential goes to.
const (
	StoreSystem = "system"
	StoreUser   = "user"
)

// ErrInvalidCredential is returned when CredentialInput fails validation.
var ErrInvalidCredential = errors.New("invalid credential")

// CredentialInput describes a username/password credential to add. ID and
// Domain are optional; a blank ID gets a fresh UUID and a blank Domain means
// the global domain.
type CredentialInput struct {
	ID          string
	Username    string
	Password    model.Secret
	Description string
	Domain      string
	Scope       model.CredentialScope
}

// CredentialService manages stored credentials on behalf of the caller.
type CredentialService struct {
	creds   driven.CredentialStore
	domains driven.DomainStore
	logger  *slog.Logger
	newID   func() string
}

// NewCredentialService creates a CredentialService.
func NewCredentialService(creds driven.CredentialStore, domains driven.DomainStore, logger *slog.Logger) *CredentialService {
	return &CredentialService{
		creds:   guardedCredentialStore{creds},
		domains: guardedDomainStore{domains},
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// AddUsernamePassword stores a username/password credential. The system store
// requires Administer; StoreUser writes to the caller's own store.
func (s *CredentialService) AddUsernamePassword(ctx context.Context, store string, in CredentialInput) (model.Credential, error) {
	p := PrincipalFrom(ctx)
	if p.IsAnonymous() {
		return model.Credential{}, ErrUnauthenticated
	}

	var owner string
	switch store {
	case StoreSystem, "":
		if err := CheckPermission(ctx, model.Administer); err != nil {
			return model.Credential{}, err
		}
		owner = model.SystemStore
	case StoreUser:
		if p.System {
			return model.Credential{}, fmt.Errorf("system principal has no user store: %w", ErrInvalidCredential)
		}
		owner = p.Name
	default:
		return model.Credential{}, fmt.Errorf("unknown store %q: %w", store, ErrInvalidCredential)
	}

	if strings.TrimSpace(in.Username) == "" {
		return model.Credential{}, fmt.Errorf("username is required: %w", ErrInvalidCredential)
	}
	if in.Password.IsEmpty() {
		return model.Credential{}, fmt.Errorf("password is required: %w", ErrInvalidCredential)
	}

	scope := in.Scope
	if scope == "" {
		scope = model.CredentialScopeGlobal
	}
	if !scope.Valid() {
		return model.Credential{}, fmt.Errorf("unknown scope %q: %w", scope, ErrInvalidCredential)
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = s.newID()
	}

	cred := model.Credential{
		ID:          id,
		Owner:       owner,
		Kind:        model.CredentialKindUsernamePassword,
		Scope:       scope,
		Description: in.Description,
		Username:    strings.TrimSpace(in.Username),
		Secret:      in.Password,
		CreatedAt:   time.Now().UTC(),
	}

	if name := strings.TrimSpace(in.Domain); name != "" {
		d, err := s.domains.GetByName(ctx, owner, name)
		if err != nil {
			return model.Credential{}, fmt.Errorf("look up domain %q: %w", name, err)
		}
		if d == nil {
			return model.Credential{}, fmt.Errorf("domain %q not found in %s store: %w", name, storeName(owner), ErrInvalidCredential)
		}
		cred.DomainID = d.ID
	}

	write := func(ctx context.Context) error { return s.creds.Add(ctx, cred) }
	var err error
	if owner == model.SystemStore {
		err = Impersonate(ctx, model.SystemPrincipal, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		return model.Credential{}, err
	}

	s.logger.Info("credential added", "credentials_id", cred.ID, "store", storeName(owner), "username", cred.Username)
	return cred, nil
}

// List returns the credentials visible to the caller: the caller's own store,
// plus the system store for administrators.
func (s *CredentialService) List(ctx context.Context) ([]model.Credential, error) {
	var out []model.Credential
	for _, owner := range visibleOwners(PrincipalFrom(ctx)) {
		creds, err := s.creds.List(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("list %s credentials: %w", storeName(owner), err)
		}
		out = append(out, creds...)
	}
	if out == nil {
		out = []model.Credential{}
	}
	return out, nil
}

// ListDomains returns the domains visible to the caller under the same rule
// as List.
func (s *CredentialService) ListDomains(ctx context.Context) ([]model.Domain, error) {
	var out []model.Domain
	for _, owner := range visibleOwners(PrincipalFrom(ctx)) {
		domains, err := s.domains.List(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("list %s domains: %w", storeName(owner), err)
		}
		out = append(out, domains...)
	}
	if out == nil {
		out = []model.Domain{}
	}
	return out, nil
}

func visibleOwners(p model.Principal) []string {
	var owners []string
	if p.HasPermission(model.Administer) {
		owners = append(owners, model.SystemStore)
	}
	if !p.IsAnonymous() && !p.System {
		owners = append(owners, p.Name)
	}
	return owners
}
