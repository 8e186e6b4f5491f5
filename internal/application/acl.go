package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
)

var (
	// ErrUnauthenticated is returned when an operation needs an identity and
	// the context carries none.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the principal lacks a required permission.
	ErrForbidden = errors.New("permission denied")
)

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal carried by ctx, or model.Anonymous.
func PrincipalFrom(ctx context.Context) model.Principal {
	if p, ok := ctx.Value(principalKey{}).(model.Principal); ok {
		return p
	}
	return model.Anonymous
}

// CheckPermission fails unless the principal in ctx holds perm.
func CheckPermission(ctx context.Context, perm model.Permission) error {
	p := PrincipalFrom(ctx)
	if p.HasPermission(perm) {
		return nil
	}
	if p.IsAnonymous() {
		return ErrUnauthenticated
	}
	return fmt.Errorf("%s lacks %s: %w", p.Name, perm, ErrForbidden)
}

// Impersonate runs fn with a context derived from ctx that carries p. The
// elevated context is only reachable inside fn; ctx itself is never changed,
// so the capability ends when fn returns or panics.
func Impersonate(ctx context.Context, p model.Principal, fn func(ctx context.Context) error) error {
	return fn(WithPrincipal(ctx, p))
}

// canWriteStore reports whether p may write to owner's credential store.
// Only the system principal writes the system store; a user store is also
// writable by its user.
func canWriteStore(p model.Principal, owner string) bool {
	if p.System {
		return true
	}
	if owner == model.SystemStore {
		return false
	}
	return !p.IsAnonymous() && p.Name == owner
}
