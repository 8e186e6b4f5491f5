package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
	"github.com/ericfisherdev/gitlabpat/internal/domain/port/driven"
)

const apiKeySecretBytes = 32

// UserService registers API callers and authenticates their API keys.
// Keys have the form "<user id>.<secret>"; only a bcrypt hash of the secret
// is stored.
type UserService struct {
	users  driven.UserStore
	logger *slog.Logger
	cost   int
}

// NewUserService creates a UserService.
func NewUserService(users driven.UserStore, logger *slog.Logger) *UserService {
	return &UserService{users: users, logger: logger, cost: bcrypt.DefaultCost}
}

// CreateUser registers a user and returns it with its API key. The key is not
// recoverable afterwards.
func (s *UserService) CreateUser(ctx context.Context, name string, admin bool) (model.User, model.Secret, error) {
	if err := CheckPermission(ctx, model.Administer); err != nil {
		return model.User{}, model.Secret{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, model.SystemPrincipal.Name) || name == model.Anonymous.Name {
		return model.User{}, model.Secret{}, fmt.Errorf("invalid user name %q", name)
	}

	raw := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return model.User{}, model.Secret{}, fmt.Errorf("generate api key: %w", err)
	}
	secret := hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return model.User{}, model.Secret{}, fmt.Errorf("hash api key: %w", err)
	}

	user := model.User{
		ID:        uuid.NewString(),
		Name:      name,
		Admin:     admin,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user, string(hash)); err != nil {
		return model.User{}, model.Secret{}, err
	}

	s.logger.Info("user created", "user", user.Name, "admin", user.Admin)
	return user, model.NewSecret(user.ID + "." + secret), nil
}

// Authenticate resolves an API key to the principal it belongs to.
func (s *UserService) Authenticate(ctx context.Context, apiKey model.Secret) (model.Principal, error) {
	id, secret, ok := strings.Cut(apiKey.Reveal(), ".")
	if !ok || id == "" || secret == "" {
		return model.Anonymous, ErrUnauthenticated
	}

	user, hash, err := s.users.GetByID(ctx, id)
	if err != nil {
		return model.Anonymous, fmt.Errorf("look up api key owner: %w", err)
	}
	if user == nil {
		return model.Anonymous, ErrUnauthenticated
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return model.Anonymous, ErrUnauthenticated
	}

	return user.Principal(), nil
}

// List returns all users. Requires Administer.
func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	if err := CheckPermission(ctx, model.Administer); err != nil {
		return nil, err
	}
	return s.users.List(ctx)
}
