package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
	"github.com/ericfisherdev/gitlabpat/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.UserStore = (*UserRepo)(nil)

// UserRepo is the SQLite implementation of the UserStore port interface.
type UserRepo struct {
	db *DB
}

// NewUserRepo creates a new UserRepo backed by the given DB.
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create inserts a user with its API key hash. Returns driven.ErrUserExists
// if the name or ID is taken.
func (r *UserRepo) Create(ctx context.Context, user model.User, apiKeyHash string) error {
	const query = `INSERT INTO users (id, name, is_admin, api_key_hash, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.Writer.ExecContext(ctx, query, user.ID, user.Name, user.Admin, apiKeyHash, formatTime(user.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("create user %q: %w", user.Name, driven.ErrUserExists)
		}
		return fmt.Errorf("create user %q: %w", user.Name, err)
	}
	return nil
}

// GetByID returns the user and its API key hash, or (nil, "", nil) if absent.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, string, error) {
	const query = `SELECT id, name, is_admin, api_key_hash, created_at FROM users WHERE id = ?`

	var user model.User
	var hash, createdAt string
	err := r.db.Reader.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Name, &user.Admin, &hash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("get user %q: %w", id, err)
	}

	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, "", fmt.Errorf("parse created_at for user %q: %w", id, err)
	}
	return &user, hash, nil
}

// GetByName returns the user, or (nil, nil) if absent.
func (r *UserRepo) GetByName(ctx context.Context, name string) (*model.User, error) {
	const query = `SELECT id FROM users WHERE name = ?`

	var id string
	err := r.db.Reader.QueryRowContext(ctx, query, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by name %q: %w", name, err)
	}

	user, _, err := r.GetByID(ctx, id)
	return user, err
}

// List returns all users ordered by name.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	const query = `SELECT id, name, is_admin, created_at FROM users ORDER BY name`
	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		var user model.User
		var createdAt string
		if err := rows.Scan(&user.ID, &user.Name, &user.Admin, &createdAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if user.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for user %q: %w", user.Name, err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}
