package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
	"github.com/ericfisherdev/gitlabpat/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// Secrets are encrypted with AES-256-GCM before write and decrypted after read.
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
}

// NewCredentialRepo creates a new CredentialRepo. key must be 32 bytes for AES-256-GCM,
// or nil to disable credential storage (all operations will return driven.ErrEncryptionKeyNotSet).
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key}
}

const credentialColumns = `id, owner, domain_id, kind, scope, description, username, secret, created_at`

// CheckWritable returns driven.ErrEncryptionKeyNotSet when the repo has no key.
func (r *CredentialRepo) CheckWritable(_ context.Context) error {
	if r.key == nil {
		return driven.ErrEncryptionKeyNotSet
	}
	return nil
}

// Add inserts a new credential. IDs are unique across all stores.
func (r *CredentialRepo) Add(ctx context.Context, cred model.Credential) error {
	encrypted, err := r.encrypt(cred.Secret.Reveal())
	if err != nil {
		return err
	}

	var domainID sql.NullInt64
	if cred.DomainID != 0 {
		domainID = sql.NullInt64{Int64: cred.DomainID, Valid: true}
	}

	const query = `INSERT INTO credentials (` + credentialColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.Writer.ExecContext(ctx, query,
		cred.ID,
		cred.Owner,
		domainID,
		string(cred.Kind),
		string(cred.Scope),
		cred.Description,
		cred.Username,
		encrypted,
		formatTime(cred.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("add credential %q: %w", cred.ID, driven.ErrCredentialExists)
		}
		return fmt.Errorf("add credential %q: %w", cred.ID, err)
	}
	return nil
}

// Get retrieves a credential by ID within owner's store.
// Returns (nil, nil) if no credential exists there.
func (r *CredentialRepo) Get(ctx context.Context, owner, id string) (*model.Credential, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT ` + credentialColumns + ` FROM credentials WHERE owner = ? AND id = ?`
	cred, err := r.scanCredential(r.db.Reader.QueryRowContext(ctx, query, owner, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %q: %w", id, err)
	}
	return &cred, nil
}

// List returns every credential in owner's store with decrypted secrets.
func (r *CredentialRepo) List(ctx context.Context, owner string) ([]model.Credential, error) {
	const query = `SELECT ` + credentialColumns + ` FROM credentials WHERE owner = ? ORDER BY created_at, id`
	return r.query(ctx, query, owner)
}

// ListMatching returns owner's credentials of kind whose domain matches target.
func (r *CredentialRepo) ListMatching(ctx context.Context, owner string, kind model.CredentialKind, target *url.URL) ([]model.Credential, error) {
	const query = `SELECT ` + credentialColumns + ` FROM credentials WHERE owner = ? AND kind = ? ORDER BY created_at, id`
	creds, err := r.query(ctx, query, owner, string(kind))
	if err != nil {
		return nil, err
	}

	domains, err := loadDomains(ctx, r.db.Reader, owner)
	if err != nil {
		return nil, err
	}

	matching := make([]model.Credential, 0, len(creds))
	for _, cred := range creds {
		if cred.DomainID == 0 {
			matching = append(matching, cred)
			continue
		}
		d, ok := domains[cred.DomainID]
		if ok && d.Matches(target) {
			matching = append(matching, cred)
		}
	}
	return matching, nil
}

func (r *CredentialRepo) query(ctx context.Context, query string, args ...any) ([]model.Credential, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		cred, err := r.scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *CredentialRepo) scanCredential(row scanner) (model.Credential, error) {
	var (
		cred      model.Credential
		domainID  sql.NullInt64
		kind      string
		scope     string
		encrypted string
		createdAt string
	)
	if err := row.Scan(&cred.ID, &cred.Owner, &domainID, &kind, &scope, &cred.Description, &cred.Username, &encrypted, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cred, err
		}
		return cred, fmt.Errorf("scan credential: %w", err)
	}

	plaintext, err := r.decrypt(encrypted)
	if err != nil {
		return cred, fmt.Errorf("decrypt credential %q: %w", cred.ID, err)
	}

	cred.DomainID = domainID.Int64
	cred.Kind = model.CredentialKind(kind)
	cred.Scope = model.CredentialScope(scope)
	cred.Secret = model.NewSecret(plaintext)

	cred.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return cred, fmt.Errorf("parse created_at for credential %q: %w", cred.ID, err)
	}

	return cred, nil
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded string
// containing the nonce (12 bytes) prepended to the ciphertext.
func (r *CredentialRepo) encrypt(plaintext string) (string, error) {
	if r.key == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	gcm, err := r.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *CredentialRepo) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := r.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}

	return string(plaintext), nil
}

func (r *CredentialRepo) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(r.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
