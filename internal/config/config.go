// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
)

const secretKeyBytes = 32

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr       string
	DBPath           string
	DefaultServerURL string
	HTTPTimeout      time.Duration
	TokenLifetime    time.Duration
	VerifyTokens     bool

	// SecretKey is the AES-256 key for credential secrets. Nil when
	// GITLABPAT_SECRET_KEY is unset; credential storage then fails with
	// driven.ErrEncryptionKeyNotSet.
	SecretKey []byte
}

// HasSecretKey reports whether credential storage can encrypt secrets.
func (c *Config) HasSecretKey() bool {
	return len(c.SecretKey) == secretKeyBytes
}

// Load reads configuration from environment variables and returns a validated Config.
// All variables are optional. Defaults: GITLABPAT_LISTEN_ADDR (127.0.0.1:8080),
// GITLABPAT_DB_PATH (gitlabpat.db), GITLABPAT_DEFAULT_SERVER_URL (https://gitlab.com),
// GITLABPAT_HTTP_TIMEOUT (30s), GITLABPAT_TOKEN_LIFETIME (8736h, 0 for no expiry),
// GITLABPAT_VERIFY_TOKENS (true). GITLABPAT_SECRET_KEY must be 64 hex characters.
func Load() (*Config, error) {
	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("GITLABPAT_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "gitlabpat.db"
	if v, ok := os.LookupEnv("GITLABPAT_DB_PATH"); ok {
		dbPath = v
	}

	serverURL := model.DefaultServerURL
	if v, ok := os.LookupEnv("GITLABPAT_DEFAULT_SERVER_URL"); ok && v != "" {
		if _, err := model.ParseServerURL(v); err != nil {
			return nil, fmt.Errorf("GITLABPAT_DEFAULT_SERVER_URL: %w", err)
		}
		serverURL = v
	}

	httpTimeout, err := durationEnv("GITLABPAT_HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	if httpTimeout <= 0 {
		return nil, fmt.Errorf("GITLABPAT_HTTP_TIMEOUT must be positive, got %s", httpTimeout)
	}

	tokenLifetime, err := durationEnv("GITLABPAT_TOKEN_LIFETIME", 8736*time.Hour)
	if err != nil {
		return nil, err
	}
	if tokenLifetime < 0 {
		return nil, fmt.Errorf("GITLABPAT_TOKEN_LIFETIME must not be negative, got %s", tokenLifetime)
	}

	verify := true
	if v, ok := os.LookupEnv("GITLABPAT_VERIFY_TOKENS"); ok && v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("GITLABPAT_VERIFY_TOKENS has invalid boolean %q: %w", v, err)
		}
		verify = parsed
	}

	var secretKey []byte
	if v, ok := os.LookupEnv("GITLABPAT_SECRET_KEY"); ok && v != "" {
		key, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("GITLABPAT_SECRET_KEY must be hex encoded: %w", err)
		}
		if len(key) != secretKeyBytes {
			return nil, fmt.Errorf("GITLABPAT_SECRET_KEY must be %d hex characters, got %d", secretKeyBytes*2, len(v))
		}
		secretKey = key
	}

	return &Config{
		ListenAddr:       listenAddr,
		DBPath:           dbPath,
		DefaultServerURL: serverURL,
		HTTPTimeout:      httpTimeout,
		TokenLifetime:    tokenLifetime,
		VerifyTokens:     verify,
		SecretKey:        secretKey,
	}, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	return parsed, nil
}
