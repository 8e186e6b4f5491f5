package model

import (
	"encoding/json"
	"log/slog"
)

const redacted = "******"

// Secret holds a password or token. Every formatting path (fmt, slog, JSON)
// renders it redacted; only Reveal exposes the plaintext.
type Secret struct {
	value string
}

// NewSecret wraps a plaintext value.
func NewSecret(plaintext string) Secret {
	return Secret{value: plaintext}
}

// Reveal returns the plaintext. Callers must not log or persist the result
// outside the encrypted store.
func (s Secret) Reveal() string {
	return s.value
}

// IsEmpty reports whether the secret has no value.
func (s Secret) IsEmpty() bool {
	return s.value == ""
}

// String implements fmt.Stringer.
func (s Secret) String() string {
	return redacted
}

// GoString implements fmt.GoStringer so %#v does not leak the value either.
func (s Secret) GoString() string {
	return redacted
}

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// MarshalJSON implements json.Marshaler.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(redacted)
}
