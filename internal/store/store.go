// Package store provides the opaque secure key-value store the vault
// core persists its records in. Values are JSON-serializable byte
// payloads addressed by string key; callers treat the backend as a
// black box.
package store

import "errors"

// Well-known record keys.
const (
	KeyDerivedKeyInfo  = "derived_key_info"
	KeyVaultData       = "vault_data"
	KeyLoginAttempts   = "vault_login_attempts"
	KeyBiometricConfig = "vault_biometric_config"

	// KeyBiometricKey addresses the raw key bytes in the separate
	// biometric-gated store, never the general one.
	KeyBiometricKey = "vault_biometric_key"
)

// ErrNotFound is returned when no value exists for a key.
var ErrNotFound = errors.New("record not found")

// Store is a string-keyed secure key-value store.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Set writes the value for key, replacing any existing value.
	Set(key string, value []byte) error

	// Delete removes the value for key. Deleting a missing key is not
	// an error; deletion stays idempotent.
	Delete(key string) error
}
