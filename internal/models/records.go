package models

import (
	"encoding/base64"
	"fmt"
	"time"
)

// DerivedKeyRecord is the persisted credential record created at setup.
// It never contains the plaintext password; Hash is the KDF output for
// the password under Salt and Iterations.
type DerivedKeyRecord struct {
	Salt       string    `json:"salt"` // Base64 encoded
	Hash       string    `json:"hash"` // Base64 encoded
	Iterations uint32    `json:"iterations"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the record is structurally usable for login.
func (r *DerivedKeyRecord) Validate() error {
	salt, err := base64.StdEncoding.DecodeString(r.Salt)
	if err != nil {
		return fmt.Errorf("decode salt: %w", err)
	}
	if len(salt) == 0 {
		return fmt.Errorf("salt is required")
	}

	hash, err := base64.StdEncoding.DecodeString(r.Hash)
	if err != nil {
		return fmt.Errorf("decode hash: %w", err)
	}
	if len(hash) == 0 {
		return fmt.Errorf("hash is required")
	}

	if r.Iterations == 0 {
		return fmt.Errorf("iterations must be positive")
	}

	return nil
}

// SaltBytes decodes the stored salt.
func (r *DerivedKeyRecord) SaltBytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(r.Salt)
}

// HashBytes decodes the stored key hash.
func (r *DerivedKeyRecord) HashBytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(r.Hash)
}

// AttemptRecord is the Brute-Force Guard's persisted state.
type AttemptRecord struct {
	Count          uint32     `json:"count"`
	FirstAttemptAt time.Time  `json:"first_attempt_at"`
	LastAttemptAt  time.Time  `json:"last_attempt_at"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
}

// Locked reports whether a lockout is active at the given instant.
func (r *AttemptRecord) Locked(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// BiometricType identifies the enrolled biometric modality.
type BiometricType string

const (
	BiometricFingerprint BiometricType = "fingerprint"
	BiometricFace        BiometricType = "face"
	BiometricIris        BiometricType = "iris"
	BiometricNone        BiometricType = "none"
)

// BiometricConfig is the non-sensitive biometric record. The key bytes
// themselves live only in the platform's biometric-gated store.
type BiometricConfig struct {
	Enabled  bool          `json:"enabled"`
	Type     BiometricType `json:"type"`
	LastUsed *time.Time    `json:"last_used,omitempty"`
}
