// Package biometric wraps the platform's biometric-gated key storage.
// The key is stashed behind an OS-enforced challenge at read time; a
// cancelled or failed challenge yields no key and is never counted
// against the brute-force guard.
package biometric

import (
	"context"

	"github.com/dkrasnove/lockbox/internal/models"
)

// Platform abstracts the device biometric capability checks and the
// live confirmation challenge.
type Platform interface {
	// Available reports whether biometric hardware exists.
	Available() bool

	// Enrolled reports whether at least one biometric is enrolled.
	Enrolled() bool

	// Modality returns the enrolled biometric type.
	Modality() models.BiometricType

	// Challenge runs one live biometric confirmation. It blocks until
	// the user completes, cancels, or fails the prompt, or ctx ends.
	Challenge(ctx context.Context, reason string) error
}

// GatedStore is the platform store whose read path itself enforces a
// biometric challenge at the OS boundary, distinct from the gate's own
// confirmation step at enable time.
type GatedStore interface {
	// StoreKey writes key bytes under name.
	StoreKey(name string, key []byte) error

	// RetrieveKey returns the key bytes for name after a successful
	// platform challenge.
	RetrieveKey(ctx context.Context, name string) ([]byte, error)

	// DeleteKey removes the key bytes for name. Missing keys are not
	// an error.
	DeleteKey(name string) error
}
