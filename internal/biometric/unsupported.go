package biometric

import (
	"context"
	"errors"

	"github.com/dkrasnove/lockbox/internal/models"
)

var errUnsupported = errors.New("biometric hardware not supported on this platform")

// UnsupportedPlatform is the Platform used where no biometric
// integration exists. Every capability check fails, so the gate
// reports hardware absence instead of erroring deeper in.
type UnsupportedPlatform struct{}

func (UnsupportedPlatform) Available() bool { return false }

func (UnsupportedPlatform) Enrolled() bool { return false }

func (UnsupportedPlatform) Modality() models.BiometricType { return models.BiometricNone }

func (UnsupportedPlatform) Challenge(ctx context.Context, reason string) error {
	return errUnsupported
}

// UnsupportedGatedStore rejects every operation. It backs the gate on
// platforms without an OS-gated keystore.
type UnsupportedGatedStore struct{}

func (UnsupportedGatedStore) StoreKey(name string, key []byte) error { return errUnsupported }

func (UnsupportedGatedStore) RetrieveKey(ctx context.Context, name string) ([]byte, error) {
	return nil, errUnsupported
}

func (UnsupportedGatedStore) DeleteKey(name string) error { return nil }
