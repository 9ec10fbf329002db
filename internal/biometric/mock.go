package biometric

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkrasnove/lockbox/internal/models"
)

// MockPlatform is a controllable Platform for tests.
type MockPlatform struct {
	mu sync.Mutex

	HasHardware  bool
	HasEnrolled  bool
	Type         models.BiometricType
	ChallengeErr error
	Delay        time.Duration

	challenges int
}

// NewMockPlatform returns a platform with fingerprint hardware and an
// enrollment, whose challenges succeed.
func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		HasHardware: true,
		HasEnrolled: true,
		Type:        models.BiometricFingerprint,
	}
}

func (m *MockPlatform) Available() bool { return m.HasHardware }

func (m *MockPlatform) Enrolled() bool { return m.HasEnrolled }

func (m *MockPlatform) Modality() models.BiometricType { return m.Type }

func (m *MockPlatform) Challenge(ctx context.Context, reason string) error {
	m.mu.Lock()
	m.challenges++
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return m.ChallengeErr
}

// Challenges reports how many prompts were shown.
func (m *MockPlatform) Challenges() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.challenges
}

// MockGatedStore is an in-memory GatedStore whose reads run a
// challenge on the linked platform, mirroring the OS boundary.
type MockGatedStore struct {
	mu       sync.Mutex
	platform *MockPlatform
	keys     map[string][]byte
}

// NewMockGatedStore creates a gated store bound to platform.
func NewMockGatedStore(platform *MockPlatform) *MockGatedStore {
	return &MockGatedStore{
		platform: platform,
		keys:     make(map[string][]byte),
	}
}

func (m *MockGatedStore) StoreKey(name string, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(key))
	copy(stored, key)
	m.keys[name] = stored
	return nil
}

func (m *MockGatedStore) RetrieveKey(ctx context.Context, name string) ([]byte, error) {
	if err := m.platform.Challenge(ctx, "Unlock vault"); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.keys[name]
	if !ok {
		return nil, errors.New("no gated key stored")
	}

	out := make([]byte, len(key))
	copy(out, key)
	return out, nil
}

func (m *MockGatedStore) DeleteKey(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.keys, name)
	return nil
}

// HasKey reports whether a key is stashed under name.
func (m *MockGatedStore) HasKey(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.keys[name]
	return ok
}
