package biometric_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkrasnove/lockbox/internal/biometric"
	"github.com/dkrasnove/lockbox/internal/config"
	"github.com/dkrasnove/lockbox/internal/events"
	"github.com/dkrasnove/lockbox/internal/keycache"
	"github.com/dkrasnove/lockbox/internal/models"
	"github.com/dkrasnove/lockbox/internal/store"
)

type gateFixture struct {
	gate     *biometric.Gate
	platform *biometric.MockPlatform
	gated    *biometric.MockGatedStore
	store    *store.MemStore
	cache    *keycache.Cache
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()

	platform := biometric.NewMockPlatform()
	gated := biometric.NewMockGatedStore(platform)
	st := store.NewMemStore()
	cache := keycache.New()

	cfg := config.BiometricConfig{ChallengeTimeout: time.Second}
	gate := biometric.NewGate(platform, gated, st, cache, cfg, events.Discard())

	return &gateFixture{
		gate:     gate,
		platform: platform,
		gated:    gated,
		store:    st,
		cache:    cache,
	}
}

func (f *gateFixture) login() {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	f.cache.Set(keycache.SessionKey, key)
}

func TestGate_Enable(t *testing.T) {
	t.Run("happy path stashes key and config", func(t *testing.T) {
		f := newGateFixture(t)
		f.login()

		require.NoError(t, f.gate.Enable(context.Background()))

		assert.True(t, f.gated.HasKey(store.KeyBiometricKey))
		assert.Equal(t, 1, f.platform.Challenges(), "one live confirmation")

		enabled, err := f.gate.Enabled()
		require.NoError(t, err)
		assert.True(t, enabled)
	})

	t.Run("fails without session key even with hardware", func(t *testing.T) {
		f := newGateFixture(t)

		err := f.gate.Enable(context.Background())
		assert.ErrorIs(t, err, models.ErrNoKeyAvailable)
		assert.False(t, f.gated.HasKey(store.KeyBiometricKey))
	})

	t.Run("fails without hardware", func(t *testing.T) {
		f := newGateFixture(t)
		f.login()
		f.platform.HasHardware = false

		err := f.gate.Enable(context.Background())
		assert.ErrorAs(t, err, new(*models.PlatformAuthError))
	})

	t.Run("fails without enrollment", func(t *testing.T) {
		f := newGateFixture(t)
		f.login()
		f.platform.HasEnrolled = false

		err := f.gate.Enable(context.Background())
		assert.ErrorAs(t, err, new(*models.PlatformAuthError))
	})

	t.Run("cancelled challenge leaves nothing stored", func(t *testing.T) {
		f := newGateFixture(t)
		f.login()
		f.platform.ChallengeErr = errors.New("user cancelled")

		err := f.gate.Enable(context.Background())
		assert.ErrorAs(t, err, new(*models.PlatformAuthError))
		assert.False(t, f.gated.HasKey(store.KeyBiometricKey))
		assert.Equal(t, 0, f.store.Len(), "no config record written")
	})
}

func TestGate_SingleInFlightOperation(t *testing.T) {
	f := newGateFixture(t)
	f.login()
	f.platform.Delay = 200 * time.Millisecond

	var wg sync.WaitGroup
	wg.Add(1)

	started := make(chan struct{})
	go func() {
		defer wg.Done()
		close(started)
		_ = f.gate.Enable(context.Background())
	}()

	<-started
	time.Sleep(50 * time.Millisecond) // let the first call claim the slot

	err := f.gate.Enable(context.Background())
	assert.ErrorIs(t, err, models.ErrBiometricBusy)

	wg.Wait()
}

func TestGate_RetrieveKey(t *testing.T) {
	t.Run("round-trips the stashed key", func(t *testing.T) {
		f := newGateFixture(t)
		f.login()
		require.NoError(t, f.gate.Enable(context.Background()))

		key, err := f.gate.RetrieveKey(context.Background())
		require.NoError(t, err)
		assert.Equal(t, f.cache.Get(keycache.SessionKey), key)
	})

	t.Run("records last use", func(t *testing.T) {
		f := newGateFixture(t)
		f.login()
		require.NoError(t, f.gate.Enable(context.Background()))

		used := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
		f.gate.SetClock(func() time.Time { return used })

		_, err := f.gate.RetrieveKey(context.Background())
		require.NoError(t, err)

		data, err := f.store.Get(store.KeyBiometricConfig)
		require.NoError(t, err)
		assert.Contains(t, string(data), "2026-08-30T09:00:00Z")
	})

	t.Run("disabled gate yields no key", func(t *testing.T) {
		f := newGateFixture(t)

		key, err := f.gate.RetrieveKey(context.Background())
		assert.ErrorIs(t, err, models.ErrBiometricDisabled)
		assert.Nil(t, key)
	})

	t.Run("failed challenge yields nil key, not a lockout", func(t *testing.T) {
		f := newGateFixture(t)
		f.login()
		require.NoError(t, f.gate.Enable(context.Background()))

		f.platform.ChallengeErr = errors.New("fingerprint mismatch")

		key, err := f.gate.RetrieveKey(context.Background())
		assert.ErrorAs(t, err, new(*models.PlatformAuthError))
		assert.Nil(t, key)

		// The guard's record key must stay untouched.
		_, err = f.store.Get(store.KeyLoginAttempts)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("slow challenge times out", func(t *testing.T) {
		f := newGateFixture(t)
		f.login()
		require.NoError(t, f.gate.Enable(context.Background()))

		f.platform.Delay = 5 * time.Second

		start := time.Now()
		key, err := f.gate.RetrieveKey(context.Background())
		assert.ErrorAs(t, err, new(*models.PlatformAuthError))
		assert.Nil(t, key)
		assert.Less(t, time.Since(start), 3*time.Second)
	})
}

func TestGate_Disable(t *testing.T) {
	f := newGateFixture(t)
	f.login()
	require.NoError(t, f.gate.Enable(context.Background()))

	require.NoError(t, f.gate.Disable())

	assert.False(t, f.gated.HasKey(store.KeyBiometricKey))

	enabled, err := f.gate.Enabled()
	require.NoError(t, err)
	assert.False(t, enabled)

	// Disabling twice is fine; deletion is idempotent.
	require.NoError(t, f.gate.Disable())
}
