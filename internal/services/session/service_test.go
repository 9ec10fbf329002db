package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkrasnove/lockbox/internal/biometric"
	"github.com/dkrasnove/lockbox/internal/config"
	"github.com/dkrasnove/lockbox/internal/crypto"
	"github.com/dkrasnove/lockbox/internal/events"
	"github.com/dkrasnove/lockbox/internal/guard"
	"github.com/dkrasnove/lockbox/internal/keycache"
	"github.com/dkrasnove/lockbox/internal/models"
	"github.com/dkrasnove/lockbox/internal/services/session"
	"github.com/dkrasnove/lockbox/internal/store"
)

const testIterations = 1000

type fixture struct {
	session  *session.Service
	store    *store.MemStore
	cache    *keycache.Cache
	guard    *guard.Guard
	gate     *biometric.Gate
	platform *biometric.MockPlatform
	clock    *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := store.NewMemStore()
	cache := keycache.New()
	logger := events.Discard()

	cryptoCfg := config.CryptoConfig{
		Iterations: testIterations,
		SaltLength: 16,
		KeyLength:  32,
	}
	lockoutCfg := config.LockoutConfig{
		Threshold:   5,
		Duration:    5 * time.Minute,
		BackoffCap:  30 * time.Second,
		BackoffBase: time.Second,
		ResetWindow: 30 * time.Minute,
	}

	provider := crypto.NewProvider(testIterations)
	g := guard.New(st, lockoutCfg, logger)

	platform := biometric.NewMockPlatform()
	gated := biometric.NewMockGatedStore(platform)
	gate := biometric.NewGate(platform, gated, st, cache, config.BiometricConfig{ChallengeTimeout: time.Second}, logger)

	svc := session.NewService(st, provider, cache, g, gate, cryptoCfg, logger)

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	clock := &now
	tick := func() time.Time { return *clock }
	svc.SetClock(tick)
	g.SetClock(tick)

	return &fixture{
		session:  svc,
		store:    st,
		cache:    cache,
		guard:    g,
		gate:     gate,
		platform: platform,
		clock:    clock,
	}
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func TestService_Setup(t *testing.T) {
	t.Run("creates credential record and opens a session", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.session.Setup("master-pw"))

		ok, err := f.session.IsSetUp()
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, f.session.LoggedIn())

		// The record must hold a verifier, never the key.
		data, err := f.store.Get(store.KeyDerivedKeyInfo)
		require.NoError(t, err)
		key := f.cache.Get(keycache.SessionKey)
		assert.NotContains(t, string(data), string(key))
	})

	t.Run("rejects empty password", func(t *testing.T) {
		f := newFixture(t)

		err := f.session.Setup("")
		assert.ErrorAs(t, err, new(*models.ValidationError))
	})

	t.Run("rejects double setup", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.session.Setup("master-pw"))
		err := f.session.Setup("other-pw")
		assert.ErrorIs(t, err, models.ErrAlreadySetUp)
	})
}

func TestService_Login(t *testing.T) {
	t.Run("correct password opens a session", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.session.Setup("master-pw"))
		f.session.Lock()

		require.NoError(t, f.session.Login("master-pw"))
		assert.True(t, f.session.LoggedIn())
	})

	t.Run("wrong password records an attempt", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.session.Setup("master-pw"))
		f.session.Lock()

		err := f.session.Login("wrong")
		assert.ErrorIs(t, err, models.ErrInvalidPassword)
		assert.False(t, f.session.LoggedIn())

		_, err = f.store.Get(store.KeyLoginAttempts)
		assert.NoError(t, err, "failed attempt must be persisted")
	})

	t.Run("successful login clears attempt history", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.session.Setup("master-pw"))
		f.session.Lock()

		_ = f.session.Login("wrong")
		f.advance(2 * time.Second)

		require.NoError(t, f.session.Login("master-pw"))

		_, err := f.store.Get(store.KeyLoginAttempts)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("five failures lock the account", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.session.Setup("master-pw"))
		f.session.Lock()

		for i := 0; i < 5; i++ {
			_ = f.session.Login("wrong")
			f.advance(time.Minute)
		}

		err := f.session.Login("master-pw")
		var lockErr *models.LockoutError
		assert.ErrorAs(t, err, &lockErr)
		assert.False(t, f.session.LoggedIn())
	})

	t.Run("backoff denies rapid retries", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.session.Setup("master-pw"))
		f.session.Lock()

		_ = f.session.Login("wrong")
		f.advance(2 * time.Second)
		_ = f.session.Login("wrong")

		// Second failure demands a 1s wait; retry instantly.
		err := f.session.Login("master-pw")
		assert.ErrorAs(t, err, new(*models.BackoffError))
	})

	t.Run("without setup", func(t *testing.T) {
		f := newFixture(t)

		err := f.session.Login("anything")
		assert.ErrorIs(t, err, models.ErrNotSetUp)
	})
}

func TestService_LockAndLogout(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Setup("master-pw"))

	f.session.Lock()
	assert.False(t, f.session.LoggedIn())

	require.NoError(t, f.session.Login("master-pw"))
	f.session.Logout()
	assert.False(t, f.session.LoggedIn())
	assert.Nil(t, f.cache.Get(keycache.SessionKey))
}

func TestService_LoginWithBiometric(t *testing.T) {
	t.Run("gated key opens a session", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.session.Setup("master-pw"))
		require.NoError(t, f.gate.Enable(context.Background()))
		f.session.Lock()

		require.NoError(t, f.session.LoginWithBiometric(context.Background()))
		assert.True(t, f.session.LoggedIn())
	})

	t.Run("failed challenge never touches the guard", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.session.Setup("master-pw"))
		require.NoError(t, f.gate.Enable(context.Background()))
		f.session.Lock()

		f.platform.ChallengeErr = assert.AnError

		err := f.session.LoginWithBiometric(context.Background())
		assert.ErrorAs(t, err, new(*models.PlatformAuthError))
		assert.False(t, f.session.LoggedIn())

		_, err = f.store.Get(store.KeyLoginAttempts)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("stale gated key is rejected without a guard hit", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.session.Setup("master-pw"))
		require.NoError(t, f.gate.Enable(context.Background()))

		// Change the password out from under the enrollment.
		require.NoError(t, f.session.MigrateIterations("master-pw", testIterations+1, nil))
		f.session.Lock()

		err := f.session.LoginWithBiometric(context.Background())
		assert.ErrorAs(t, err, new(*models.PlatformAuthError))
		assert.False(t, f.session.LoggedIn())

		_, err = f.store.Get(store.KeyLoginAttempts)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestService_ResetApp(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Setup("master-pw"))
	require.NoError(t, f.gate.Enable(context.Background()))
	require.NoError(t, f.store.Set(store.KeyVaultData, []byte(`{"items":[]}`)))

	require.NoError(t, f.session.ResetApp())

	assert.False(t, f.session.LoggedIn())
	for _, key := range []string{
		store.KeyDerivedKeyInfo,
		store.KeyVaultData,
		store.KeyLoginAttempts,
		store.KeyBiometricConfig,
	} {
		_, err := f.store.Get(key)
		assert.ErrorIs(t, err, store.ErrNotFound, "record %s must be gone", key)
	}

	ok, err := f.session.IsSetUp()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_MigrateIterations(t *testing.T) {
	t.Run("re-derives the record and keeps the session usable", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.session.Setup("master-pw"))

		var gotOld, gotNew []byte
		reencrypt := func(oldKey, newKey []byte) error {
			gotOld = append([]byte(nil), oldKey...)
			gotNew = append([]byte(nil), newKey...)
			return nil
		}

		require.NoError(t, f.session.MigrateIterations("master-pw", testIterations*2, reencrypt))

		assert.NotEmpty(t, gotOld)
		assert.NotEmpty(t, gotNew)
		assert.NotEqual(t, gotOld, gotNew)

		// Login still works with the same password under the new count.
		f.session.Lock()
		require.NoError(t, f.session.Login("master-pw"))
	})

	t.Run("wrong password is rejected before reencryption", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.session.Setup("master-pw"))

		called := false
		err := f.session.MigrateIterations("wrong", testIterations*2, func(_, _ []byte) error {
			called = true
			return nil
		})

		assert.ErrorIs(t, err, models.ErrInvalidPassword)
		assert.False(t, called)
	})
}
