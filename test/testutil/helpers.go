// Package testutil provides shared fixtures for integration tests.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkrasnove/lockbox/internal/biometric"
	"github.com/dkrasnove/lockbox/internal/config"
	"github.com/dkrasnove/lockbox/internal/crypto"
	"github.com/dkrasnove/lockbox/internal/events"
	"github.com/dkrasnove/lockbox/internal/guard"
	"github.com/dkrasnove/lockbox/internal/keycache"
	"github.com/dkrasnove/lockbox/internal/services/session"
	"github.com/dkrasnove/lockbox/internal/services/vault"
	"github.com/dkrasnove/lockbox/internal/store"
)

// TestIterations keeps PBKDF2 fast in tests.
const TestIterations = 1_000

// App wires every component of the core against a file-backed store in
// a temp directory, the same topology the binary builds.
type App struct {
	Store    store.Store
	Cache    *keycache.Cache
	Guard    *guard.Guard
	Platform *biometric.MockPlatform
	Gate     *biometric.Gate
	Session  *session.Service
	Vault    *vault.Repository

	clock time.Time
}

// NewApp builds a fully wired App rooted at t.TempDir().
func NewApp(t *testing.T) *App {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Crypto.Iterations = TestIterations
	cfg.Storage.DataDir = t.TempDir()

	logger := events.Discard()

	st, err := store.NewFileStore(cfg.Storage.DataDir, logger)
	require.NoError(t, err)

	cache := keycache.New()
	t.Cleanup(cache.Clear)

	provider := crypto.NewProvider(cfg.Crypto.Iterations)
	g := guard.New(st, cfg.Lockout, logger)

	platform := &biometric.MockPlatform{HasHardware: true, HasEnrolled: true}
	gate := biometric.NewGate(platform, biometric.NewMockGatedStore(platform), st, cache, cfg.Biometric, logger)

	app := &App{
		Store:    st,
		Cache:    cache,
		Guard:    g,
		Platform: platform,
		Gate:     gate,
		Session:  session.NewService(st, provider, cache, g, gate, cfg.Crypto, logger),
		Vault:    vault.NewRepository(st, provider, cache, cfg.Vault, logger),
		clock:    time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}
	app.syncClocks()
	return app
}

// Advance moves the shared test clock forward on every component that
// takes one.
func (a *App) Advance(d time.Duration) {
	a.clock = a.clock.Add(d)
	a.syncClocks()
}

func (a *App) syncClocks() {
	now := a.clock
	a.Guard.SetClock(func() time.Time { return now })
	a.Session.SetClock(func() time.Time { return now })
	a.Vault.SetClock(func() time.Time { return now })
	a.Gate.SetClock(func() time.Time { return now })
}
