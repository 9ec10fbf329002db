package biometric

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dkrasnove/lockbox/internal/config"
	"github.com/dkrasnove/lockbox/internal/crypto"
	"github.com/dkrasnove/lockbox/internal/events"
	"github.com/dkrasnove/lockbox/internal/keycache"
	"github.com/dkrasnove/lockbox/internal/models"
	"github.com/dkrasnove/lockbox/internal/store"
)

// Gate coordinates biometric enrollment of the session key. All
// operations share a single in-flight slot: a second call while one is
// pending is rejected immediately, not queued.
type Gate struct {
	platform Platform
	gated    GatedStore
	store    store.Store
	cache    *keycache.Cache
	cfg      config.BiometricConfig
	logger   *events.Logger

	busy atomic.Bool
	now  func() time.Time
}

// NewGate creates a biometric gate.
func NewGate(platform Platform, gated GatedStore, st store.Store, cache *keycache.Cache, cfg config.BiometricConfig, logger *events.Logger) *Gate {
	return &Gate{
		platform: platform,
		gated:    gated,
		store:    st,
		cache:    cache,
		cfg:      cfg,
		logger:   logger.WithField("component", "biometric_gate"),
		now:      time.Now,
	}
}

// SetClock overrides the time source for tests.
func (g *Gate) SetClock(now func() time.Time) {
	g.now = now
}

// Enable stashes the current session key in the biometric-gated store.
// Requires hardware, enrollment, an active session key, and one live
// challenge as confirmation.
func (g *Gate) Enable(ctx context.Context) error {
	if !g.busy.CompareAndSwap(false, true) {
		return models.ErrBiometricBusy
	}
	defer g.busy.Store(false)

	if !g.platform.Available() {
		return &models.PlatformAuthError{Reason: "no biometric hardware"}
	}

	if !g.platform.Enrolled() {
		return &models.PlatformAuthError{Reason: "no biometric enrolled"}
	}

	key := g.cache.Get(keycache.SessionKey)
	if key == nil {
		return models.ErrNoKeyAvailable
	}
	defer crypto.Wipe(key)

	if err := g.challenge(ctx, "Confirm enabling biometric unlock"); err != nil {
		return err
	}

	if err := g.gated.StoreKey(store.KeyBiometricKey, key); err != nil {
		return &models.StorageError{Op: "set", Key: store.KeyBiometricKey, Err: err}
	}

	cfg := models.BiometricConfig{
		Enabled: true,
		Type:    g.platform.Modality(),
	}
	if err := g.saveConfig(&cfg); err != nil {
		// Roll back the stashed key rather than leave the two records
		// disagreeing.
		_ = g.gated.DeleteKey(store.KeyBiometricKey)
		return err
	}

	g.logger.WithField("type", string(cfg.Type)).Info("Biometric unlock enabled")
	return nil
}

// RetrieveKey reads the session key back through the OS-gated store.
// A failed or cancelled challenge returns a nil key with a
// *models.PlatformAuthError; it never touches the brute-force guard.
func (g *Gate) RetrieveKey(ctx context.Context) ([]byte, error) {
	if !g.busy.CompareAndSwap(false, true) {
		return nil, models.ErrBiometricBusy
	}
	defer g.busy.Store(false)

	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil || !cfg.Enabled {
		return nil, models.ErrBiometricDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.ChallengeTimeout)
	defer cancel()

	key, err := g.retrieve(ctx)
	if err != nil {
		var authErr *models.PlatformAuthError
		if errors.As(err, &authErr) {
			g.logger.WithError(err).Debug("Biometric challenge failed")
			return nil, err
		}
		return nil, err
	}

	used := g.now()
	cfg.LastUsed = &used
	if err := g.saveConfig(cfg); err != nil {
		g.logger.WithError(err).Warn("Failed to record biometric use")
	}

	return key, nil
}

// Disable deletes both the gated key and the config record. Deletion
// is idempotent; storage failures on this path are swallowed.
func (g *Gate) Disable() error {
	if !g.busy.CompareAndSwap(false, true) {
		return models.ErrBiometricBusy
	}
	defer g.busy.Store(false)

	if err := g.gated.DeleteKey(store.KeyBiometricKey); err != nil {
		g.logger.WithError(err).Warn("Failed to delete gated key")
	}

	if err := g.store.Delete(store.KeyBiometricConfig); err != nil {
		g.logger.WithError(err).Warn("Failed to delete biometric config")
	}

	g.logger.Info("Biometric unlock disabled")
	return nil
}

// Enabled reports the persisted biometric state.
func (g *Gate) Enabled() (bool, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return false, err
	}
	return cfg != nil && cfg.Enabled, nil
}

// challenge races the platform prompt against the configured timeout.
// An abandoned prompt keeps running until the platform resolves it;
// the gate just stops waiting.
func (g *Gate) challenge(ctx context.Context, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ChallengeTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.platform.Challenge(ctx, reason)
	}()

	select {
	case err := <-done:
		if err != nil {
			return &models.PlatformAuthError{Reason: "challenge failed", Err: err}
		}
		return nil
	case <-ctx.Done():
		return &models.PlatformAuthError{Reason: "challenge timed out", Err: ctx.Err()}
	}
}

// retrieve races the gated read against ctx.
func (g *Gate) retrieve(ctx context.Context) ([]byte, error) {
	type result struct {
		key []byte
		err error
	}

	done := make(chan result, 1)
	go func() {
		key, err := g.gated.RetrieveKey(ctx, store.KeyBiometricKey)
		done <- result{key, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, &models.PlatformAuthError{Reason: "gated read failed", Err: res.err}
		}
		return res.key, nil
	case <-ctx.Done():
		return nil, &models.PlatformAuthError{Reason: "challenge timed out", Err: ctx.Err()}
	}
}

func (g *Gate) loadConfig() (*models.BiometricConfig, error) {
	data, err := g.store.Get(store.KeyBiometricConfig)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &models.StorageError{Op: "get", Key: store.KeyBiometricConfig, Err: err}
	}

	var cfg models.BiometricConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &models.StorageError{Op: "get", Key: store.KeyBiometricConfig, Err: err}
	}

	return &cfg, nil
}

func (g *Gate) saveConfig(cfg *models.BiometricConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	if err := g.store.Set(store.KeyBiometricConfig, data); err != nil {
		return &models.StorageError{Op: "set", Key: store.KeyBiometricConfig, Err: err}
	}
	return nil
}
