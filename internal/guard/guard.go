// Package guard implements the brute-force login gate: a persisted
// attempt counter with progressive backoff and a timed lockout.
package guard

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dkrasnove/lockbox/internal/config"
	"github.com/dkrasnove/lockbox/internal/events"
	"github.com/dkrasnove/lockbox/internal/models"
	"github.com/dkrasnove/lockbox/internal/store"
)

// Guard gates login attempts. The persisted record is read-modify-
// written without optimistic concurrency; a single foreground caller
// is assumed.
type Guard struct {
	store  store.Store
	cfg    config.LockoutConfig
	logger *events.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a guard over the given store.
func New(st store.Store, cfg config.LockoutConfig, logger *events.Logger) *Guard {
	return &Guard{
		store:  st,
		cfg:    cfg,
		logger: logger.WithField("component", "guard"),
		now:    time.Now,
	}
}

// SetClock overrides the time source for tests.
func (g *Guard) SetClock(now func() time.Time) {
	g.now = now
}

// Check reports whether a login attempt may proceed. A nil error means
// allowed; remaining is the number of attempts left before lockout.
// Denials surface as *models.LockoutError or *models.BackoffError.
func (g *Guard) Check() (remaining uint32, err error) {
	now := g.now()

	rec, err := g.load()
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return g.cfg.Threshold, nil
	}

	// The reset window wipes history unconditionally, even during an
	// active lockout.
	if now.Sub(rec.FirstAttemptAt) > g.cfg.ResetWindow {
		if err := g.store.Delete(store.KeyLoginAttempts); err != nil {
			g.logger.WithError(err).Warn("Failed to clear expired attempt record")
		}
		return g.cfg.Threshold, nil
	}

	if rec.Locked(now) {
		return 0, &models.LockoutError{Remaining: rec.LockedUntil.Sub(now)}
	}

	// An elapsed lockout clears itself but keeps the count.
	if rec.LockedUntil != nil {
		rec.LockedUntil = nil
		if err := g.save(rec); err != nil {
			return 0, err
		}
	}

	if wait := g.backoff(rec.Count); wait > 0 {
		elapsed := now.Sub(rec.LastAttemptAt)
		if elapsed < wait {
			return 0, &models.BackoffError{Remaining: wait - elapsed}
		}
	}

	left := uint32(0)
	if rec.Count < g.cfg.Threshold {
		left = g.cfg.Threshold - rec.Count
	}
	return left, nil
}

// RecordFailure registers a failed login attempt, locking the account
// once the threshold is reached.
func (g *Guard) RecordFailure() error {
	now := g.now()

	rec, err := g.load()
	if err != nil {
		return err
	}

	if rec == nil || now.Sub(rec.FirstAttemptAt) > g.cfg.ResetWindow {
		rec = &models.AttemptRecord{
			Count:          1,
			FirstAttemptAt: now,
			LastAttemptAt:  now,
		}
	} else {
		rec.Count++
		rec.LastAttemptAt = now

		if rec.Count >= g.cfg.Threshold {
			until := now.Add(g.cfg.Duration)
			rec.LockedUntil = &until

			g.logger.WithFields(map[string]interface{}{
				"count":        rec.Count,
				"locked_until": until.Format(time.RFC3339),
			}).Warn("Login locked out")
		}
	}

	return g.save(rec)
}

// Clear deletes the attempt record entirely. Called on successful login.
func (g *Guard) Clear() error {
	return g.store.Delete(store.KeyLoginAttempts)
}

// backoff computes the required delay before attempt count+1:
// min(cap, base * 2^(count-2)) for count > 1, else zero.
func (g *Guard) backoff(count uint32) time.Duration {
	if count <= 1 {
		return 0
	}

	wait := g.cfg.BackoffBase
	for i := uint32(2); i < count; i++ {
		wait *= 2
		if wait >= g.cfg.BackoffCap {
			return g.cfg.BackoffCap
		}
	}

	if wait > g.cfg.BackoffCap {
		wait = g.cfg.BackoffCap
	}
	return wait
}

// load reads the persisted record; nil means a clean state.
func (g *Guard) load() (*models.AttemptRecord, error) {
	data, err := g.store.Get(store.KeyLoginAttempts)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &models.StorageError{Op: "get", Key: store.KeyLoginAttempts, Err: err}
	}

	var rec models.AttemptRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// A corrupt record must not brick login forever; treat it as
		// clean and let the next failure rewrite it.
		g.logger.WithError(err).Warn("Discarding corrupt attempt record")
		return nil, nil
	}

	return &rec, nil
}

func (g *Guard) save(rec *models.AttemptRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	if err := g.store.Set(store.KeyLoginAttempts, data); err != nil {
		return &models.StorageError{Op: "set", Key: store.KeyLoginAttempts, Err: err}
	}
	return nil
}
