// Package session owns the login, setup, lock and reset transitions.
// On a successful login it populates the ephemeral key cache; nothing
// here ever persists the plaintext key.
package session

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkrasnove/lockbox/internal/biometric"
	"github.com/dkrasnove/lockbox/internal/config"
	"github.com/dkrasnove/lockbox/internal/crypto"
	"github.com/dkrasnove/lockbox/internal/events"
	"github.com/dkrasnove/lockbox/internal/guard"
	"github.com/dkrasnove/lockbox/internal/keycache"
	"github.com/dkrasnove/lockbox/internal/models"
	"github.com/dkrasnove/lockbox/internal/store"
)

// Service handles authentication operations. A single active session
// key at a time; no concurrent multi-account support.
type Service struct {
	store  store.Store
	crypto crypto.Provider
	cache  *keycache.Cache
	guard  *guard.Guard
	gate   *biometric.Gate // may be nil when no platform support exists
	cfg    config.CryptoConfig
	logger *events.Logger

	now func() time.Time
}

// NewService creates an authentication session service.
func NewService(st store.Store, provider crypto.Provider, cache *keycache.Cache, g *guard.Guard, gate *biometric.Gate, cfg config.CryptoConfig, logger *events.Logger) *Service {
	return &Service{
		store:  st,
		crypto: provider,
		cache:  cache,
		guard:  g,
		gate:   gate,
		cfg:    cfg,
		logger: logger.WithField("service", "session"),
		now:    time.Now,
	}
}

// SetClock overrides the time source for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// IsSetUp reports whether a credential record exists.
func (s *Service) IsSetUp() (bool, error) {
	_, err := s.loadRecord()
	if errors.Is(err, models.ErrNotSetUp) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LoggedIn reports whether a session key is active.
func (s *Service) LoggedIn() bool {
	return s.cache.Has(keycache.SessionKey)
}

// Setup creates the credential record and opens the first session.
// Key derivation is CPU-bound and deliberately slow; callers keep it
// off interaction-blocking paths.
func (s *Service) Setup(password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}

	if exists, err := s.IsSetUp(); err != nil {
		return err
	} else if exists {
		return models.ErrAlreadySetUp
	}

	salt, err := s.crypto.GenerateSalt()
	if err != nil {
		return err
	}

	key := s.crypto.DeriveKey(password, salt, s.cfg.Iterations, s.cfg.KeyLength)
	defer crypto.Wipe(key)

	record := models.DerivedKeyRecord{
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Hash:       base64.StdEncoding.EncodeToString(s.crypto.KeyVerifier(key)),
		Iterations: s.cfg.Iterations,
		CreatedAt:  s.now(),
	}

	if err := s.saveRecord(&record); err != nil {
		return err
	}

	s.cache.Set(keycache.SessionKey, key)

	if err := s.guard.Clear(); err != nil {
		s.logger.WithError(err).Warn("Failed to clear attempt record")
	}

	s.logger.Info("Vault initialized")
	return nil
}

// Login verifies the password against the credential record. The
// brute-force guard is consulted first; a wrong password records a
// failed attempt, success clears the history.
func (s *Service) Login(password string) error {
	if _, err := s.guard.Check(); err != nil {
		return err
	}

	record, err := s.loadRecord()
	if err != nil {
		return err
	}

	salt, err := record.SaltBytes()
	if err != nil {
		return err
	}

	storedHash, err := record.HashBytes()
	if err != nil {
		return err
	}

	key := s.crypto.DeriveKey(password, salt, record.Iterations, s.cfg.KeyLength)
	defer crypto.Wipe(key)

	verifier := s.crypto.KeyVerifier(key)
	defer crypto.Zero(verifier)

	if subtle.ConstantTimeCompare(verifier, storedHash) != 1 {
		if err := s.guard.RecordFailure(); err != nil {
			s.logger.WithError(err).Warn("Failed to record login attempt")
		}
		return models.ErrInvalidPassword
	}

	s.cache.Set(keycache.SessionKey, key)

	if err := s.guard.Clear(); err != nil {
		s.logger.WithError(err).Warn("Failed to clear attempt record")
	}

	s.logger.Info("Login successful")
	return nil
}

// LoginWithBiometric unlocks via the biometric-gated key. A failed or
// cancelled platform challenge surfaces as *models.PlatformAuthError
// and never counts against the brute-force guard; UX downgrades to
// password entry.
func (s *Service) LoginWithBiometric(ctx context.Context) error {
	if s.gate == nil {
		return models.ErrBiometricDisabled
	}

	record, err := s.loadRecord()
	if err != nil {
		return err
	}

	key, err := s.gate.RetrieveKey(ctx)
	if err != nil {
		return err
	}
	defer crypto.Wipe(key)

	storedHash, err := record.HashBytes()
	if err != nil {
		return err
	}

	verifier := s.crypto.KeyVerifier(key)
	defer crypto.Zero(verifier)

	// A stale gated key (password changed since enrollment) must not
	// open a session, and must not count as a password failure either.
	if subtle.ConstantTimeCompare(verifier, storedHash) != 1 {
		s.logger.Warn("Gated key does not match credential record")
		return &models.PlatformAuthError{Reason: "stored key is stale"}
	}

	s.cache.Set(keycache.SessionKey, key)

	if err := s.guard.Clear(); err != nil {
		s.logger.WithError(err).Warn("Failed to clear attempt record")
	}

	s.logger.Info("Biometric login successful")
	return nil
}

// Logout wipes the session key from memory.
func (s *Service) Logout() {
	s.cache.Clear()
	s.logger.Info("Logged out")
}

// Lock is semantically identical to Logout; it exists as a distinct
// call site for auto-lock timers.
func (s *Service) Lock() {
	s.cache.Clear()
	s.logger.Info("Vault locked")
}

// ResetApp wipes every persisted record plus the session key. Each
// deletion is attempted regardless of earlier failures so a partial
// reset still destroys as much as possible.
func (s *Service) ResetApp() error {
	s.cache.Clear()

	var firstErr error
	for _, key := range []string{
		store.KeyDerivedKeyInfo,
		store.KeyVaultData,
		store.KeyLoginAttempts,
		store.KeyBiometricConfig,
	} {
		if err := s.store.Delete(key); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("Failed to delete record")
			if firstErr == nil {
				firstErr = &models.StorageError{Op: "delete", Key: key, Err: err}
			}
		}
	}

	if s.gate != nil {
		if err := s.gate.Disable(); err != nil && !errors.Is(err, models.ErrBiometricBusy) {
			s.logger.WithError(err).Warn("Failed to disable biometric unlock")
		}
	}

	s.logger.Info("Application reset")
	return firstErr
}

// MigrateIterations re-derives the credential record under a new
// iteration count. The password is verified first; reencrypt is then
// called with the old and new keys so stored items can be carried
// over before the record is replaced.
func (s *Service) MigrateIterations(password string, iterations uint32, reencrypt func(oldKey, newKey []byte) error) error {
	if iterations == 0 {
		return &models.ValidationError{Field: "iterations", Reason: "must be positive"}
	}

	record, err := s.loadRecord()
	if err != nil {
		return err
	}

	salt, err := record.SaltBytes()
	if err != nil {
		return err
	}

	storedHash, err := record.HashBytes()
	if err != nil {
		return err
	}

	oldKey := s.crypto.DeriveKey(password, salt, record.Iterations, s.cfg.KeyLength)
	defer crypto.Wipe(oldKey)

	verifier := s.crypto.KeyVerifier(oldKey)
	defer crypto.Zero(verifier)

	if subtle.ConstantTimeCompare(verifier, storedHash) != 1 {
		return models.ErrInvalidPassword
	}

	newSalt, err := s.crypto.GenerateSalt()
	if err != nil {
		return err
	}

	newKey := s.crypto.DeriveKey(password, newSalt, iterations, s.cfg.KeyLength)
	defer crypto.Wipe(newKey)

	if reencrypt != nil {
		if err := reencrypt(oldKey, newKey); err != nil {
			return err
		}
	}

	newRecord := models.DerivedKeyRecord{
		Salt:       base64.StdEncoding.EncodeToString(newSalt),
		Hash:       base64.StdEncoding.EncodeToString(s.crypto.KeyVerifier(newKey)),
		Iterations: iterations,
		CreatedAt:  record.CreatedAt,
	}

	if err := s.saveRecord(&newRecord); err != nil {
		return err
	}

	if s.LoggedIn() {
		s.cache.Set(keycache.SessionKey, newKey)
	}

	s.logger.WithField("iterations", iterations).Info("Credential record migrated")
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return &models.ValidationError{Field: "password", Reason: "must not be empty"}
	}
	return nil
}

func (s *Service) loadRecord() (*models.DerivedKeyRecord, error) {
	data, err := s.store.Get(store.KeyDerivedKeyInfo)
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.ErrNotSetUp
	}
	if err != nil {
		return nil, &models.StorageError{Op: "get", Key: store.KeyDerivedKeyInfo, Err: err}
	}

	var record models.DerivedKeyRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, &models.StorageError{Op: "get", Key: store.KeyDerivedKeyInfo, Err: err}
	}

	if err := record.Validate(); err != nil {
		return nil, &models.StorageError{Op: "get", Key: store.KeyDerivedKeyInfo, Err: err}
	}

	return &record, nil
}

func (s *Service) saveRecord(record *models.DerivedKeyRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	if err := s.store.Set(store.KeyDerivedKeyInfo, data); err != nil {
		return &models.StorageError{Op: "set", Key: store.KeyDerivedKeyInfo, Err: err}
	}
	return nil
}
