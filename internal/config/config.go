package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Key derivation and encryption parameters
	Crypto CryptoConfig `json:"crypto" mapstructure:"crypto"`

	// Login throttling
	Lockout LockoutConfig `json:"lockout" mapstructure:"lockout"`

	// Biometric unlock
	Biometric BiometricConfig `json:"biometric" mapstructure:"biometric"`

	// Vault content limits
	Vault VaultConfig `json:"vault" mapstructure:"vault"`

	// Storage backend
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`
}

// CryptoConfig holds KDF and cipher parameters. These are compile-time
// style constants surfaced through config; they are not negotiated at
// runtime, and changing Iterations on an existing vault requires the
// credential migration path.
type CryptoConfig struct {
	Iterations uint32 `json:"iterations" mapstructure:"iterations"`
	SaltLength int    `json:"salt_length" mapstructure:"salt_length"`
	KeyLength  int    `json:"key_length" mapstructure:"key_length"`
}

// LockoutConfig for the Brute-Force Guard.
type LockoutConfig struct {
	Threshold   uint32        `json:"threshold" mapstructure:"threshold"`         // failed attempts before lockout
	Duration    time.Duration `json:"duration" mapstructure:"duration"`           // lockout length
	BackoffCap  time.Duration `json:"backoff_cap" mapstructure:"backoff_cap"`     // max inter-attempt delay
	BackoffBase time.Duration `json:"backoff_base" mapstructure:"backoff_base"`   // first doubling step
	ResetWindow time.Duration `json:"reset_window" mapstructure:"reset_window"`   // history wipe window
}

// BiometricConfig for the biometric key gate.
type BiometricConfig struct {
	ChallengeTimeout time.Duration `json:"challenge_timeout" mapstructure:"challenge_timeout"`
}

// VaultConfig for item validation limits.
type VaultConfig struct {
	MaxNameLength  int   `json:"max_name_length" mapstructure:"max_name_length"`
	MaxContentSize int64 `json:"max_content_size" mapstructure:"max_content_size"`
}

// StorageConfig selects and locates the secure store backend.
type StorageConfig struct {
	Backend string `json:"backend" mapstructure:"backend"` // file, sqlite
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
	File   string `json:"file" mapstructure:"file"`     // log file path (empty = stderr)
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".lockbox"

	return &Config{
		Crypto: CryptoConfig{
			Iterations: 150_000,
			SaltLength: 16,
			KeyLength:  32,
		},
		Lockout: LockoutConfig{
			Threshold:   5,
			Duration:    5 * time.Minute,
			BackoffCap:  30 * time.Second,
			BackoffBase: time.Second,
			ResetWindow: 30 * time.Minute,
		},
		Biometric: BiometricConfig{
			ChallengeTimeout: 30 * time.Second,
		},
		Vault: VaultConfig{
			MaxNameLength:  256,
			MaxContentSize: 10 * 1024 * 1024, // 10 MiB
		},
		Storage: StorageConfig{
			Backend: "file",
			DataDir: dataDir,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Crypto.Iterations < 1 {
		return errors.New("crypto.iterations must be positive")
	}

	if c.Crypto.SaltLength < 8 {
		return errors.New("crypto.salt_length must be at least 8 bytes")
	}

	if c.Crypto.KeyLength != 32 {
		return errors.New("crypto.key_length must be 32 bytes")
	}

	if c.Lockout.Threshold < 1 {
		return errors.New("lockout.threshold must be positive")
	}

	if c.Lockout.Duration <= 0 {
		return errors.New("lockout.duration must be positive")
	}

	if c.Lockout.BackoffCap <= 0 || c.Lockout.BackoffBase <= 0 {
		return errors.New("lockout backoff settings must be positive")
	}

	if c.Lockout.ResetWindow <= c.Lockout.Duration {
		return errors.New("lockout.reset_window must exceed lockout.duration")
	}

	if c.Biometric.ChallengeTimeout <= 0 {
		return errors.New("biometric.challenge_timeout must be positive")
	}

	if c.Vault.MaxNameLength < 1 {
		return errors.New("vault.max_name_length must be positive")
	}

	if c.Vault.MaxContentSize < 1 {
		return errors.New("vault.max_content_size must be positive")
	}

	switch c.Storage.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("storage.backend must be file or sqlite, got %q", c.Storage.Backend)
	}

	if c.Storage.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// DatabasePath returns the sqlite file location under the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Storage.DataDir, "lockbox.db")
}
