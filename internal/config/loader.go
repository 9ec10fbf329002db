package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from file and environment.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty configPath searches the
// default locations.
func NewLoader(configPath string) *Loader {
	v := viper.New()
	v.SetEnvPrefix("LOCKBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{
		configPath: configPath,
		v:          v,
	}
}

// Load reads configuration from file and environment, layered over
// defaults, then validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	l.setDefaults(cfg)

	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
	} else {
		l.v.SetConfigName("lockbox")
		l.v.SetConfigType("json")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "lockbox"))
			l.v.AddConfigPath(filepath.Join(home, ".lockbox"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// No config file is fine; defaults plus env apply.
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers defaults with viper so env overrides bind even
// when no config file exists.
func (l *Loader) setDefaults(cfg *Config) {
	l.v.SetDefault("crypto.iterations", cfg.Crypto.Iterations)
	l.v.SetDefault("crypto.salt_length", cfg.Crypto.SaltLength)
	l.v.SetDefault("crypto.key_length", cfg.Crypto.KeyLength)

	l.v.SetDefault("lockout.threshold", cfg.Lockout.Threshold)
	l.v.SetDefault("lockout.duration", cfg.Lockout.Duration)
	l.v.SetDefault("lockout.backoff_cap", cfg.Lockout.BackoffCap)
	l.v.SetDefault("lockout.backoff_base", cfg.Lockout.BackoffBase)
	l.v.SetDefault("lockout.reset_window", cfg.Lockout.ResetWindow)

	l.v.SetDefault("biometric.challenge_timeout", cfg.Biometric.ChallengeTimeout)

	l.v.SetDefault("vault.max_name_length", cfg.Vault.MaxNameLength)
	l.v.SetDefault("vault.max_content_size", cfg.Vault.MaxContentSize)

	l.v.SetDefault("storage.backend", cfg.Storage.Backend)
	l.v.SetDefault("storage.data_dir", cfg.Storage.DataDir)

	l.v.SetDefault("log.level", cfg.Log.Level)
	l.v.SetDefault("log.format", cfg.Log.Format)
	l.v.SetDefault("log.file", cfg.Log.File)
}
