// Package config reads and writes the project config in .prep/config.json
// and resolves which shared backend a project talks to.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/prep/internal/models"
)

// DirName is the per-project state directory.
const DirName = ".prep"

const configFile = ".prep/config.json"
const lockFile = ".prep/config.json.lock"

// DefaultPollInterval is used when the config names none or an invalid one.
const DefaultPollInterval = time.Second

// Environment overrides.
const (
	EnvBackend = "PREP_BACKEND"
	EnvDSN     = "PREP_DSN"
	EnvURL     = "PREP_URL"
)

// Dir returns the state directory under baseDir.
func Dir(baseDir string) string {
	return filepath.Join(baseDir, DirName)
}

// Load reads the config from disk
func Load(baseDir string) (*models.Config, error) {
	configPath := filepath.Join(baseDir, configFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &models.Config{}, nil
		}
		return nil, err
	}

	var cfg models.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configFile, err)
	}

	return &cfg, nil
}

// Save writes the config to disk using atomic write (temp file + rename)
func Save(baseDir string, cfg *models.Config) error {
	configPath := filepath.Join(baseDir, configFile)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: temp file in same dir, then rename
	tmp, err := os.CreateTemp(dir, "config-*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, configPath)
}

// withConfigLock serializes access to config.json using flock
func withConfigLock(baseDir string, fn func() error) error {
	lockPath := filepath.Join(baseDir, lockFile)

	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return err
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	return fn()
}

// Update runs a locked read-modify-write of the config.
func Update(baseDir string, fn func(*models.Config) error) error {
	return withConfigLock(baseDir, func() error {
		cfg, err := Load(baseDir)
		if err != nil {
			return err
		}
		if err := fn(cfg); err != nil {
			return err
		}
		return Save(baseDir, cfg)
	})
}

// Resolve loads the config and applies defaults and environment
// overrides. The result is not written back.
func Resolve(baseDir string) (*models.Config, error) {
	cfg, err := Load(baseDir)
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	if cfg.Backend.Driver == "" {
		cfg.Backend.Driver = models.DriverSQLite
	}
	cfg.Backend.Driver = strings.ToLower(cfg.Backend.Driver)
	if cfg.Backend.Driver == models.DriverSQLite && cfg.Backend.DSN == "" {
		cfg.Backend.DSN = filepath.Join(Dir(baseDir), "shared.db")
	}
	return cfg, Validate(cfg)
}

// ApplyEnv overlays PREP_BACKEND, PREP_DSN and PREP_URL.
func ApplyEnv(cfg *models.Config) {
	if v := os.Getenv(EnvBackend); v != "" {
		cfg.Backend.Driver = v
	}
	if v := os.Getenv(EnvDSN); v != "" {
		cfg.Backend.DSN = v
	}
	if v := os.Getenv(EnvURL); v != "" {
		cfg.Backend.URL = v
	}
}

// Validate checks that the backend settings are usable.
func Validate(cfg *models.Config) error {
	switch cfg.Backend.Driver {
	case models.DriverSQLite, models.DriverMemory:
	case models.DriverPostgres:
		if cfg.Backend.DSN == "" {
			return fmt.Errorf("backend %s needs a dsn", cfg.Backend.Driver)
		}
	case models.DriverRemote:
		if cfg.Backend.URL == "" {
			return fmt.Errorf("backend %s needs a url", cfg.Backend.Driver)
		}
	default:
		return fmt.Errorf("unknown backend %q (want sqlite, postgres, remote or memory)", cfg.Backend.Driver)
	}
	if cfg.Backend.PollInterval != "" {
		if _, err := time.ParseDuration(cfg.Backend.PollInterval); err != nil {
			return fmt.Errorf("invalid poll_interval %q: %w", cfg.Backend.PollInterval, err)
		}
	}
	return nil
}

// PollInterval returns the configured interval or DefaultPollInterval.
func PollInterval(b models.BackendConfig) time.Duration {
	d, err := time.ParseDuration(b.PollInterval)
	if err != nil || d <= 0 {
		return DefaultPollInterval
	}
	return d
}

// SetBackend replaces the backend section.
func SetBackend(baseDir string, b models.BackendConfig) error {
	return Update(baseDir, func(cfg *models.Config) error {
		cfg.Backend = b
		return nil
	})
}

// SetWebhook replaces the webhook section. A nil w removes it.
func SetWebhook(baseDir string, w *models.WebhookConfig) error {
	return Update(baseDir, func(cfg *models.Config) error {
		cfg.Webhook = w
		return nil
	})
}

// DeviceID returns this project's device id, creating one on first use.
func DeviceID(baseDir string) (string, error) {
	var id string
	err := Update(baseDir, func(cfg *models.Config) error {
		if cfg.DeviceID == "" {
			cfg.DeviceID = uuid.NewString()
		}
		id = cfg.DeviceID
		return nil
	})
	return id, err
}
