package patterndir

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/patternstore/pkg/recordstore"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	configFileName = "config.yaml"
	envPrefix      = "PATTERNS_"
)

// Corrupt policy names accepted in configuration.
const (
	policyReset = "reset"
	policyFail  = "fail"
)

// Config holds directory-wide store settings, overridable per store.
type Config struct {
	// CorruptPolicy is "reset" (recover to the default document) or
	// "fail" (surface ErrCorruptDocument).
	CorruptPolicy string `koanf:"corrupt_policy"`

	// CorruptBackup preserves invalid content in a sidecar before a
	// reset discards it.
	CorruptBackup bool `koanf:"corrupt_backup"`

	// LockTimeout bounds advisory lock acquisition.
	LockTimeout time.Duration `koanf:"lock_timeout"`

	// MaxRecords is the directory-wide cap hint for list-shaped stores.
	// Callers pass it to AppendRecord; the store does not enforce it on
	// its own.
	MaxRecords int `koanf:"max_records"`

	// Stores holds per-store overrides, keyed by store name.
	Stores map[string]StoreConfig `koanf:"stores"`
}

// StoreConfig overrides directory-wide settings for one named store.
// Zero values inherit from the directory.
type StoreConfig struct {
	CorruptPolicy string        `koanf:"corrupt_policy"`
	LockTimeout   time.Duration `koanf:"lock_timeout"`
	MaxRecords    int           `koanf:"max_records"`
}

// LoadConfig loads configuration for the pattern directory at base:
// <base>/config.yaml if present, then PATTERNS_* environment overrides,
// then defaults for anything still unset.
func LoadConfig(base string) (*Config, error) {
	k := koanf.New(".")

	configPath := filepath.Join(base, configFileName)
	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate via the descriptor to avoid a TOCTOU
		// race between the check and the read.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment overrides: PATTERNS_CORRUPT_POLICY -> corrupt_policy.
	// Only top-level fields are addressable from the environment.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// True default for a boolean: only an explicit "corrupt_backup: false"
	// disables backups.
	if !k.Exists("corrupt_backup") {
		cfg.CorruptBackup = true
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// validateConfigFileProperties checks size and permission bits. Unlike a
// credentials file, a pattern-directory config holds no secrets, so group
// and world reads are fine; world-writable files are still rejected.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		if info.Mode().Perm()&0o002 != 0 {
			return fmt.Errorf("config file is world-writable: %v", info.Mode().Perm())
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.CorruptPolicy == "" {
		cfg.CorruptPolicy = policyReset
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 10 * time.Second
	}
	if cfg.MaxRecords == 0 {
		cfg.MaxRecords = 1000
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if err := validatePolicy(c.CorruptPolicy); err != nil {
		return err
	}
	if c.LockTimeout < 0 {
		return fmt.Errorf("lock_timeout cannot be negative: %s", c.LockTimeout)
	}
	if c.MaxRecords < 0 {
		return fmt.Errorf("max_records cannot be negative: %d", c.MaxRecords)
	}
	for name, sc := range c.Stores {
		if sc.CorruptPolicy != "" {
			if err := validatePolicy(sc.CorruptPolicy); err != nil {
				return fmt.Errorf("store %q: %w", name, err)
			}
		}
		if sc.LockTimeout < 0 {
			return fmt.Errorf("store %q: lock_timeout cannot be negative: %s", name, sc.LockTimeout)
		}
		if sc.MaxRecords < 0 {
			return fmt.Errorf("store %q: max_records cannot be negative: %d", name, sc.MaxRecords)
		}
	}
	return nil
}

func validatePolicy(p string) error {
	if p != policyReset && p != policyFail {
		return fmt.Errorf("corrupt_policy must be %q or %q, got %q", policyReset, policyFail, p)
	}
	return nil
}

// policyFor resolves the effective corrupt policy for a named store.
func (c *Config) policyFor(name string) recordstore.CorruptPolicy {
	p := c.CorruptPolicy
	if sc, ok := c.Stores[name]; ok && sc.CorruptPolicy != "" {
		p = sc.CorruptPolicy
	}
	if p == policyFail {
		return recordstore.CorruptFail
	}
	return recordstore.CorruptReset
}

// lockTimeoutFor resolves the effective lock timeout for a named store.
func (c *Config) lockTimeoutFor(name string) time.Duration {
	if sc, ok := c.Stores[name]; ok && sc.LockTimeout != 0 {
		return sc.LockTimeout
	}
	return c.LockTimeout
}

// MaxRecordsFor resolves the record cap hint for a named store.
func (c *Config) MaxRecordsFor(name string) int {
	if sc, ok := c.Stores[name]; ok && sc.MaxRecords != 0 {
		return sc.MaxRecords
	}
	return c.MaxRecords
}
