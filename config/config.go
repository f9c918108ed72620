// Package config loads and validates printerbus settings from TOML.
//
// Settings come from defaults, then the config file, then environment
// fallbacks (DBUS_SYSTEM_BUS_ADDRESS for the bus address). Durations are
// stored as integer milliseconds and exposed as time.Duration helpers.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Bus configures the broker connection.
type Bus struct {
	Address       string `toml:"address"`
	CallTimeoutMS int    `toml:"call_timeout_ms"`
	SignalBuffer  int    `toml:"signal_buffer"`
}

// Printer identifies the printer service object.
type Printer struct {
	Service         string `toml:"service"`
	Path            string `toml:"path"`
	Interface       string `toml:"interface"`
	MetadataCacheMS int    `toml:"metadata_cache_ms"`
}

// Poll configures the signal pump cadence.
type Poll struct {
	IntervalMS int `toml:"interval_ms"`
}

// Logging configures the process logger.
type Logging struct {
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	NoColor bool   `toml:"no_color"`
}

// Config is the full settings tree.
type Config struct {
	Bus     Bus     `toml:"bus"`
	Printer Printer `toml:"printer"`
	Poll    Poll    `toml:"poll"`
	Logging Logging `toml:"logging"`
}

func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Bus.CallTimeoutMS) * time.Millisecond
}

func (c *Config) MetadataTTL() time.Duration {
	return time.Duration(c.Printer.MetadataCacheMS) * time.Millisecond
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalMS) * time.Millisecond
}

// DefaultConfigPath returns the per-user config location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load reads the config at path (or the default locations when path is
// empty), applies environment fallbacks, normalizes and validates it. It
// returns the resolved path and whether a file was found there.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	if exists {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return nil, "", false, err
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

// Parse decodes TOML into cfg, rejecting unknown keys.
func Parse(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config: %s", strict.String())
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{defaultPath, systemConfigPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

// CreateSample writes the defaults as a TOML file, refusing to overwrite.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config: %s already exists", expanded)
	}
	data, err := toml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encode sample config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, data, 0o644)
}

func expandPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", nil
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}
