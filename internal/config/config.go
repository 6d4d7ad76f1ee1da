// Package config loads the whalescope configuration and owns the credential
// files in the private application-data directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Service ServiceConfig `toml:"service"`
	Runtime RuntimeConfig `toml:"runtime"`
	Storage StorageConfig `toml:"storage"`
	Log     LogConfig     `toml:"log"`
}

type ServerConfig struct {
	Port int `toml:"port"`
}

type ServiceConfig struct {
	// BaseURL is the fixed local address the analytics service listens on.
	BaseURL string `toml:"base_url"`
	// Script is the service's entry script, resolved like any other worker.
	Script string `toml:"script"`
}

type RuntimeConfig struct {
	// Packaged selects the packaged resource layout instead of the
	// development tree. Decided once at startup.
	Packaged bool `toml:"packaged"`
	// Root is the layout root: the repository root in development, the
	// resource bundle root when packaged. Empty means the current directory.
	Root string `toml:"root"`
}

type StorageConfig struct {
	DataDir string `toml:"data_dir"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 5100},
		Service: ServiceConfig{BaseURL: "http://127.0.0.1:5001", Script: "analytics_service.py"},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "whalescope")
	}
	return ".whalescope"
}

// Load reads <dataDir>/config.toml (a missing file is fine: defaults apply)
// and then applies WHALESCOPE_* environment overrides.
func Load() (Config, error) {
	return loadFromPath(filepath.Join(defaultDataDir(), "config.toml"))
}

func loadFromPath(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	} else if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if cfg.Runtime.Root == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.Runtime.Root = wd
		} else {
			cfg.Runtime.Root = "."
		}
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("WHALESCOPE_SERVER_PORT"); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil {
			cfg.Server.Port = port
		} else {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from WHALESCOPE_SERVER_PORT=%q: %v. Using default value.\n", raw, err)
		}
	}
	if v := os.Getenv("WHALESCOPE_SERVICE_BASE_URL"); v != "" {
		cfg.Service.BaseURL = v
	}
	if v := os.Getenv("WHALESCOPE_SERVICE_SCRIPT"); v != "" {
		cfg.Service.Script = v
	}
	if raw := os.Getenv("WHALESCOPE_PACKAGED"); raw != "" {
		if packaged, err := strconv.ParseBool(raw); err == nil {
			cfg.Runtime.Packaged = packaged
		} else {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from WHALESCOPE_PACKAGED=%q: %v. Using default value.\n", raw, err)
		}
	}
	if v := os.Getenv("WHALESCOPE_ROOT"); v != "" {
		cfg.Runtime.Root = v
	}
	if v := os.Getenv("WHALESCOPE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("WHALESCOPE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// DebugLogging reports whether the configured log level asks for debug output.
func (c Config) DebugLogging() bool {
	return strings.EqualFold(c.Log.Level, "debug")
}
