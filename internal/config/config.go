// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: MIT

// Package config loads zimi's config.toml, applying ZIMI__-prefixed
// environment variable overrides on top of file values and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/epheterson/zimi/internal/domain"
)

const (
	defaultHost           = "0.0.0.0"
	defaultPort           = 8384
	defaultRateLimit      = 120
	defaultLogLevel       = "INFO"
	defaultLogMaxSize     = 50
	defaultLogMaxBackups  = 3
	defaultAutoUpdateFreq = "weekly"
)

// AppConfig wraps the loaded domain.Config together with the path it was
// loaded from, so callers can rewrite the file in place (see persist.go).
type AppConfig struct {
	Config     *domain.Config
	configPath string
}

// New loads configuration from configPath, creating it with defaults if it
// does not exist, then applies ZIMI__ environment variable overrides.
func New(configPath string) (*AppConfig, error) {
	if err := ensureConfigFile(configPath); err != nil {
		return nil, fmt.Errorf("ensure config file: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	v.SetDefault("host", defaultHost)
	v.SetDefault("port", defaultPort)
	v.SetDefault("rateLimit", defaultRateLimit)
	v.SetDefault("logLevel", defaultLogLevel)
	v.SetDefault("logMaxSize", defaultLogMaxSize)
	v.SetDefault("logMaxBackups", defaultLogMaxBackups)
	v.SetDefault("autoUpdateFreq", defaultAutoUpdateFreq)
	v.SetDefault("manageEnabled", true)
	v.SetDefault("autoUpdate", false)
	v.SetDefault("archiveDir", filepath.Join(filepath.Dir(configPath), "archives"))
	v.SetDefault("dataDir", filepath.Dir(configPath))

	// A trailing underscore on the prefix plus viper's own "_" joiner yields
	// the double-underscore ZIMI__KEY convention (e.g. ZIMI__DATADIR).
	v.SetEnvPrefix("ZIMI_")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg domain.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(configPath)
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = filepath.Join(cfg.DataDir, "archives")
	}

	return &AppConfig{Config: &cfg, configPath: configPath}, nil
}

// ensureConfigFile writes a commented, default config.toml if none exists yet.
func ensureConfigFile(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return err
	}

	log.Info().Str("path", configPath).Msg("writing default config.toml")
	return os.WriteFile(configPath, []byte(defaultConfigTemplate), 0o644)
}

// GetDatabasePath returns the path to the title-index SQLite database,
// defaulting to zimi.db alongside the other persisted state in DataDir.
func (c *AppConfig) GetDatabasePath() string {
	if c.Config.DataDir != "" {
		return filepath.Join(c.Config.DataDir, "zimi.db")
	}
	return filepath.Join(filepath.Dir(c.configPath), "zimi.db")
}

const defaultConfigTemplate = `# config.toml - Auto-generated on first run

# Address to bind the HTTP server to.
host = "0.0.0.0"

# Port to listen on.
port = 8384

# Directory scanned for .zim archive files.
#archiveDir = "/data/archives"

# Directory for the title index, caches, and other persisted state.
#dataDir = "/data/zimi"

# Public base URL, set when running behind a reverse proxy subpath.
#baseUrl = ""

# Shared password required for /manage endpoints. Empty disables auth.
#managePassword = ""

# Requests per minute allowed per client for unauthenticated endpoints.
rateLimit = 120

# Log level
# Default: "INFO"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
logLevel = "INFO"

# Log file path
# If not defined, logs to stdout
# Optional
#logPath = "log/zimi.log"

# Log rotation
# Maximum log file size in megabytes before rotation
# Default: 50
#logMaxSize = 50

# Number of rotated log files to retain (0 keeps all)
# Default: 3
#logMaxBackups = 3

# Periodically check configured catalogs for newer archive versions.
autoUpdate = false

# Cadence for the auto-update check: "daily", "weekly", or "monthly".
autoUpdateFreq = "weekly"
`
