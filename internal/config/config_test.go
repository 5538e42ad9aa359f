// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabasePathConfiguration(t *testing.T) {
	tests := []struct {
		name           string
		configContent  string
		envVar         string
		expectedInPath string
	}{
		{
			name: "default_next_to_config",
			configContent: `
host = "localhost"
port = 8384
archiveDir = "/data/archives"`,
			expectedInPath: "zimi.db",
		},
		{
			name: "explicit_data_dir",
			configContent: `
host = "localhost"
port = 8384
archiveDir = "/data/archives"
dataDir = "/custom/state"`,
			expectedInPath: filepath.Join("/custom/state", "zimi.db"),
		},
		{
			name: "env_var_override",
			configContent: `
host = "localhost"
port = 8384
archiveDir = "/data/archives"
dataDir = "/config/state"`,
			envVar:         "/env/state",
			expectedInPath: filepath.Join("/env/state", "zimi.db"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.toml")
			err := os.WriteFile(configPath, []byte(tt.configContent), 0644)
			require.NoError(t, err)

			if tt.envVar != "" {
				os.Setenv("ZIMI__DATADIR", tt.envVar)
				defer os.Unsetenv("ZIMI__DATADIR")
			}

			cfg, err := New(configPath)
			require.NoError(t, err)

			dbPath := cfg.GetDatabasePath()
			if filepath.IsAbs(tt.expectedInPath) {
				assert.Equal(t, tt.expectedInPath, dbPath)
			} else {
				assert.Contains(t, dbPath, tt.expectedInPath)
			}
		})
	}
}

func TestBackwardCompatibility(t *testing.T) {
	// Ensure a config.toml without an explicit dataDir still works.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	configContent := `
host = "localhost"
port = 8384
archiveDir = "/data/archives"`

	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := New(configPath)
	require.NoError(t, err)

	// Database should be next to config (default behavior).
	dbPath := cfg.GetDatabasePath()
	expectedPath := filepath.Join(tmpDir, "zimi.db")
	assert.Equal(t, expectedPath, dbPath)
}

func TestEnvironmentVariablePrecedence(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	configContent := `
host = "localhost"
port = 8384
archiveDir = "/data/archives"
dataDir = "/config/file/state"`

	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	os.Setenv("ZIMI__DATADIR", "/env/var/state")
	defer os.Unsetenv("ZIMI__DATADIR")

	cfg, err := New(configPath)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/env/var/state", "zimi.db"), cfg.GetDatabasePath())
}

func TestDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	cfg, err := New(configPath)
	require.NoError(t, err)

	assert.Equal(t, defaultHost, cfg.Config.Host)
	assert.Equal(t, defaultPort, cfg.Config.Port)
	assert.Equal(t, defaultRateLimit, cfg.Config.RateLimit)
	assert.Equal(t, defaultLogLevel, cfg.Config.LogLevel)
	assert.True(t, cfg.Config.ManageEnabled)
	assert.False(t, cfg.Config.AutoUpdate)
}
