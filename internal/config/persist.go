// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var logSettingKeyPattern = map[string]*regexp.Regexp{
	"logPath":       regexp.MustCompile(`(?m)^#?\s*logPath\s*=.*$`),
	"logMaxSize":    regexp.MustCompile(`(?m)^#?\s*logMaxSize\s*=.*$`),
	"logMaxBackups": regexp.MustCompile(`(?m)^#?\s*logMaxBackups\s*=.*$`),
	"logLevel":      regexp.MustCompile(`(?m)^#?\s*logLevel\s*=.*$`),
}

// UpdateLogSettings rewrites the log-related keys in the on-disk config.toml
// in place, so a runtime change survives restarts without disturbing
// comments or unrelated sections.
func (c *AppConfig) UpdateLogSettings(level, path string, maxSize, maxBackups int) error {
	data, err := os.ReadFile(c.configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	updated := updateLogSettingsInTOML(string(data), level, path, maxSize, maxBackups)

	if err := os.WriteFile(c.configPath, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	c.Config.LogLevel = level
	c.Config.LogPath = path
	c.Config.LogMaxSize = maxSize
	c.Config.LogMaxBackups = maxBackups
	return nil
}

// updateLogSettingsInTOML replaces (or appends, if absent entirely) the four
// log settings keys within an existing config.toml's text, preferring to
// update a commented-out placeholder line in place over appending a new
// section, so hand-written comments/ordering in the file survive.
func updateLogSettingsInTOML(content, level, path string, maxSize, maxBackups int) string {
	values := map[string]string{
		"logPath":       fmt.Sprintf("logPath = %q", path),
		"logMaxSize":    fmt.Sprintf("logMaxSize = %d", maxSize),
		"logMaxBackups": fmt.Sprintf("logMaxBackups = %d", maxBackups),
		"logLevel":      fmt.Sprintf("logLevel = %q", level),
	}

	missing := make([]string, 0, len(values))

	for _, key := range []string{"logPath", "logMaxSize", "logMaxBackups", "logLevel"} {
		pattern := logSettingKeyPattern[key]
		if pattern.MatchString(content) {
			content = pattern.ReplaceAllString(content, values[key])
		} else {
			missing = append(missing, key)
		}
	}

	if len(missing) == 0 {
		return content
	}

	var b strings.Builder
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n# Log settings\n")
	for _, key := range missing {
		b.WriteString(values[key])
		b.WriteString("\n")
	}
	return b.String()
}
