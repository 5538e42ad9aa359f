// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package state

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// legacyFiles are the flat files an older zimi wrote directly under the
// archive directory, before data_dir was split out (spec.md §4.8: "legacy
// paths ... are migrated on first run").
var legacyFiles = []string{"cache.json", "password", "collections.json", "history.json"}

// MigrateLegacyLayout copies any legacy flat state files found at
// archiveDir's root into dataDir, leaving the originals in place (so a
// downgrade isn't destructive), but only when dataDir does not already
// have that file. Runs once at startup before the registry scan.
func MigrateLegacyLayout(archiveDir, dataDir string) error {
	if archiveDir == dataDir {
		return nil
	}

	for _, name := range legacyFiles {
		src := filepath.Join(archiveDir, name)
		dst := filepath.Join(dataDir, name)

		if _, err := os.Stat(dst); err == nil {
			continue // already migrated
		}

		data, err := os.ReadFile(src)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("read legacy %s: %w", name, err)
		}

		perm := os.FileMode(0o644)
		if name == "password" {
			perm = 0o600
		}
		if err := WriteFileAtomic(dst, data, perm); err != nil {
			return fmt.Errorf("migrate legacy %s: %w", name, err)
		}
		log.Info().Str("file", name).Msg("migrated legacy state file to data_dir")
	}

	return nil
}
