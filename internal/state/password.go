// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// PasswordFile persists the argon2id-hashed management password at
// <data_dir>/password (spec.md §4.8), implementing auth.PasswordStore.
type PasswordFile struct {
	path string
}

// NewPasswordFile returns a PasswordFile rooted at dataDir.
func NewPasswordFile(dataDir string) *PasswordFile {
	return &PasswordFile{path: filepath.Join(dataDir, "password")}
}

// Load reads the stored hash. A missing or empty file means no password is
// set; that is not an error.
func (p *PasswordFile) Load() (hash string, ok bool, err error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read password file: %w", err)
	}
	if len(data) == 0 {
		return "", false, nil
	}
	return string(data), true, nil
}

// Save persists hash atomically. Saving an empty string clears the file,
// disabling auth.
func (p *PasswordFile) Save(hash string) error {
	if hash == "" {
		err := os.Remove(p.path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove password file: %w", err)
		}
		return nil
	}
	return WriteFileAtomic(p.path, []byte(hash), 0o600)
}
