// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package state

import (
	"path/filepath"
	"time"
)

// ArchiveCacheEntry is one row of the cache.json metadata snapshot (spec.md
// §4.8), keyed implicitly by Path+Size+ModTime (see Lookup). The archive
// registry does not load or save this snapshot: it reads each archive's
// Dublin Core metadata from the .zim file every time it opens it.
type ArchiveCacheEntry struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Language  string    `json:"language"`
	Category  string    `json:"category"`
	Publisher string    `json:"publisher"`
	SizeBytes int64     `json:"sizeBytes"`
	ModTime   time.Time `json:"modTime"`
}

// Cache persists the last known archive metadata snapshot at
// <data_dir>/cache.json (spec.md §4.8).
type Cache struct {
	path string
}

// NewCache returns a Cache rooted at dataDir.
func NewCache(dataDir string) *Cache {
	return &Cache{path: filepath.Join(dataDir, "cache.json")}
}

// Load reads the last persisted snapshot, returning an empty slice if none
// exists yet.
func (c *Cache) Load() ([]ArchiveCacheEntry, error) {
	var entries []ArchiveCacheEntry
	if _, err := ReadJSON(c.path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Save atomically overwrites the snapshot.
func (c *Cache) Save(entries []ArchiveCacheEntry) error {
	return WriteJSONAtomic(c.path, entries)
}

// Lookup finds the cached entry matching path+size+modTime, the fingerprint
// spec.md §4.8 uses to decide whether Dublin Core metadata needs rereading.
func Lookup(entries []ArchiveCacheEntry, path string, size int64, modTime time.Time) (ArchiveCacheEntry, bool) {
	for _, e := range entries {
		if e.Path == path && e.SizeBytes == size && e.ModTime.Equal(modTime) {
			return e, true
		}
	}
	return ArchiveCacheEntry{}, false
}
