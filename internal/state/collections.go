// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package state

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/epheterson/zimi/internal/domain"
)

// Collections persists named archive-id sets at <data_dir>/collections.json
// (spec.md §3, §4.8): `{ name: [archive_id, ...] }`.
type Collections struct {
	path string

	mu   sync.RWMutex
	data map[string][]string
}

// NewCollections loads collections.json from dataDir, starting empty if it
// does not exist yet.
func NewCollections(dataDir string) (*Collections, error) {
	c := &Collections{
		path: filepath.Join(dataDir, "collections.json"),
		data: make(map[string][]string),
	}
	if _, err := ReadJSON(c.path, &c.data); err != nil {
		return nil, err
	}
	if c.data == nil {
		c.data = make(map[string][]string)
	}
	return c, nil
}

// List returns every collection name, sorted.
func (c *Collections) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.data))
	for name := range c.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the archive ids in a named collection.
func (c *Collections) Get(name string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids, ok := c.data[name]
	return ids, ok
}

// Set creates or replaces a named collection and persists it.
func (c *Collections) Set(name string, archiveIDs []string) error {
	c.mu.Lock()
	c.data[name] = archiveIDs
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	return WriteJSONAtomic(c.path, snapshot)
}

// Delete removes a named collection, if present, and persists the change.
func (c *Collections) Delete(name string) error {
	c.mu.Lock()
	if _, ok := c.data[name]; !ok {
		c.mu.Unlock()
		return domain.NewError(domain.ErrNotFound, "unknown collection: "+name, nil)
	}
	delete(c.data, name)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	return WriteJSONAtomic(c.path, snapshot)
}

func (c *Collections) snapshotLocked() map[string][]string {
	out := make(map[string][]string, len(c.data))
	for k, v := range c.data {
		out[k] = append([]string(nil), v...)
	}
	return out
}
