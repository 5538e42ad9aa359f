// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package suggest implements the autocomplete cache (spec.md §4.4): a
// per-archive TTL cache of prefix -> ranked titles, sitting in front of the
// title index's prefix lookup.
package suggest

import (
	"context"
	"sync"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"

	"github.com/epheterson/zimi/internal/titleindex"
	"github.com/epheterson/zimi/pkg/stringutils"
)

const (
	cacheTTL      = 15 * time.Minute
	cacheCapacity = 500 // spec.md §4.4: "500 entries"
	defaultLimit  = 10
	allArchivesID = "*"
)

// Result is one suggestion: a title plus the archive and path it resolves to.
type Result struct {
	ArchiveID string
	Path      string
	Title     string
}

// Cache is a per-archive autocomplete cache backed by a title index store.
// Lookups scoped to "all archives" are cached under a reserved key so they
// don't collide with any real archive_id.
type Cache struct {
	index *titleindex.Store

	mu     sync.RWMutex
	caches map[string]*ttlcache.Cache[string, []Result]
}

// New creates a Cache backed by index.
func New(index *titleindex.Store) *Cache {
	return &Cache{
		index:  index,
		caches: make(map[string]*ttlcache.Cache[string, []Result]),
	}
}

// Clear drops every per-archive cache; called by the archive registry's
// OnChange hook (wired in internal/server) after every refresh that changes
// the archive set (spec.md §4.4: "cache is cleared on
// archive refresh").
func (c *Cache) Clear() {
	c.mu.Lock()
	c.caches = make(map[string]*ttlcache.Cache[string, []Result])
	c.mu.Unlock()
}

func (c *Cache) cacheFor(archiveID string) *ttlcache.Cache[string, []Result] {
	c.mu.RLock()
	cache, ok := c.caches[archiveID]
	c.mu.RUnlock()
	if ok {
		return cache
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cache, ok = c.caches[archiveID]; ok {
		return cache
	}
	cache = ttlcache.New(ttlcache.Options[string, []Result]{}.SetDefaultTTL(cacheTTL).SetCapacity(cacheCapacity))
	c.caches[archiveID] = cache
	return cache
}

// Suggest returns up to limit title suggestions for query, scoped to a
// single archive or every archive when archiveID is empty (spec.md §4.4).
func (c *Cache) Suggest(ctx context.Context, archiveID, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	scope := archiveID
	if scope == "" {
		scope = allArchivesID
	}

	key := stringutils.FoldTitle(query)
	cache := c.cacheFor(scope)

	if cached, ok := cache.Get(key); ok {
		return truncate(cached, limit), nil
	}

	results, err := c.lookup(ctx, archiveID, query, limit)
	if err != nil {
		return nil, err
	}

	cache.Set(key, results, ttlcache.DefaultTTL)
	return truncate(results, limit), nil
}

func (c *Cache) lookup(ctx context.Context, archiveID, query string, limit int) ([]Result, error) {
	if archiveID != "" {
		entries, err := c.index.PrefixMatch(ctx, archiveID, query, limit)
		if err != nil {
			return nil, err
		}
		return toResults(archiveID, entries), nil
	}

	archives, err := c.index.Archives(ctx)
	if err != nil {
		return nil, err
	}

	var all []Result
	for _, a := range archives {
		entries, err := c.index.PrefixMatch(ctx, a.ID, query, limit)
		if err != nil {
			continue
		}
		all = append(all, toResults(a.ID, entries)...)
	}
	return all, nil
}

func toResults(archiveID string, entries []titleindex.Entry) []Result {
	out := make([]Result, len(entries))
	for i, e := range entries {
		out[i] = Result{ArchiveID: archiveID, Path: e.Path, Title: e.Title}
	}
	return out
}

func truncate(results []Result, limit int) []Result {
	if len(results) <= limit {
		return results
	}
	return results[:limit]
}
