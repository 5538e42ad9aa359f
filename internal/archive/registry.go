// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package archive implements the archive registry (spec.md §4.1): a
// process-wide map from archive_id to an open native ZIM handle, watching
// the archive directory for changes via fsnotify and rebuilding the title
// index through internal/titleindex as files arrive, change, or disappear.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/epheterson/zimi/internal/domain"
	"github.com/epheterson/zimi/internal/nativezim"
	"github.com/epheterson/zimi/internal/titleindex"
	"github.com/epheterson/zimi/pkg/debounce"
)

// indexBuildAttempts is the number of consecutive title-index build
// attempts before an archive is quarantined from phase 1 (spec.md §4.2:
// "Build failure after three consecutive attempts marks the archive
// index-failed and quarantines it from phase 1").
const indexBuildAttempts = 3

// Handle is one open archive: its native reader plus cached metadata.
type Handle struct {
	ID       string
	Path     string
	Title    string
	Meta     titleindex.ArchiveMeta
	modTime  time.Time
	size     int64
	titleMu     sync.RWMutex // per-archive title lock (spec.md §5)
	nativeMu    *sync.Mutex  // points at the registry's single global archive lock
	native      *nativezim.Archive
	Quarantined bool // title index failed to build after indexBuildAttempts tries
}

// WithTitleLock runs fn while holding this archive's title (read) lock.
// Used for title-index queries and suggestions, which never touch native
// archive state and so never need the global lock.
func (h *Handle) WithTitleLock(fn func() error) error {
	h.titleMu.RLock()
	defer h.titleMu.RUnlock()
	return fn()
}

// withRefreshLock is held exclusively while a rebuild/refresh replaces this
// handle's native reader or title index rows.
func (h *Handle) withRefreshLock(fn func() error) error {
	h.titleMu.Lock()
	defer h.titleMu.Unlock()
	return fn()
}

// WithNativeLock runs fn while holding the process-wide global archive lock
// (spec.md §4.1: the native reader is not thread-safe for reads across
// archives). Used for full-text search, random entry, and content reads.
func (h *Handle) WithNativeLock(fn func(a *nativezim.Archive) error) error {
	h.nativeMu.Lock()
	defer h.nativeMu.Unlock()
	return fn(h.native)
}

// Registry is the process-wide archive_id -> Handle map.
type Registry struct {
	dir       string
	index     *titleindex.Store
	globalMu  sync.Mutex
	mu        sync.RWMutex
	handles   map[string]*Handle
	watcher   *fsnotify.Watcher
	debouncer *debounce.Debouncer
	onChange  func()
}

// Options configures a new Registry.
type Options struct {
	ArchiveDir string
	Index      *titleindex.Store
	// OnChange is invoked (off the watcher goroutine) after every refresh
	// that adds, removes, or updates an archive, so result caches can be
	// invalidated en masse (spec.md §4.3 result cache).
	OnChange func()
}

// New creates a Registry and performs an initial synchronous scan.
func New(opts Options) (*Registry, error) {
	r := &Registry{
		dir:      opts.ArchiveDir,
		index:    opts.Index,
		handles:  make(map[string]*Handle),
		onChange: opts.OnChange,
	}

	if err := os.MkdirAll(opts.ArchiveDir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create archive watcher: %w", err)
	}
	r.watcher = watcher
	r.debouncer = debounce.New(2 * time.Second)

	if err := watcher.Add(opts.ArchiveDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch archive directory: %w", err)
	}

	if err := r.Refresh(context.Background()); err != nil {
		log.Warn().Err(err).Msg("initial archive scan reported errors")
	}

	go r.watchLoop()

	return r, nil
}

func (r *Registry) watchLoop() {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				r.debouncer.Do(func() {
					if err := r.Refresh(context.Background()); err != nil {
						log.Warn().Err(err).Msg("archive refresh failed")
					}
				})
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("archive watcher error")
		}
	}
}

// Close stops the watcher and closes every open native handle.
func (r *Registry) Close() error {
	r.debouncer.Stop()
	_ = r.watcher.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.handles {
		if h.native != nil {
			_ = h.native.Close()
		}
	}
	return nil
}

// Get returns the handle for archiveID as opened by the most recent
// refresh. It does not open archives itself: every archive a refresh finds
// is opened during that refresh, not on first use.
func (r *Registry) Get(archiveID string) (*Handle, bool) {
	r.mu.RLock()
	h, ok := r.handles[archiveID]
	r.mu.RUnlock()
	return h, ok
}

// List returns every known archive, sorted by title, including quarantined
// ones (used by /list and /manage/status, which report every archive the
// registry knows about).
func (r *Registry) List() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

// SearchableList returns every known archive whose title index is healthy,
// sorted by title. Quarantined archives (spec.md §4.2: index build failed
// three times in a row) are excluded from phase 1 search.
func (r *Registry) SearchableList() []*Handle {
	all := r.List()
	out := all[:0:0]
	for _, h := range all {
		if !h.Quarantined {
			out = append(out, h)
		}
	}
	return out
}

// Refresh rescans the archive directory: opens new files, closes and drops
// removed files, and reopens files whose size/mtime changed (spec.md §4.1).
func (r *Registry) Refresh(ctx context.Context) error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("scan archive directory: %w", err)
	}

	seen := make(map[string]struct{}, len(entries))
	changed := false

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".zim") {
			continue
		}

		path := filepath.Join(r.dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("stat archive failed, skipping")
			continue
		}

		id := archiveIDFromFilename(entry.Name())
		seen[id] = struct{}{}

		r.mu.RLock()
		existing, ok := r.handles[id]
		r.mu.RUnlock()

		if ok && existing.modTime.Equal(info.ModTime()) && existing.size == info.Size() && !existing.Quarantined {
			continue // unchanged and healthy, skip reopen
		}

		if err := r.openOrReopen(ctx, id, path, info.ModTime(), info.Size()); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping corrupt archive")
			continue
		}
		changed = true
	}

	// Drop archives whose files vanished.
	r.mu.Lock()
	for id, h := range r.handles {
		if _, ok := seen[id]; !ok {
			if h.native != nil {
				_ = h.native.Close()
			}
			delete(r.handles, id)
			changed = true
			if err := r.index.RemoveArchive(ctx, id); err != nil {
				log.Warn().Err(err).Str("archive", id).Msg("failed to drop title index for removed archive")
			}
		}
	}
	r.mu.Unlock()

	if changed && r.onChange != nil {
		r.onChange()
	}

	return nil
}

func (r *Registry) openOrReopen(ctx context.Context, id, path string, modTime time.Time, size int64) error {
	native, err := nativezim.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	title := native.Metadata("Title")
	if title == "" {
		title = id
	}
	category := domain.ClassifyCategory(id + " " + title)

	meta := titleindex.ArchiveMeta{
		ID:           id,
		Path:         path,
		Title:        title,
		Language:     native.Metadata("Language"),
		Category:     category,
		Publisher:    native.Metadata("Publisher"),
		Flavour:      native.Metadata("Flavour"),
		Description:  native.Metadata("Description"),
		ArticleCount: native.ArticleCount(),
		MediaCount:   native.MediaCount(),
		SizeBytes:    size,
		IndexedAt:    time.Now(),
		SourceRank:   domain.DefaultSourceRank(category),
	}

	r.mu.RLock()
	existing, existed := r.handles[id]
	r.mu.RUnlock()

	h := &Handle{
		ID:       id,
		Path:     path,
		Title:    title,
		Meta:     meta,
		modTime:  modTime,
		size:     size,
		nativeMu: &r.globalMu,
		native:   native,
	}

	if err := r.index.UpsertArchive(ctx, meta); err != nil {
		_ = native.Close()
		return fmt.Errorf("persist archive metadata: %w", err)
	}

	buildErr := retry.Do(
		func() error { return buildTitleIndex(ctx, r.index, native, id) },
		retry.Attempts(indexBuildAttempts),
		retry.LastErrorOnly(true),
	)
	if buildErr != nil {
		// Database corruption is recovered locally by dropping the index
		// rows and quarantining the archive from phase 1 rather than
		// failing the whole refresh (spec.md §4.2, §4.6).
		log.Error().Err(buildErr).Str("archive", id).Int("attempts", indexBuildAttempts).
			Msg("title index build failed, quarantining archive from search")
		if clearErr := r.index.ReplaceEntries(ctx, id, nil); clearErr != nil {
			log.Warn().Err(clearErr).Str("archive", id).Msg("failed to clear index rows for quarantined archive")
		}
		h.Quarantined = true
	}

	r.mu.Lock()
	r.handles[id] = h
	r.mu.Unlock()

	if existed && existing.native != nil {
		_ = existing.native.Close()
	}

	return nil
}

// archiveIDFromFilename derives a stable archive_id from a .zim filename,
// stripping the extension. Catalog filenames often carry a trailing
// date-stamp (e.g. wikipedia_en_all_nopic_2024-01.zim); that stamp is kept
// as part of the id today since it is also how the download manager detects
// updates by comparing stripped basenames (spec.md §4.7).
func archiveIDFromFilename(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func buildTitleIndex(ctx context.Context, idx *titleindex.Store, native *nativezim.Archive, archiveID string) error {
	const batchSize = 5000
	total := native.EntryCount()

	var entries []titleindex.Entry
	for _, ns := range []byte{'A', 'I'} {
		offset := int64(0)
		for {
			paths, err := native.IteratePaths(ns, offset, batchSize)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				break
			}
			for _, p := range paths {
				info, err := native.EntryByPath(p)
				if err != nil {
					continue
				}
				entries = append(entries, titleindex.Entry{
					ArchiveID: archiveID,
					Path:      p,
					Title:     info.Title,
					MimeType:  info.MimeType,
					Namespace: string(ns),
				})
			}
			offset += int64(len(paths))
			if offset >= total || int64(len(paths)) < batchSize {
				break
			}
		}
	}

	return idx.ReplaceEntries(ctx, archiveID, entries)
}
