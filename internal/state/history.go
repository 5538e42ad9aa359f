// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package state

import (
	"path/filepath"
	"sync"
	"time"
)

// HistoryEventKind is the kind of archive lifecycle event recorded in
// history.json (spec.md §3).
type HistoryEventKind string

const (
	HistoryDownloaded HistoryEventKind = "downloaded"
	HistoryUpdated    HistoryEventKind = "updated"
	HistoryDeleted    HistoryEventKind = "deleted"
)

// ArchiveSnapshot is the minimal archive state recorded alongside a history
// event, so the event remains meaningful after the archive itself is gone
// (e.g. a "deleted" event).
type ArchiveSnapshot struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	SizeBytes int64  `json:"sizeBytes"`
}

// HistoryEvent is one append-only entry in history.json.
type HistoryEvent struct {
	Timestamp time.Time        `json:"timestamp"`
	Kind      HistoryEventKind `json:"kind"`
	Archive   ArchiveSnapshot  `json:"archive"`
}

const defaultHistoryCapacity = 1000

// History is an append-only ring of the last N lifecycle events (spec.md
// §3, §4.8), persisted at <data_dir>/history.json.
type History struct {
	path     string
	capacity int

	mu     sync.Mutex
	events []HistoryEvent
}

// NewHistory loads history.json from dataDir, starting empty if absent.
func NewHistory(dataDir string) (*History, error) {
	h := &History{
		path:     filepath.Join(dataDir, "history.json"),
		capacity: defaultHistoryCapacity,
	}
	if _, err := ReadJSON(h.path, &h.events); err != nil {
		return nil, err
	}
	return h, nil
}

// Append records a new event, trimming the ring to capacity, and persists
// the result.
func (h *History) Append(kind HistoryEventKind, archive ArchiveSnapshot) error {
	h.mu.Lock()
	h.events = append(h.events, HistoryEvent{
		Timestamp: time.Now(),
		Kind:      kind,
		Archive:   archive,
	})
	if len(h.events) > h.capacity {
		h.events = h.events[len(h.events)-h.capacity:]
	}
	snapshot := append([]HistoryEvent(nil), h.events...)
	h.mu.Unlock()

	return WriteJSONAtomic(h.path, snapshot)
}

// Events returns a copy of every recorded event, oldest first.
func (h *History) Events() []HistoryEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HistoryEvent(nil), h.events...)
}
