// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package download implements the resumable ZIM download manager (spec.md
// §4.7): one active task per catalog slug, Range-based resume, cancellation
// at chunk boundaries, update detection against the Kiwix OPDS catalog, and
// an auto-update scheduler.
package download

import (
	"sync"
	"time"
)

// State is a download task's lifecycle state (spec.md §3, §4.7).
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateComplete  State = "complete"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Kind distinguishes a brand-new archive download from an update of an
// already-installed one (spec.md §3).
type Kind string

const (
	KindNew    Kind = "new"
	KindUpdate Kind = "update"
)

// Task tracks one in-flight or completed download (spec.md §3).
type Task struct {
	Slug           string
	URL            string
	TargetFilename string
	ExpectedSize   int64 // 0 when unknown
	Kind           Kind

	mu           sync.Mutex
	bytesWritten int64
	state        State
	errMsg       string
	startedAt    time.Time
	finishedAt   time.Time
	cancelled    bool
}

func newTask(slug, url, targetFilename string, expectedSize int64, kind Kind) *Task {
	return &Task{
		Slug:           slug,
		URL:            url,
		TargetFilename: targetFilename,
		ExpectedSize:   expectedSize,
		Kind:           kind,
		state:          StateQueued,
		startedAt:      time.Now(),
	}
}

// Snapshot is the read-only view of a Task's progress exposed over HTTP.
type Snapshot struct {
	Slug           string     `json:"slug"`
	URL            string     `json:"url"`
	TargetFilename string     `json:"targetFilename"`
	ExpectedSize   int64      `json:"expectedSize,omitempty"`
	BytesWritten   int64      `json:"bytesWritten"`
	State          State      `json:"state"`
	Error          string     `json:"error,omitempty"`
	Kind           Kind       `json:"kind"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
}

func (t *Task) snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Slug:           t.Slug,
		URL:            t.URL,
		TargetFilename: t.TargetFilename,
		ExpectedSize:   t.ExpectedSize,
		BytesWritten:   t.bytesWritten,
		State:          t.state,
		Error:          t.errMsg,
		Kind:           t.Kind,
		StartedAt:      t.startedAt,
	}
	if !t.finishedAt.IsZero() {
		finished := t.finishedAt
		s.FinishedAt = &finished
	}
	return s
}

func (t *Task) setState(s State) {
	t.mu.Lock()
	t.state = s
	if s == StateComplete || s == StateFailed || s == StateCancelled {
		t.finishedAt = time.Now()
	}
	t.mu.Unlock()
}

func (t *Task) setError(err error) {
	t.mu.Lock()
	t.state = StateFailed
	if err != nil {
		t.errMsg = err.Error()
	}
	t.finishedAt = time.Now()
	t.mu.Unlock()
}

func (t *Task) addBytes(n int64) {
	t.mu.Lock()
	t.bytesWritten += n
	t.mu.Unlock()
}

func (t *Task) requestCancel() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
}

func (t *Task) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *Task) isTerminal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateComplete || t.state == StateFailed || t.state == StateCancelled
}
