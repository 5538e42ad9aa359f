// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/rs/zerolog/log"

	"github.com/epheterson/zimi/internal/archive"
	"github.com/epheterson/zimi/internal/buildinfo"
	"github.com/epheterson/zimi/internal/domain"
	"github.com/epheterson/zimi/internal/state"
	"github.com/epheterson/zimi/pkg/httphelpers"
	"github.com/epheterson/zimi/pkg/redact"
)

// chunkSize bounds how much is copied between cancellation checks (spec.md
// §5: "the transfer loop observes cancellation within one chunk (<=64 KB)").
const chunkSize = 64 * 1024

// Manager runs at most one active download per catalog slug (spec.md §4.7).
type Manager struct {
	archiveDir string
	registry   *archive.Registry
	history    *state.History
	client     *http.Client

	mu    sync.Mutex
	tasks map[string]*Task
}

// New creates a Manager that writes completed downloads into archiveDir.
func New(archiveDir string, registry *archive.Registry, history *state.History) *Manager {
	return &Manager{
		archiveDir: archiveDir,
		registry:   registry,
		history:    history,
		client:     &http.Client{Timeout: 0},
		tasks:      make(map[string]*Task),
	}
}

// Start begins (or resumes) a download for slug. Returns a conflict error
// if a task for slug is already active (spec.md §6: 409).
func (m *Manager) Start(ctx context.Context, slug, url, targetFilename string, expectedSize int64, kind Kind) (*Task, error) {
	m.mu.Lock()
	if existing, ok := m.tasks[slug]; ok && !existing.isTerminal() {
		m.mu.Unlock()
		return nil, domain.NewError(domain.ErrConflict, "download already active for "+slug, nil)
	}
	task := newTask(slug, url, targetFilename, expectedSize, kind)
	m.tasks[slug] = task
	m.mu.Unlock()

	go m.run(context.Background(), task)
	return task, nil
}

// Cancel marks slug's active task cancelled; the transfer loop observes this
// at the next chunk boundary and keeps the partial .tmp file for resume.
func (m *Manager) Cancel(slug string) error {
	m.mu.Lock()
	task, ok := m.tasks[slug]
	m.mu.Unlock()
	if !ok {
		return domain.NewError(domain.ErrNotFound, "no download for "+slug, nil)
	}
	task.requestCancel()
	return nil
}

// Status returns the current snapshot of slug's task, if any.
func (m *Manager) Status(slug string) (Snapshot, bool) {
	m.mu.Lock()
	task, ok := m.tasks[slug]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return task.snapshot(), true
}

// List returns every known task's snapshot.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Snapshot, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.snapshot())
	}
	return out
}

func (m *Manager) tmpPath(task *Task) string {
	return filepath.Join(m.archiveDir, task.TargetFilename+".tmp")
}

func (m *Manager) finalPath(task *Task) string {
	return filepath.Join(m.archiveDir, task.TargetFilename)
}

// run drives one task's transfer loop: it resumes from whatever .tmp bytes
// already exist, retrying on 5xx/network errors per spec.md §7's backoff
// policy (1s, 4s, 16s), and is terminal on 4xx.
func (m *Manager) run(ctx context.Context, task *Task) {
	task.setState(StateRunning)

	tmpPath := m.tmpPath(task)
	if info, err := os.Stat(tmpPath); err == nil {
		task.addBytes(info.Size())
	}

	err := retry.Do(
		func() error { return m.transferOnce(ctx, task) },
		retry.Attempts(4),
		retry.Delay(time.Second),
		retry.MaxDelay(16*time.Second),
		retry.DelayType(backoffSchedule),
		retry.RetryIf(isRetryable),
		retry.LastErrorOnly(true),
	)

	if err != nil {
		if task.isCancelled() {
			task.setState(StateCancelled)
			log.Info().Str("slug", task.Slug).Msg("download cancelled, partial file retained")
			return
		}
		task.setError(redact.URLError(err))
		log.Warn().Err(redact.URLError(err)).Str("slug", task.Slug).Msg("download failed")
		return
	}

	if err := os.Rename(tmpPath, m.finalPath(task)); err != nil {
		task.setError(fmt.Errorf("finalize download: %w", err))
		return
	}
	task.setState(StateComplete)

	if m.history != nil {
		kindEvent := state.HistoryDownloaded
		if task.Kind == KindUpdate {
			kindEvent = state.HistoryUpdated
		}
		_ = m.history.Append(kindEvent, state.ArchiveSnapshot{
			ID:        task.Slug,
			Title:     task.TargetFilename,
			SizeBytes: task.ExpectedSize,
		})
	}

	if m.registry != nil {
		if err := m.registry.Refresh(context.Background()); err != nil {
			log.Warn().Err(err).Str("slug", task.Slug).Msg("post-download registry refresh reported errors")
		}
	}
}

// backoffSchedule implements the exact 1s/4s/16s sequence from spec.md §7
// rather than retry-go's default exponential curve.
func backoffSchedule(n uint, _ error, _ *retry.Config) time.Duration {
	schedule := []time.Duration{time.Second, 4 * time.Second, 16 * time.Second}
	if int(n) < len(schedule) {
		return schedule[n]
	}
	return schedule[len(schedule)-1]
}

// retryableError wraps a transfer failure with whether a retry is worth
// attempting (5xx/network) versus terminal (4xx).
type retryableError struct {
	err       error
	retryable bool
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *retryableError
	if e, ok := err.(*retryableError); ok {
		re = e
		return re.retryable
	}
	return true // network errors (not wrapped) are retried
}

// transferOnce performs a single download attempt, resuming from the
// current .tmp file size via a Range request.
func (m *Manager) transferOnce(ctx context.Context, task *Task) error {
	tmpPath := m.tmpPath(task)

	info, statErr := os.Stat(tmpPath)
	var resumeFrom int64
	if statErr == nil {
		resumeFrom = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return &retryableError{err: err, retryable: false}
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	if resumeFrom > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(resumeFrom, 10)+"-")
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return &retryableError{err: err, retryable: true}
	}
	defer httphelpers.DrainAndClose(resp)

	switch {
	case resp.StatusCode >= 500:
		return &retryableError{err: fmt.Errorf("server error: %s", resp.Status), retryable: true}
	case resp.StatusCode >= 400:
		return &retryableError{err: fmt.Errorf("download failed: %s", resp.Status), retryable: false}
	case resp.StatusCode != http.StatusPartialContent && resumeFrom > 0:
		// Server ignored our Range request; restart from scratch.
		resumeFrom = 0
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			return &retryableError{err: err, retryable: false}
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if resumeFrom > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(tmpPath, flags, 0o644)
	if err != nil {
		return &retryableError{err: err, retryable: false}
	}
	defer f.Close()

	if resumeFrom == 0 {
		task.mu.Lock()
		task.bytesWritten = 0
		task.mu.Unlock()
	}

	buf := make([]byte, chunkSize)
	for {
		if task.isCancelled() {
			return &retryableError{err: fmt.Errorf("cancelled"), retryable: false}
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return &retryableError{err: werr, retryable: false}
			}
			task.addBytes(int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return &retryableError{err: readErr, retryable: true}
		}
	}

	if task.ExpectedSize > 0 {
		final, err := os.Stat(tmpPath)
		if err != nil {
			return &retryableError{err: err, retryable: false}
		}
		if final.Size() != task.ExpectedSize {
			return &retryableError{err: fmt.Errorf("size mismatch: wrote %d, expected %d", final.Size(), task.ExpectedSize), retryable: false}
		}
	}

	return nil
}

// CleanStaleTmpFiles deletes .tmp files older than 24 hours under dir with
// no corresponding active task (spec.md §4.7 "Stale cleanup"). Call once at
// startup, before any downloads are started.
func (m *Manager) CleanStaleTmpFiles(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan for stale downloads: %w", err)
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".tmp" {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to remove stale .tmp download")
		} else {
			log.Info().Str("path", path).Msg("removed stale partial download")
		}
	}
	return nil
}
