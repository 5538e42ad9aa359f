// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerStartRejectsDuplicateActiveDownload(t *testing.T) {
	t.Parallel()

	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(func() {
		close(blocked)
		server.Close()
	})

	dir := t.TempDir()
	m := New(dir, nil, nil)

	_, err := m.Start(context.Background(), "wikipedia_en", server.URL, "wikipedia_en.zim", 0, KindNew)
	require.NoError(t, err)

	_, err = m.Start(context.Background(), "wikipedia_en", server.URL, "wikipedia_en.zim", 0, KindNew)
	assert.Error(t, err, "a second concurrent download for the same slug is rejected")
}

func TestManagerDownloadCompletesAndRenamesFile(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("a", 200*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(content))
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	m := New(dir, nil, nil)

	task, err := m.Start(context.Background(), "devdocs_go", server.URL, "devdocs_go.zim", int64(len(content)), KindNew)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return task.snapshot().State == StateComplete
	}, 5*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(filepath.Join(dir, "devdocs_go.zim"))
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	_, err = os.Stat(filepath.Join(dir, "devdocs_go.zim.tmp"))
	assert.True(t, os.IsNotExist(err), "temp file is removed on rename")
}

func TestManagerDownloadTerminalOn4xx(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	m := New(dir, nil, nil)

	task, err := m.Start(context.Background(), "missing_archive", server.URL, "missing_archive.zim", 0, KindNew)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return task.isTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	snap := task.snapshot()
	assert.Equal(t, StateFailed, snap.State)
}

func TestManagerCancelStopsTransferAndKeepsPartial(t *testing.T) {
	t.Parallel()

	chunk := strings.Repeat("b", chunkSize)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		for i := 0; i < 100; i++ {
			if _, err := w.Write([]byte(chunk)); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			time.Sleep(5 * time.Millisecond)
		}
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	m := New(dir, nil, nil)

	task, err := m.Start(context.Background(), "large_archive", server.URL, "large_archive.zim", 0, KindNew)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return task.snapshot().BytesWritten > 0
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, m.Cancel("large_archive"))

	require.Eventually(t, func() bool {
		return task.isTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, StateCancelled, task.snapshot().State)

	_, err = os.Stat(filepath.Join(dir, "large_archive.zim.tmp"))
	assert.NoError(t, err, "partial file is kept for a later resume")
}

func TestManagerListAndStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	m := New(dir, nil, nil)

	_, ok := m.Status("unknown")
	assert.False(t, ok)

	_, err := m.Start(context.Background(), "wiktionary_en", server.URL, "wiktionary_en.zim", 0, KindNew)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := m.Status("wiktionary_en")
		return ok
	}, time.Second, 5*time.Millisecond)

	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, "wiktionary_en", list[0].Slug)
}

func TestCleanStaleTmpFilesRemovesOldPartials(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	stale := filepath.Join(dir, "old.zim.tmp")
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0o644))
	require.NoError(t, os.Chtimes(stale, time.Now().Add(-48*time.Hour), time.Now().Add(-48*time.Hour)))

	fresh := filepath.Join(dir, "fresh.zim.tmp")
	require.NoError(t, os.WriteFile(fresh, []byte("partial"), 0o644))

	m := New(dir, nil, nil)
	require.NoError(t, m.CleanStaleTmpFiles(dir))

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}
