// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epheterson/zimi/internal/titleindex"
)

func TestCheckUpdatesFindsNewerArchives(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	t.Cleanup(server.Close)

	installed := []titleindex.ArchiveMeta{
		{ID: "wikipedia_en_all_nopic_2024-01"},
		{ID: "devdocs_go_2024-02"},
	}

	pending, err := CheckUpdates(context.Background(), server.URL, installed)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "wikipedia_en_all_nopic_2024-01", pending[0].ArchiveID)
	assert.Equal(t, "2024-02", pending[0].Available)
}

func TestSchedulerRunOnceSkipsWhenAlreadyRunning(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	idx, err := titleindex.Open(dir + "/titles.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	m := New(dir, nil, nil)
	s := NewScheduler(m, idx, server.URL, "weekly")

	s.running.Store(true)
	s.RunOnce(context.Background())
	assert.Empty(t, m.List(), "a concurrent run must not start any downloads")
	s.running.Store(false)
}
