// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionsSetGetDelete(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := NewCollections(dir)
	require.NoError(t, err)

	assert.Empty(t, c.List())

	require.NoError(t, c.Set("science", []string{"wikipedia_en", "devdocs_go"}))
	ids, ok := c.Get("science")
	require.True(t, ok)
	assert.Equal(t, []string{"wikipedia_en", "devdocs_go"}, ids)
	assert.Equal(t, []string{"science"}, c.List())

	// Reloading from disk should see the same collection.
	reloaded, err := NewCollections(dir)
	require.NoError(t, err)
	ids, ok = reloaded.Get("science")
	require.True(t, ok)
	assert.Equal(t, []string{"wikipedia_en", "devdocs_go"}, ids)

	require.NoError(t, c.Delete("science"))
	_, ok = c.Get("science")
	assert.False(t, ok)

	err = c.Delete("science")
	assert.Error(t, err, "deleting an unknown collection is an error")
}

func TestHistoryAppendTrimsToCapacity(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	h, err := NewHistory(dir)
	require.NoError(t, err)
	h.capacity = 2

	require.NoError(t, h.Append(HistoryDownloaded, ArchiveSnapshot{ID: "a"}))
	require.NoError(t, h.Append(HistoryDownloaded, ArchiveSnapshot{ID: "b"}))
	require.NoError(t, h.Append(HistoryUpdated, ArchiveSnapshot{ID: "c"}))

	events := h.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[0].Archive.ID)
	assert.Equal(t, "c", events[1].Archive.ID)
}
