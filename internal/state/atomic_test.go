// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomicOverwritesWithoutLeftoverTempFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	require.NoError(t, WriteFileAtomic(path, []byte(`{"v":1}`), 0o644))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp file after a successful write")

	require.NoError(t, WriteFileAtomic(path, []byte(`{"v":2}`), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data))
}

func TestReadJSONMissingFileIsNotAnError(t *testing.T) {
	t.Parallel()

	var v map[string]string
	ok, err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &v)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteJSONAtomicRoundTrips(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "collections.json")
	in := map[string][]string{"science": {"wikipedia_en", "devdocs_go"}}
	require.NoError(t, WriteJSONAtomic(path, in))

	var out map[string][]string
	ok, err := ReadJSON(path, &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, out)
}
