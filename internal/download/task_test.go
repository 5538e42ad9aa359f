// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package download

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskSnapshotReflectsProgress(t *testing.T) {
	t.Parallel()

	task := newTask("wikipedia_en", "https://example.org/wikipedia_en.zim", "wikipedia_en.zim", 1000, KindNew)

	snap := task.snapshot()
	assert.Equal(t, StateQueued, snap.State)
	assert.Nil(t, snap.FinishedAt)

	task.setState(StateRunning)
	task.addBytes(256)
	task.addBytes(256)

	snap = task.snapshot()
	assert.Equal(t, StateRunning, snap.State)
	assert.Equal(t, int64(512), snap.BytesWritten)
	assert.Nil(t, snap.FinishedAt)

	task.setState(StateComplete)
	snap = task.snapshot()
	assert.Equal(t, StateComplete, snap.State)
	require.NotNil(t, snap.FinishedAt)
}

func TestTaskSetErrorMarksFailedAndTerminal(t *testing.T) {
	t.Parallel()

	task := newTask("devdocs_go", "https://example.org/devdocs_go.zim", "devdocs_go.zim", 0, KindNew)
	assert.False(t, task.isTerminal())

	task.setError(errors.New("connection reset"))

	snap := task.snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, "connection reset", snap.Error)
	assert.True(t, task.isTerminal())
}

func TestTaskCancelIsObservedWithoutChangingState(t *testing.T) {
	t.Parallel()

	task := newTask("wiktionary_en", "https://example.org/wiktionary_en.zim", "wiktionary_en.zim", 0, KindUpdate)
	assert.False(t, task.isCancelled())

	task.requestCancel()
	assert.True(t, task.isCancelled())

	// Cancellation alone does not flip terminal state; the transfer loop
	// is responsible for calling setState(StateCancelled) once it notices.
	assert.False(t, task.isTerminal())
}
