// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package titleindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReplaceEntriesAndPrefixMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertArchive(ctx, ArchiveMeta{ID: "wiki", Path: "/archives/wiki.zim", Title: "Wikipedia"}))

	entries := []Entry{
		{ArchiveID: "wiki", Path: "A/Go_(programming_language)", Title: "Go (programming language)", Namespace: "A", Body: "Go is a statically typed language"},
		{ArchiveID: "wiki", Path: "A/Golang_mascot", Title: "Golang mascot", Namespace: "A", Body: "The gopher mascot"},
		{ArchiveID: "wiki", Path: "I/gopher.png", Title: "gopher.png", Namespace: "I"},
	}
	require.NoError(t, s.ReplaceEntries(ctx, "wiki", entries))

	matches, err := s.PrefixMatch(ctx, "wiki", "go", 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	archives, err := s.Archives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	require.Equal(t, "wiki", archives[0].ID)
}

func TestFullTextSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertArchive(ctx, ArchiveMeta{ID: "wiki", Path: "/archives/wiki.zim", Title: "Wikipedia"}))
	require.NoError(t, s.ReplaceEntries(ctx, "wiki", []Entry{
		{ArchiveID: "wiki", Path: "A/Go", Title: "Go", Namespace: "A", Body: "Go is an open source programming language"},
	}))

	results, err := s.FullTextSearch(ctx, []string{"wiki"}, "programming", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "A/Go", results[0].Path)
}

func TestReplaceEntriesSkipsFTSAboveLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertArchive(ctx, ArchiveMeta{ID: "big", Path: "/archives/big.zim", Title: "Big"}))

	// Patch the limit down for the test instead of building two million rows.
	orig := ftsEntryLimit
	t.Cleanup(func() { ftsEntryLimit = orig })
	ftsEntryLimit = 1

	require.NoError(t, s.ReplaceEntries(ctx, "big", []Entry{
		{ArchiveID: "big", Path: "A/One", Title: "One", Namespace: "A"},
		{ArchiveID: "big", Path: "A/Two", Title: "Two", Namespace: "A"},
	}))

	results, err := s.FullTextSearch(ctx, []string{"big"}, "One", 10)
	require.NoError(t, err)
	require.Empty(t, results, "fts rows should be skipped above the limit")

	archives, err := s.Archives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	require.True(t, archives[0].FTSSkipped)

	require.NoError(t, s.BuildFTS(ctx, "big"))

	results, err = s.FullTextSearch(ctx, []string{"big"}, "One", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	archives, err = s.Archives(ctx)
	require.NoError(t, err)
	require.False(t, archives[0].FTSSkipped)
}

func TestTitleSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertArchive(ctx, ArchiveMeta{ID: "wiki", Path: "/archives/wiki.zim", Title: "Wikipedia"}))
	require.NoError(t, s.ReplaceEntries(ctx, "wiki", []Entry{
		{ArchiveID: "wiki", Path: "A/Go_(programming_language)", Title: "Go (programming language)", Namespace: "A"},
		{ArchiveID: "wiki", Path: "A/Golang_mascot", Title: "Golang mascot", Namespace: "A"},
		{ArchiveID: "wiki", Path: "A/Water", Title: "Water", Namespace: "A"},
	}))

	matches, truncated, err := s.TitleSearch(ctx, "wiki", "programming language", 10)
	require.NoError(t, err)
	require.False(t, truncated)
	require.Len(t, matches, 1)
	require.Equal(t, "A/Go_(programming_language)", matches[0].Path)
}

func TestTitleSearchTruncatesOverBudget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertArchive(ctx, ArchiveMeta{ID: "wiki", Path: "/archives/wiki.zim", Title: "Wikipedia"}))
	require.NoError(t, s.ReplaceEntries(ctx, "wiki", []Entry{
		{ArchiveID: "wiki", Path: "A/Go", Title: "Go", Namespace: "A"},
	}))

	orig := substringScanBudget
	t.Cleanup(func() { substringScanBudget = orig })
	substringScanBudget = 0

	matches, truncated, err := s.TitleSearch(ctx, "wiki", "go", 10)
	require.NoError(t, err)
	require.True(t, truncated)
	require.Empty(t, matches)
}

func TestRemoveArchive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertArchive(ctx, ArchiveMeta{ID: "wiki", Path: "/archives/wiki.zim", Title: "Wikipedia"}))
	require.NoError(t, s.ReplaceEntries(ctx, "wiki", []Entry{{ArchiveID: "wiki", Path: "A/Go", Title: "Go", Namespace: "A"}}))

	require.NoError(t, s.RemoveArchive(ctx, "wiki"))

	archives, err := s.Archives(ctx)
	require.NoError(t, err)
	require.Empty(t, archives)

	matches, err := s.PrefixMatch(ctx, "wiki", "go", 10)
	require.NoError(t, err)
	require.Empty(t, matches)
}
