// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyQuality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		title string
		want  matchQuality
	}{
		{"exact", "cat", "cat", qualityExact},
		{"prefix", "cat", "catalog", qualityPrefix},
		{"substring", "at", "catalog", qualitySubstring},
		{"no match", "dog", "catalog", qualityFTSOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			quality, _ := classifyQuality(tt.query, tt.title)
			assert.Equal(t, tt.want, quality)
		})
	}
}

func TestClassifyQualityFuzzyRankOnlyMeaningfulForSubstring(t *testing.T) {
	t.Parallel()

	quality, fuzzyRank := classifyQuality("cln", "cleaning")
	assert.Equal(t, qualitySubstring, quality, "non-contiguous fuzzy match still ranks as the substring tier")
	assert.GreaterOrEqual(t, fuzzyRank, 0)

	quality, fuzzyRank = classifyQuality("xyz", "catalog")
	assert.Equal(t, qualityFTSOnly, quality)
	assert.Equal(t, 0, fuzzyRank)
}

func TestScoreOfFuzzyRankBreaksTiesWithinSubstringTier(t *testing.T) {
	t.Parallel()

	tight := candidate{quality: qualitySubstring, rank: 10, fuzzyRank: 1}
	loose := candidate{quality: qualitySubstring, rank: 10, fuzzyRank: 20}

	assert.Greater(t, scoreOf(tight), scoreOf(loose), "a tighter fuzzy match should score higher within the same tier")
}

func TestMergeAndRankDedupesByArchiveAndPath(t *testing.T) {
	t.Parallel()

	candidates := []candidate{
		{hit: Hit{ArchiveID: "wiki", Path: "A/Cat", Title: "Cat"}, quality: qualitySubstring, rank: 5},
		{hit: Hit{ArchiveID: "wiki", Path: "/A/Cat", Title: "Cat"}, quality: qualityExact, rank: 5},
		{hit: Hit{ArchiveID: "wiki", Path: "A/Dog", Title: "Dog"}, quality: qualityPrefix, rank: 5},
	}

	hits := mergeAndRank(candidates, 10)

	assert.Len(t, hits, 2, "duplicate (archive_id, canonical path) pairs collapse into one hit")
	assert.Equal(t, "A/Cat", hits[0].Path, "the higher scoring (exact) duplicate wins, not the first seen")
}

func TestMergeAndRankOrdersByQualityThenRankThenTitleLength(t *testing.T) {
	t.Parallel()

	candidates := []candidate{
		{hit: Hit{ArchiveID: "devdocs", Path: "A/Go", Title: "Go"}, quality: qualityPrefix, rank: 1},
		{hit: Hit{ArchiveID: "wiki", Path: "A/Golang", Title: "Golang"}, quality: qualityExact, rank: 1},
		{hit: Hit{ArchiveID: "wiki", Path: "A/Goose", Title: "Goose"}, quality: qualityExact, rank: 1},
	}

	hits := mergeAndRank(candidates, 10)

	assert.Len(t, hits, 3)
	assert.Equal(t, "Goose", hits[0].Title, "exact matches outrank a prefix match regardless of source_rank tie")
	assert.Equal(t, "Golang", hits[1].Title)
	assert.Equal(t, "Go", hits[2].Title)
}

func TestMergeAndRankTruncatesToLimit(t *testing.T) {
	t.Parallel()

	candidates := make([]candidate, 0, 5)
	for i := 0; i < 5; i++ {
		candidates = append(candidates, candidate{
			hit:     Hit{ArchiveID: "wiki", Path: string(rune('A' + i)), Title: string(rune('A' + i))},
			quality: qualitySubstring,
		})
	}

	hits := mergeAndRank(candidates, 2)
	assert.Len(t, hits, 2)
}

func TestScoreOfWeightsQualityAboveFTSScoreAboveRank(t *testing.T) {
	t.Parallel()

	low := candidate{quality: qualitySubstring, ftsScore: 100, rank: 100}
	high := candidate{quality: qualityExact, ftsScore: 0, rank: 0}

	assert.Greater(t, scoreOf(high), scoreOf(low), "match quality must dominate FTS score and source_rank")
}

func TestEngineCacheKeyIsStableAndScopeSensitive(t *testing.T) {
	t.Parallel()

	e := &Engine{}

	k1 := e.cacheKey("Cats", Options{Limit: 10})
	k2 := e.cacheKey("cats", Options{Limit: 10})
	assert.Equal(t, k1, k2, "cache key normalizes case/diacritics via FoldTitle")

	k3 := e.cacheKey("cats", Options{Limit: 10, Scope: []string{"wiki"}})
	assert.NotEqual(t, k1, k3, "scoped and unscoped queries must not collide in the cache")

	k4 := e.cacheKey("cats", Options{Limit: 10, Fast: true})
	assert.NotEqual(t, k1, k4, "fast and full searches must not collide in the cache")
}

func TestMinDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1*time.Second, minDuration(1*time.Second, 2*time.Second))
	assert.Equal(t, 1*time.Second, minDuration(2*time.Second, 1*time.Second))
}

func TestEngineInvalidateCacheDropsEntries(t *testing.T) {
	t.Parallel()

	e := New(nil, nil)
	e.setCached("k", Result{Hits: []Hit{{Title: "stale"}}})

	_, ok := e.getCached("k")
	assert.True(t, ok)

	e.InvalidateCache()

	_, ok = e.getCached("k")
	assert.False(t, ok, "InvalidateCache must drop every previously cached result")
}
