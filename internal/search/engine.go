// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package search implements the two-phase cross-archive search engine
// (spec.md §4.3): a parallel title-index fan-out (phase 1) followed by a
// serialized native full-text pass (phase 2), merged and ranked into a
// single ordered result list.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/epheterson/zimi/internal/archive"
	"github.com/epheterson/zimi/internal/nativezim"
	"github.com/epheterson/zimi/internal/titleindex"
	"github.com/epheterson/zimi/pkg/pathcmp"
	"github.com/epheterson/zimi/pkg/stringutils"
)

const (
	phase1Budget       = 800 * time.Millisecond
	defaultTotalBudget = 12 * time.Second
	phase1Concurrency  = 8
	resultCacheTTL     = 5 * time.Minute
	resultCacheCap     = 100 // spec.md §4.3: "LRU cap 100 entries"
)

// matchQuality ranks how a hit was produced, the dominant term in scoring
// (spec.md §4.3 step 2: "exact >= prefix >= substring >= FTS-only").
type matchQuality int

const (
	qualityFTSOnly matchQuality = iota
	qualitySubstring
	qualityPrefix
	qualityExact
)

// Hit is one ranked search result.
type Hit struct {
	ArchiveID string
	Path      string
	Title     string
	Snippet   string
	Score     float64
}

// Options configures a single search call (spec.md §4.3 "opts").
type Options struct {
	Limit           int
	Scope           []string // archive IDs; empty means all archives
	Fast            bool     // skip phase 2
	TimeoutMillis   int
	IncludeSnippets bool
}

// Result is the outcome of a search call.
type Result struct {
	Hits      []Hit
	Phase     string // "mixed" when phase 2 contributed hits, "title" otherwise
	Partial   bool
	Truncated bool
}

// Engine coordinates phase 1/phase 2 search across the archive registry.
type Engine struct {
	registry *archive.Registry
	index    *titleindex.Store

	cacheMu sync.RWMutex
	cache   *ttlcache.Cache[string, Result]
}

// New creates an Engine backed by registry and index.
func New(registry *archive.Registry, index *titleindex.Store) *Engine {
	return &Engine{
		registry: registry,
		index:    index,
		cache:    newResultCache(),
	}
}

func newResultCache() *ttlcache.Cache[string, Result] {
	return ttlcache.New(ttlcache.Options[string, Result]{}.SetDefaultTTL(resultCacheTTL).SetCapacity(resultCacheCap))
}

// InvalidateCache drops every cached result; called by the archive
// registry's OnChange hook whenever archives are added, removed, or
// rebuilt, since stale archives would otherwise keep serving cached hits
// that no longer exist.
func (e *Engine) InvalidateCache() {
	e.cacheMu.Lock()
	e.cache = newResultCache()
	e.cacheMu.Unlock()
}

func (e *Engine) getCached(key string) (Result, bool) {
	e.cacheMu.RLock()
	defer e.cacheMu.RUnlock()
	return e.cache.Get(key)
}

func (e *Engine) setCached(key string, result Result) {
	e.cacheMu.RLock()
	defer e.cacheMu.RUnlock()
	e.cache.Set(key, result, resultCacheTTL)
}

// Search runs the two-phase search described in spec.md §4.3.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, fmt.Errorf("empty query")
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	cacheKey := e.cacheKey(query, opts)
	if cached, ok := e.getCached(cacheKey); ok {
		return cached, nil
	}

	totalBudget := defaultTotalBudget
	if opts.TimeoutMillis > 0 {
		totalBudget = time.Duration(opts.TimeoutMillis) * time.Millisecond
	}
	deadline := time.Now().Add(totalBudget)

	handles := e.scopedHandles(opts.Scope)

	phase1Ctx, cancel1 := context.WithTimeout(ctx, minDuration(phase1Budget, time.Until(deadline)))
	defer cancel1()
	phase1Hits, partial1, titleScanTruncated := e.phase1(phase1Ctx, query, handles, opts.Limit)

	var phase2Hits []candidate
	partial2 := false
	if !opts.Fast {
		remaining := time.Until(deadline)
		if remaining > 0 {
			phase2Ctx, cancel2 := context.WithTimeout(ctx, remaining)
			defer cancel2()
			phase2Hits, partial2 = e.phase2(phase2Ctx, query, handles, opts.Limit)
		} else {
			partial2 = true
		}
	}

	all := append(phase1Hits, phase2Hits...)
	merged := mergeAndRank(all, opts.Limit)

	phase := "title"
	if len(phase2Hits) > 0 {
		phase = "mixed"
	}

	result := Result{
		Hits:      merged,
		Phase:     phase,
		Partial:   partial1 || partial2,
		Truncated: len(all) > opts.Limit || titleScanTruncated,
	}

	e.setCached(cacheKey, result)
	return result, nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func (e *Engine) scopedHandles(scope []string) []*archive.Handle {
	if len(scope) == 0 {
		return e.registry.SearchableList()
	}
	out := make([]*archive.Handle, 0, len(scope))
	for _, id := range scope {
		if h, ok := e.registry.Get(id); ok {
			out = append(out, h)
		}
	}
	return out
}

type candidate struct {
	hit       Hit
	quality   matchQuality
	ftsScore  float64
	rank      int
	fuzzyRank int // lithammer/fuzzysearch RankMatch distance; lower is tighter. Only meaningful for qualitySubstring.
}

// phase1 runs the parallel per-archive title search (spec.md §4.3 phase 1):
// each archive is searched concurrently under its own title (read) lock, so
// archives never block each other.
func (e *Engine) phase1(ctx context.Context, query string, handles []*archive.Handle, limit int) ([]candidate, bool, bool) {
	if len(handles) == 0 {
		return nil, false, false
	}

	var (
		mu        sync.Mutex
		results   []candidate
		truncated bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(phase1Concurrency)

	for _, h := range handles {
		h := h
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			var entries []titleindex.Entry
			var substrTruncated bool
			err := h.WithTitleLock(func() error {
				prefixHits, err := e.index.PrefixMatch(gctx, h.ID, query, limit)
				if err != nil {
					return err
				}
				entries = prefixHits

				if strings.Contains(strings.TrimSpace(query), " ") {
					substrHits, trunc, err := e.index.TitleSearch(gctx, h.ID, query, limit)
					if err == nil {
						entries = append(entries, substrHits...)
						substrTruncated = trunc
					}
				}
				return nil
			})
			if err != nil {
				log.Debug().Err(err).Str("archive", h.ID).Msg("phase1 title search failed")
				return nil
			}

			folded := stringutils.FoldTitle(query)
			mu.Lock()
			for _, entry := range entries {
				quality, fuzzyRank := classifyQuality(folded, entry.TitleLower)
				results = append(results, candidate{
					hit: Hit{
						ArchiveID: h.ID,
						Path:      entry.Path,
						Title:     entry.Title,
					},
					quality:   quality,
					rank:      h.Meta.SourceRank,
					fuzzyRank: fuzzyRank,
				})
			}
			if substrTruncated {
				truncated = true
			}
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return results, gctx.Err() != nil, truncated
}

// phase2 runs the serialized native full-text pass (spec.md §4.3 phase 2):
// archives are visited in (source_rank desc, archive_id asc) order, each
// one queried through libzim's own embedded suggestion/full-text index
// under the process-wide global archive lock, since libzim's reader is not
// safe for concurrent use across archives.
func (e *Engine) phase2(ctx context.Context, query string, handles []*archive.Handle, limit int) ([]candidate, bool) {
	if len(handles) == 0 {
		return nil, false
	}

	ordered := make([]*archive.Handle, len(handles))
	copy(ordered, handles)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Meta.SourceRank != ordered[j].Meta.SourceRank {
			return ordered[i].Meta.SourceRank > ordered[j].Meta.SourceRank
		}
		return ordered[i].ID < ordered[j].ID
	})

	var results []candidate
	for _, h := range ordered {
		if ctx.Err() != nil {
			return results, true
		}

		var hits []candidate
		err := h.WithNativeLock(func(native *nativezim.Archive) error {
			found, err := native.Suggest(query, int64(limit))
			if err != nil {
				return err
			}
			for _, r := range found {
				hits = append(hits, candidate{
					hit: Hit{
						ArchiveID: h.ID,
						Path:      r.Path,
						Title:     r.Title,
						Snippet:   r.Snippet,
					},
					quality:  qualityFTSOnly,
					ftsScore: float64(r.Score),
					rank:     h.Meta.SourceRank,
				})
			}
			return nil
		})
		if err != nil {
			log.Debug().Err(err).Str("archive", h.ID).Msg("phase2 full text search failed")
			continue
		}
		results = append(results, hits...)
	}

	return results, ctx.Err() != nil
}

// classifyQuality ranks how a hit was produced (spec.md §4.3 step 2: "exact
// >= prefix >= substring >= FTS-only"). The substring/fuzzy tier is scored
// by lithammer/fuzzysearch's RankMatch, which also catches non-contiguous
// fuzzy matches (e.g. "whsp" against "whitespace") that a plain
// strings.Contains would miss; the returned fuzzyRank (lower is a tighter
// match) only has meaning when the quality is qualitySubstring.
func classifyQuality(foldedQuery, titleLower string) (matchQuality, int) {
	switch {
	case titleLower == foldedQuery:
		return qualityExact, 0
	case strings.HasPrefix(titleLower, foldedQuery):
		return qualityPrefix, 0
	default:
		if rank := fuzzy.RankMatch(foldedQuery, titleLower); rank >= 0 {
			return qualitySubstring, rank
		}
		return qualityFTSOnly, 0
	}
}

// mergeAndRank dedupes by (archive_id, canonical path), scores, sorts, and
// truncates to limit (spec.md §4.3 steps 1-5).
func mergeAndRank(candidates []candidate, limit int) []Hit {
	type key struct {
		archiveID string
		path      string
	}

	best := make(map[key]candidate, len(candidates))
	for _, c := range candidates {
		k := key{archiveID: c.hit.ArchiveID, path: pathcmp.CanonicalizeEntryPath(c.hit.Path)}
		existing, ok := best[k]
		if !ok || scoreOf(c) > scoreOf(existing) {
			best[k] = c
		}
	}

	scored := make([]candidate, 0, len(best))
	for _, c := range best {
		scored = append(scored, c)
	}

	sort.Slice(scored, func(i, j int) bool {
		si, sj := scoreOf(scored[i]), scoreOf(scored[j])
		if si != sj {
			return si > sj
		}
		if len(scored[i].hit.Title) != len(scored[j].hit.Title) {
			return len(scored[i].hit.Title) < len(scored[j].hit.Title)
		}
		return scored[i].hit.Title < scored[j].hit.Title
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}

	hits := make([]Hit, len(scored))
	for i, c := range scored {
		c.hit.Score = scoreOf(c)
		hits[i] = c.hit
	}
	return hits
}

// scoreOf computes the weighted score described in spec.md §4.3 step 2:
// match quality dominates, native FTS score and source_rank break ties.
func scoreOf(c candidate) float64 {
	score := float64(c.quality)*100 + c.ftsScore*10 + float64(c.rank)
	if c.quality == qualitySubstring && c.fuzzyRank > 0 {
		// Tighter fuzzy matches (lower rank) score slightly higher within
		// the substring tier, without overtaking source_rank tie-breaks.
		score -= float64(c.fuzzyRank) * 0.01
	}
	return score
}

// cacheKey hashes (normalized_query, scope, limit, fast) per spec.md §4.3's
// result cache key.
func (e *Engine) cacheKey(query string, opts Options) string {
	h := sha256.New()
	h.Write([]byte(stringutils.FoldTitle(query)))
	h.Write([]byte(strings.Join(opts.Scope, ",")))
	h.Write([]byte(strconv.Itoa(opts.Limit)))
	h.Write([]byte(strconv.FormatBool(opts.Fast)))
	return hex.EncodeToString(h.Sum(nil))
}
