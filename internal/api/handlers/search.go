// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/epheterson/zimi/internal/reader"
	"github.com/epheterson/zimi/internal/search"
	"github.com/epheterson/zimi/internal/state"
)

// snippetFillConcurrency bounds how many archives are asked for a snippet
// at once when include_snippets is set (spec.md §4.5 resolver uses the
// same cap for the same reason: bounded fan-out over native archive reads).
const snippetFillConcurrency = 8

// SearchHandler serves GET /search (spec.md §6).
type SearchHandler struct {
	engine      *search.Engine
	collections *state.Collections
	reader      *reader.Reader
}

// NewSearchHandler creates a SearchHandler backed by engine. reader may be
// nil, in which case include_snippets has no effect.
func NewSearchHandler(engine *search.Engine, collections *state.Collections, rdr *reader.Reader) *SearchHandler {
	return &SearchHandler{engine: engine, collections: collections, reader: rdr}
}

// scopeFromQuery merges the comma-separated zim= param with a named
// collection's archive ids, if any (spec.md §6 "collection" query param).
func (h *SearchHandler) scopeFromQuery(r *http.Request) []string {
	var scope []string
	if zim := r.URL.Query().Get("zim"); zim != "" {
		scope = append(scope, strings.Split(zim, ",")...)
	}
	if name := r.URL.Query().Get("collection"); name != "" && h.collections != nil {
		if ids, ok := h.collections.Get(name); ok {
			scope = append(scope, ids...)
		}
	}
	return scope
}

type searchResultJSON struct {
	Archive string  `json:"archive"`
	Path    string  `json:"path"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score"`
}

type searchResponse struct {
	Results []searchResultJSON `json:"results"`
	Phase   string             `json:"phase"`
	Partial bool               `json:"partial"`
}

// Search handles GET /search?q&limit&zim&fast&collection.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		RespondError(w, http.StatusBadRequest, "q is required")
		return
	}

	opts := search.Options{
		Limit:           queryInt(r, "limit", 20),
		Fast:            queryBool(r, "fast", false),
		Scope:           h.scopeFromQuery(r),
		IncludeSnippets: queryBool(r, "include_snippets", false),
	}

	result, err := h.engine.Search(r.Context(), query, opts)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	if opts.IncludeSnippets && h.reader != nil {
		h.fillSnippets(r.Context(), result.Hits)
	}

	resp := searchResponse{
		Results: make([]searchResultJSON, len(result.Hits)),
		Phase:   result.Phase,
		Partial: result.Partial,
	}
	for i, hit := range result.Hits {
		resp.Results[i] = searchResultJSON{
			Archive: hit.ArchiveID,
			Path:    hit.Path,
			Title:   hit.Title,
			Snippet: hit.Snippet,
			Score:   hit.Score,
		}
	}

	RespondJSON(w, http.StatusOK, resp)
}

// fillSnippets fetches a snippet for every hit in the final, already
// truncated result set that doesn't already carry one from phase 2's
// native full-text match (spec.md §4.3: "filled in only for the final
// truncated set, never for discarded candidates").
func (h *SearchHandler) fillSnippets(ctx context.Context, hits []search.Hit) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snippetFillConcurrency)

	for i := range hits {
		if hits[i].Snippet != "" {
			continue
		}
		i := i
		g.Go(func() error {
			snippet, err := h.reader.Snippet(gctx, hits[i].ArchiveID, hits[i].Path)
			if err == nil {
				hits[i].Snippet = snippet
			}
			return nil
		})
	}

	_ = g.Wait()
}
