// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strings"

	"github.com/epheterson/zimi/internal/suggest"
)

// SuggestHandler serves GET /suggest (spec.md §6, §4.4).
type SuggestHandler struct {
	cache *suggest.Cache
}

// NewSuggestHandler creates a SuggestHandler backed by cache.
func NewSuggestHandler(cache *suggest.Cache) *SuggestHandler {
	return &SuggestHandler{cache: cache}
}

type suggestResultJSON struct {
	Archive string `json:"archive"`
	Path    string `json:"path"`
	Title   string `json:"title"`
}

type suggestResponse struct {
	Results []suggestResultJSON `json:"results"`
}

// Suggest handles GET /suggest?q&limit&zim&collection.
//
// collection scoping is intentionally not honored here: suggestions are
// cheap per-archive cache lookups (spec.md §4.4), so scope is just the zim
// id or "every archive"; collections are a search-time concept.
func (h *SuggestHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		RespondError(w, http.StatusBadRequest, "q is required")
		return
	}

	archiveID := r.URL.Query().Get("zim")
	limit := queryInt(r, "limit", 10)

	results, err := h.cache.Suggest(r.Context(), archiveID, query, limit)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	resp := suggestResponse{Results: make([]suggestResultJSON, len(results))}
	for i, res := range results {
		resp.Results[i] = suggestResultJSON{Archive: res.ArchiveID, Path: res.Path, Title: res.Title}
	}
	RespondJSON(w, http.StatusOK, resp)
}
