// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/epheterson/zimi/internal/reader"
)

// ResolveHandler serves GET and POST /resolve (spec.md §6, §4.5).
type ResolveHandler struct {
	resolver *reader.Resolver
}

// NewResolveHandler creates a ResolveHandler backed by resolver.
func NewResolveHandler(resolver *reader.Resolver) *ResolveHandler {
	return &ResolveHandler{resolver: resolver}
}

type resolveMatchJSON struct {
	Archive *string `json:"archive"`
	Path    string  `json:"path,omitempty"`
}

func matchJSON(m *reader.Match) resolveMatchJSON {
	if m == nil {
		return resolveMatchJSON{Archive: nil}
	}
	archiveID := m.ArchiveID
	return resolveMatchJSON{Archive: &archiveID, Path: m.Path}
}

// Resolve handles GET /resolve?url.
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		RespondError(w, http.StatusBadRequest, "url is required")
		return
	}

	match, err := h.resolver.Resolve(r.Context(), rawURL)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, matchJSON(match))
}

type resolveBatchRequest struct {
	URLs []string `json:"urls"`
}

type resolveBatchResponse struct {
	Results map[string]resolveMatchJSON `json:"results"`
}

// ResolveBatch handles POST /resolve {urls:[...]}.
func (h *ResolveHandler) ResolveBatch(w http.ResponseWriter, r *http.Request) {
	var req resolveBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	matches, err := h.resolver.ResolveBatch(r.Context(), req.URLs)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	resp := resolveBatchResponse{Results: make(map[string]resolveMatchJSON, len(matches))}
	for u, m := range matches {
		resp.Results[u] = matchJSON(m)
	}

	RespondJSON(w, http.StatusOK, resp)
}
