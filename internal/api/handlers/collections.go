// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/epheterson/zimi/internal/state"
)

// CollectionsHandler serves GET/POST/DELETE /collections (spec.md §6).
// Mutating routes (POST/DELETE) are wrapped with
// middleware.RequireManagePassword by the router when a shared password is
// configured.
type CollectionsHandler struct {
	collections *state.Collections
}

// NewCollectionsHandler creates a CollectionsHandler backed by collections.
func NewCollectionsHandler(collections *state.Collections) *CollectionsHandler {
	return &CollectionsHandler{collections: collections}
}

type collectionJSON struct {
	Name      string   `json:"name"`
	ArchiveID []string `json:"archives"`
}

// List handles GET /collections, or GET /collections?name for a single one.
func (h *CollectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		ids, ok := h.collections.Get(name)
		if !ok {
			RespondError(w, http.StatusNotFound, "unknown collection: "+name)
			return
		}
		RespondJSON(w, http.StatusOK, collectionJSON{Name: name, ArchiveID: ids})
		return
	}

	names := h.collections.List()
	out := make([]collectionJSON, len(names))
	for i, name := range names {
		ids, _ := h.collections.Get(name)
		out[i] = collectionJSON{Name: name, ArchiveID: ids}
	}
	RespondJSON(w, http.StatusOK, out)
}

type setCollectionRequest struct {
	Name    string   `json:"name"`
	Archive []string `json:"archives"`
}

// Set handles POST /collections {name, archives}.
func (h *CollectionsHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req setCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		RespondError(w, http.StatusBadRequest, "name and archives are required")
		return
	}

	if err := h.collections.Set(req.Name, req.Archive); err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, collectionJSON{Name: req.Name, ArchiveID: req.Archive})
}

// Delete handles DELETE /collections?name.
func (h *CollectionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		RespondError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := h.collections.Delete(name); err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, nil)
}
