// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/epheterson/zimi/internal/reader"
)

// ReadHandler serves GET /read, GET /snippet, and GET /random (spec.md §6, §4.5).
type ReadHandler struct {
	reader *reader.Reader
}

// NewReadHandler creates a ReadHandler backed by r.
func NewReadHandler(r *reader.Reader) *ReadHandler {
	return &ReadHandler{reader: r}
}

type articleResponse struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Mime  string `json:"mime"`
}

// Read handles GET /read?zim&path&max_length.
func (h *ReadHandler) Read(w http.ResponseWriter, r *http.Request) {
	zim := r.URL.Query().Get("zim")
	path := r.URL.Query().Get("path")
	if zim == "" || path == "" {
		RespondError(w, http.StatusBadRequest, "zim and path are required")
		return
	}

	maxLength := queryInt(r, "max_length", 0)
	article, err := h.reader.Read(r.Context(), zim, path, maxLength)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, articleResponse{Title: article.Title, Text: article.Text, Mime: article.Mime})
}

type snippetResponse struct {
	Snippet string `json:"snippet"`
}

// Snippet handles GET /snippet?zim&path.
func (h *ReadHandler) Snippet(w http.ResponseWriter, r *http.Request) {
	zim := r.URL.Query().Get("zim")
	path := r.URL.Query().Get("path")
	if zim == "" || path == "" {
		RespondError(w, http.StatusBadRequest, "zim and path are required")
		return
	}

	snippet, err := h.reader.Snippet(r.Context(), zim, path)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, snippetResponse{Snippet: snippet})
}

type randomResponse struct {
	Archive string `json:"archive"`
	Path    string `json:"path"`
	Title   string `json:"title"`
}

// Random handles GET /random?zim.
func (h *ReadHandler) Random(w http.ResponseWriter, r *http.Request) {
	zim := r.URL.Query().Get("zim")

	archiveID, path, title, err := h.reader.Random(r.Context(), zim)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, randomResponse{Archive: archiveID, Path: path, Title: title})
}
