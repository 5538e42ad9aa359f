// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/epheterson/zimi/internal/reader"
)

// ContentHandler serves GET /w/<zim>/<path>, the raw entry byte stream with
// Range support (spec.md §6). HTML entries additionally have their outbound
// links rewritten to local archives where possible (spec.md §4.5).
type ContentHandler struct {
	reader   *reader.Reader
	resolver *reader.Resolver
	basePath string
}

// NewContentHandler creates a ContentHandler backed by r. resolver and
// basePath may be the zero value; basePath is prepended to rewritten links
// when the server is mounted under a reverse-proxy subpath.
func NewContentHandler(r *reader.Reader, resolver *reader.Resolver, basePath string) *ContentHandler {
	return &ContentHandler{reader: r, resolver: resolver, basePath: basePath}
}

// Content handles GET /w/{archiveID}/*.
func (h *ContentHandler) Content(w http.ResponseWriter, r *http.Request) {
	archiveID := chi.URLParam(r, "archiveID")
	path := chi.URLParam(r, "*")
	if archiveID == "" || path == "" {
		RespondError(w, http.StatusBadRequest, "archive id and path are required")
		return
	}

	data, mime, err := h.reader.Raw(r.Context(), archiveID, path)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	if h.resolver != nil && strings.HasPrefix(mime, "text/html") {
		data = h.resolver.RewriteHTML(r.Context(), data, h.basePath)
	}

	if mime != "" {
		w.Header().Set("Content-Type", mime)
	}
	http.ServeContent(w, r, path, time.Time{}, bytes.NewReader(data))
}
