// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/epheterson/zimi/internal/archive"
	"github.com/epheterson/zimi/internal/download"
	"github.com/epheterson/zimi/internal/titleindex"
)

// ListHandler serves GET /list (spec.md §6).
type ListHandler struct {
	index     *titleindex.Store
	registry  *archive.Registry
	scheduler *download.Scheduler
}

// NewListHandler creates a ListHandler backed by index. scheduler may be
// nil when auto-update is disabled, in which case update_available is
// always false.
func NewListHandler(index *titleindex.Store, registry *archive.Registry, scheduler *download.Scheduler) *ListHandler {
	return &ListHandler{index: index, registry: registry, scheduler: scheduler}
}

type archiveListEntry struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Language        string `json:"language"`
	Entries         int64  `json:"entries"`
	Size            int64  `json:"size"`
	Category        string `json:"category"`
	HasFTS          bool   `json:"has_fts"`
	Quarantined     bool   `json:"quarantined"`
	UpdateAvailable bool   `json:"update_available"`
}

// List handles GET /list.
func (h *ListHandler) List(w http.ResponseWriter, r *http.Request) {
	metas, err := h.index.Archives(r.Context())
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	pendingByArchive := map[string]bool{}
	if h.scheduler != nil {
		for _, p := range h.scheduler.PendingUpdates() {
			pendingByArchive[p.ArchiveID] = true
		}
	}

	out := make([]archiveListEntry, len(metas))
	for i, m := range metas {
		var quarantined bool
		if h, ok := h.registry.Get(m.ID); ok {
			quarantined = h.Quarantined
		}
		out[i] = archiveListEntry{
			ID:              m.ID,
			Title:           m.Title,
			Description:     m.Description,
			Language:        m.Language,
			Entries:         m.ArticleCount,
			Size:            m.SizeBytes,
			Category:        string(m.Category),
			HasFTS:          !m.FTSSkipped && !quarantined,
			Quarantined:     quarantined,
			UpdateAvailable: pendingByArchive[m.ID],
		}
	}

	RespondJSON(w, http.StatusOK, out)
}
