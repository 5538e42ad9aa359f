// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strings"

	"github.com/epheterson/zimi/internal/archive"
	"github.com/epheterson/zimi/internal/domain"
	"github.com/epheterson/zimi/internal/nativezim"
)

// ArchiveCatalogHandler serves GET /catalog (spec.md §6: "PDF catalog
// records for zimgit-style archives" — archives built by the zimgit tool
// bundle a PDF per article; this walks the archive's binary namespace and
// reports the PDF entries as a flat catalog).
type ArchiveCatalogHandler struct {
	registry *archive.Registry
}

// NewArchiveCatalogHandler creates an ArchiveCatalogHandler backed by registry.
func NewArchiveCatalogHandler(registry *archive.Registry) *ArchiveCatalogHandler {
	return &ArchiveCatalogHandler{registry: registry}
}

type catalogRecord struct {
	Path  string `json:"path"`
	Title string `json:"title"`
	Size  int64  `json:"size"`
}

type catalogResponse struct {
	Archive string          `json:"archive"`
	Records []catalogRecord `json:"records"`
}

const catalogBatchSize = 2000

// Catalog handles GET /catalog?zim.
func (h *ArchiveCatalogHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	archiveID := r.URL.Query().Get("zim")
	if archiveID == "" {
		RespondError(w, http.StatusBadRequest, "zim is required")
		return
	}

	handle, ok := h.registry.Get(archiveID)
	if !ok {
		RespondDomainError(w, domain.NewError(domain.ErrNotFound, "archive not found", nil))
		return
	}

	var records []catalogRecord
	err := handle.WithNativeLock(func(a *nativezim.Archive) error {
		offset := int64(0)
		for {
			paths, err := a.IteratePaths('I', offset, catalogBatchSize)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				break
			}
			for _, p := range paths {
				info, err := a.EntryByPath(p)
				if err != nil {
					continue
				}
				if !strings.Contains(info.MimeType, "pdf") {
					continue
				}
				records = append(records, catalogRecord{Path: p, Title: info.Title, Size: info.Size})
			}
			offset += int64(len(paths))
			if int64(len(paths)) < catalogBatchSize {
				break
			}
		}
		return nil
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, catalogResponse{Archive: archiveID, Records: records})
}
