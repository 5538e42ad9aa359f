// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/epheterson/zimi/internal/archive"
	"github.com/epheterson/zimi/internal/domain"
	"github.com/epheterson/zimi/internal/download"
	"github.com/epheterson/zimi/internal/metrics"
	"github.com/epheterson/zimi/internal/state"
	"github.com/epheterson/zimi/internal/titleindex"
)

// ManageHandler serves the /manage/* administration surface (spec.md §6).
// Every route here is wrapped by middleware.RequireManagePassword at the
// router when a shared password is configured.
type ManageHandler struct {
	registry   *archive.Registry
	index      *titleindex.Store
	manager    *download.Manager
	scheduler  *download.Scheduler
	metrics    *metrics.Manager
	history    *state.History
	catalogURL string
	startedAt  time.Time
}

// NewManageHandler creates a ManageHandler. scheduler may be nil when
// auto-update is disabled.
func NewManageHandler(registry *archive.Registry, index *titleindex.Store, manager *download.Manager, scheduler *download.Scheduler, m *metrics.Manager, history *state.History, catalogURL string) *ManageHandler {
	return &ManageHandler{
		registry:   registry,
		index:      index,
		manager:    manager,
		scheduler:  scheduler,
		metrics:    m,
		history:    history,
		catalogURL: catalogURL,
		startedAt:  time.Now(),
	}
}

type statusResponse struct {
	Archives        int     `json:"archives"`
	ActiveDownloads int     `json:"activeDownloads"`
	AutoUpdate      bool    `json:"autoUpdate"`
	UptimeSeconds   float64 `json:"uptimeSeconds"`
}

// Status handles GET /manage/status.
func (h *ManageHandler) Status(w http.ResponseWriter, r *http.Request) {
	active := 0
	for _, d := range h.manager.List() {
		if d.State == download.StateQueued || d.State == download.StateRunning {
			active++
		}
	}

	RespondJSON(w, http.StatusOK, statusResponse{
		Archives:        len(h.registry.List()),
		ActiveDownloads: active,
		AutoUpdate:      h.scheduler != nil,
		UptimeSeconds:   time.Since(h.startedAt).Seconds(),
	})
}

// Catalog handles GET /manage/catalog: the full upstream Kiwix OPDS
// catalog, as opposed to GET /catalog which lists PDF records inside one
// already-installed archive.
func (h *ManageHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	entries, err := download.FetchCatalog(r.Context(), h.catalogURL)
	if err != nil {
		RespondDomainError(w, domain.NewError(domain.ErrInternal, "fetch catalog", err))
		return
	}
	RespondJSON(w, http.StatusOK, entries)
}

// CheckUpdates handles GET /manage/check-updates.
func (h *ManageHandler) CheckUpdates(w http.ResponseWriter, r *http.Request) {
	if h.scheduler != nil {
		RespondJSON(w, http.StatusOK, h.scheduler.PendingUpdates())
		return
	}
	RespondJSON(w, http.StatusOK, []download.PendingUpdate{})
}

// Downloads handles GET /manage/downloads.
func (h *ManageHandler) Downloads(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.manager.List())
}

type startDownloadRequest struct {
	Slug           string `json:"slug"`
	URL            string `json:"url"`
	TargetFilename string `json:"targetFilename"`
	ExpectedSize   int64  `json:"expectedSize"`
}

// Download handles POST /manage/download {slug, url, targetFilename, expectedSize}.
func (h *ManageHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req startDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Slug == "" || req.URL == "" {
		RespondError(w, http.StatusBadRequest, "slug and url are required")
		return
	}
	target := req.TargetFilename
	if target == "" {
		target = req.Slug + ".zim"
	}

	task, err := h.manager.Start(r.Context(), req.Slug, req.URL, target, req.ExpectedSize, download.KindNew)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	snapshot, _ := h.manager.Status(task.Slug)
	RespondJSON(w, http.StatusOK, snapshot)
}

type updateArchiveRequest struct {
	Archive string `json:"archive"`
}

// Update handles POST /manage/update {archive}: starts a download for the
// pending update already discovered for archive, if any.
func (h *ManageHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateArchiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Archive == "" {
		RespondError(w, http.StatusBadRequest, "archive is required")
		return
	}
	if h.scheduler == nil {
		RespondError(w, http.StatusBadRequest, "auto-update is disabled")
		return
	}

	for _, p := range h.scheduler.PendingUpdates() {
		if p.ArchiveID != req.Archive {
			continue
		}
		task, err := h.manager.Start(r.Context(), p.ArchiveID, p.CatalogURL, p.ArchiveID+".zim", 0, download.KindUpdate)
		if err != nil {
			RespondDomainError(w, err)
			return
		}
		snapshot, _ := h.manager.Status(task.Slug)
		RespondJSON(w, http.StatusOK, snapshot)
		return
	}

	RespondError(w, http.StatusNotFound, "no pending update for "+req.Archive)
}

// Delete handles DELETE /manage/delete?zim.
func (h *ManageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	archiveID := r.URL.Query().Get("zim")
	if archiveID == "" {
		RespondError(w, http.StatusBadRequest, "zim is required")
		return
	}

	handle, ok := h.registry.Get(archiveID)
	if !ok {
		RespondError(w, http.StatusNotFound, "unknown archive: "+archiveID)
		return
	}

	if err := os.Remove(handle.Path); err != nil && !os.IsNotExist(err) {
		RespondDomainError(w, domain.NewError(domain.ErrInternal, "delete archive file", err))
		return
	}

	if err := h.registry.Refresh(r.Context()); err != nil {
		RespondDomainError(w, domain.NewError(domain.ErrInternal, "refresh after delete", err))
		return
	}

	if h.history != nil {
		_ = h.history.Append(state.HistoryDeleted, state.ArchiveSnapshot{ID: archiveID, Title: handle.Title, SizeBytes: handle.Meta.SizeBytes})
	}

	RespondJSON(w, http.StatusOK, nil)
}

type cancelDownloadRequest struct {
	Slug string `json:"slug"`
}

// Cancel handles POST /manage/cancel {slug}.
func (h *ManageHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Slug == "" {
		RespondError(w, http.StatusBadRequest, "slug is required")
		return
	}
	if err := h.manager.Cancel(req.Slug); err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, nil)
}

// Refresh handles POST /manage/refresh: a full archive directory rescan.
func (h *ManageHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Refresh(r.Context()); err != nil {
		RespondDomainError(w, domain.NewError(domain.ErrInternal, "refresh", err))
		return
	}
	RespondJSON(w, http.StatusOK, nil)
}

// Stats handles GET /manage/stats: the JSON metrics snapshot (spec.md §4.6).
func (h *ManageHandler) Stats(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.metrics.Snapshot()
	if err != nil {
		RespondDomainError(w, domain.NewError(domain.ErrInternal, "gather metrics", err))
		return
	}
	RespondJSON(w, http.StatusOK, snapshot)
}

type buildFTSRequest struct {
	Archive string `json:"archive"`
}

// BuildFTS handles POST /manage/build-fts {archive}: builds the full-text
// index for one archive in place from its already-indexed entries, without
// rebuilding those entries (spec.md §4.2). Used to recover an archive that
// was indexed with its entry count above the FTS build-time limit.
func (h *ManageHandler) BuildFTS(w http.ResponseWriter, r *http.Request) {
	var req buildFTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Archive == "" {
		RespondError(w, http.StatusBadRequest, "archive is required")
		return
	}
	if err := h.index.BuildFTS(r.Context(), req.Archive); err != nil {
		RespondDomainError(w, domain.NewError(domain.ErrInternal, "build fts index", err))
		return
	}
	RespondJSON(w, http.StatusOK, nil)
}

type autoUpdateResponse struct {
	Enabled bool `json:"enabled"`
}

// AutoUpdate handles GET /manage/auto-update (current state) and
// POST /manage/auto-update {enabled} (toggle). The scheduler's cadence is
// fixed at startup from auto_update_freq; only the running/stopped state
// can be changed without a restart.
func (h *ManageHandler) AutoUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		RespondJSON(w, http.StatusOK, autoUpdateResponse{Enabled: h.scheduler != nil})
		return
	}

	var req autoUpdateResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if h.scheduler == nil {
		RespondError(w, http.StatusBadRequest, "auto-update was not configured at startup")
		return
	}
	if req.Enabled {
		h.scheduler.Start()
	} else {
		h.scheduler.Stop()
	}
	RespondJSON(w, http.StatusOK, autoUpdateResponse{Enabled: req.Enabled})
}
