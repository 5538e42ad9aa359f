// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package download

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/epheterson/zimi/internal/domain"
	"github.com/epheterson/zimi/internal/titleindex"
)

// PendingUpdate pairs an installed archive with the newer catalog entry
// available for it (spec.md §4.7 "Update detection").
type PendingUpdate struct {
	ArchiveID  string `json:"archiveId"`
	Installed  string `json:"installedFilename"`
	Available  string `json:"availableDateStamp"`
	CatalogURL string `json:"downloadUrl"`
}

// CheckUpdates compares every installed archive against catalogURL,
// returning the ones with a newer date-stamped version available. Surfaced
// at GET /manage/check-updates and on archive listings (spec.md §4.7).
func CheckUpdates(ctx context.Context, catalogURL string, installed []titleindex.ArchiveMeta) ([]PendingUpdate, error) {
	entries, err := FetchCatalog(ctx, catalogURL)
	if err != nil {
		return nil, err
	}

	byBase := make(map[string]CatalogEntry, len(entries))
	for _, e := range entries {
		byBase[baseSlug(e.Slug)] = e
	}

	var pending []PendingUpdate
	for _, a := range installed {
		entry, ok := byBase[baseSlug(a.ID)]
		if !ok {
			continue
		}
		if UpdateAvailable(a.ID, entry.DateStamp) {
			pending = append(pending, PendingUpdate{
				ArchiveID:  a.ID,
				Installed:  a.ID,
				Available:  entry.DateStamp,
				CatalogURL: entry.DownloadURL,
			})
		}
	}
	return pending, nil
}

// Scheduler wakes on a configured cadence and runs
// check-updates -> download newer -> replace -> refresh, serialized so only
// one auto-update run is ever active (spec.md §4.7 "Auto-update scheduler").
type Scheduler struct {
	manager    *Manager
	index      *titleindex.Store
	catalogURL string
	freq       domain.UpdateFrequency

	running atomic.Bool
	stop    chan struct{}

	pendingMu sync.RWMutex
	pending   []PendingUpdate
}

// NewScheduler creates a Scheduler; call Start to begin its timer.
func NewScheduler(manager *Manager, index *titleindex.Store, catalogURL string, freq domain.UpdateFrequency) *Scheduler {
	return &Scheduler{
		manager:    manager,
		index:      index,
		catalogURL: catalogURL,
		freq:       freq,
		stop:       make(chan struct{}),
	}
}

func intervalFor(freq domain.UpdateFrequency) time.Duration {
	switch freq {
	case domain.UpdateFreqDaily:
		return 24 * time.Hour
	case domain.UpdateFreqMonthly:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Start launches the background timer goroutine. Call Stop to halt it.
func (s *Scheduler) Start() {
	go s.loop()
}

// Stop halts the scheduler's timer.
func (s *Scheduler) Stop() {
	close(s.stop)
}

// PendingUpdates returns the pending updates found by the most recent
// completed run, used by GET /list and GET /manage/check-updates to avoid
// hitting the catalog on every request.
func (s *Scheduler) PendingUpdates() []PendingUpdate {
	s.pendingMu.RLock()
	defer s.pendingMu.RUnlock()
	return append([]PendingUpdate(nil), s.pending...)
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(intervalFor(s.freq))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stop:
			return
		}
	}
}

// RunOnce executes a single check-updates -> download -> refresh pass,
// skipping entirely if a previous run is still in flight.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		log.Debug().Msg("auto-update already running, skipping this cycle")
		return
	}
	defer s.running.Store(false)

	installed, err := s.index.Archives(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("auto-update: failed to list installed archives")
		return
	}

	pending, err := CheckUpdates(ctx, s.catalogURL, installed)
	if err != nil {
		log.Warn().Err(err).Msg("auto-update: check-updates failed")
		return
	}

	s.pendingMu.Lock()
	s.pending = pending
	s.pendingMu.Unlock()

	for _, p := range pending {
		task, err := s.manager.Start(ctx, p.ArchiveID, p.CatalogURL, p.ArchiveID+".zim", 0, KindUpdate)
		if err != nil {
			log.Warn().Err(err).Str("archive", p.ArchiveID).Msg("auto-update: could not start download")
			continue
		}
		log.Info().Str("archive", p.ArchiveID).Str("task", fmt.Sprintf("%p", task)).Msg("auto-update: downloading newer version")
	}
}
