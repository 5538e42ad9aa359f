// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package server wires every component described in spec.md §2 (archive
// registry, title index, search engine, caches, reader/resolver, download
// manager, persistent state) into the HTTP surface and owns their
// lifecycle: startup order, graceful shutdown, and the auto-update
// scheduler.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/epheterson/zimi/internal/api"
	"github.com/epheterson/zimi/internal/archive"
	"github.com/epheterson/zimi/internal/auth"
	"github.com/epheterson/zimi/internal/config"
	"github.com/epheterson/zimi/internal/domain"
	"github.com/epheterson/zimi/internal/download"
	"github.com/epheterson/zimi/internal/metrics"
	"github.com/epheterson/zimi/internal/reader"
	"github.com/epheterson/zimi/internal/search"
	"github.com/epheterson/zimi/internal/state"
	"github.com/epheterson/zimi/internal/suggest"
	"github.com/epheterson/zimi/internal/titleindex"
)

// Server owns every long-lived zimi component and the *http.Server
// fronting them.
type Server struct {
	cfg       *config.AppConfig
	httpSrv   *http.Server
	registry  *archive.Registry
	index     *titleindex.Store
	manager   *download.Manager
	scheduler *download.Scheduler
}

// New assembles the full dependency graph in the order spec.md §2 implies:
// persistent state, title index, archive registry (which depends on the
// index for rebuilds), search/suggest caches, reader/resolver, download
// manager, then the HTTP router on top of all of it.
func New(cfg *config.AppConfig) (*Server, error) {
	c := cfg.Config

	if err := state.MigrateLegacyLayout(c.ArchiveDir, c.DataDir); err != nil {
		return nil, fmt.Errorf("migrate legacy state: %w", err)
	}

	passwordStore := state.NewPasswordFile(c.DataDir)
	authService, err := auth.NewService(passwordStore)
	if err != nil {
		return nil, fmt.Errorf("init auth service: %w", err)
	}
	if c.ManagePassword != "" {
		if err := authService.SetPassword(context.Background(), c.ManagePassword); err != nil {
			return nil, fmt.Errorf("apply configured management password: %w", err)
		}
	}

	index, err := titleindex.Open(cfg.GetDatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open title index: %w", err)
	}

	var engine *search.Engine
	var suggestCache *suggest.Cache

	registry, err := archive.New(archive.Options{
		ArchiveDir: c.ArchiveDir,
		Index:      index,
		OnChange: func() {
			if engine != nil {
				engine.InvalidateCache()
			}
			if suggestCache != nil {
				suggestCache.Clear()
			}
		},
	})
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("init archive registry: %w", err)
	}

	engine = search.New(registry, index)

	suggestCache = suggest.New(index)
	rdr := reader.New(registry)
	resolver := reader.NewResolver(registry, index)

	history, err := state.NewHistory(c.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	collections, err := state.NewCollections(c.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open collections: %w", err)
	}

	manager := download.New(c.ArchiveDir, registry, history)
	if err := manager.CleanStaleTmpFiles(c.ArchiveDir); err != nil {
		log.Warn().Err(err).Msg("stale .tmp cleanup reported errors")
	}

	var scheduler *download.Scheduler
	if c.AutoUpdate {
		scheduler = download.NewScheduler(manager, index, download.DefaultCatalogURL, domain.ParseUpdateFrequency(c.AutoUpdateFreq))
	}

	metricsManager := metrics.NewManager()

	router := api.NewRouter(&api.Dependencies{
		Config:      c,
		Registry:    registry,
		Index:       index,
		Engine:      engine,
		Suggest:     suggestCache,
		Reader:      rdr,
		Resolver:    resolver,
		Collections: collections,
		Manager:     manager,
		Scheduler:   scheduler,
		Metrics:     metricsManager,
		History:     history,
		Auth:        authService,
		CatalogURL:  download.DefaultCatalogURL,
	})

	addr := fmt.Sprintf("%s:%d", c.Host, c.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{
		cfg:       cfg,
		httpSrv:   httpSrv,
		registry:  registry,
		index:     index,
		manager:   manager,
		scheduler: scheduler,
	}, nil
}

// Run starts the HTTP listener and the auto-update scheduler (if enabled),
// blocking until ctx is cancelled, then shuts both down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.scheduler != nil {
		s.scheduler.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.httpSrv.Addr).Msg("zimi listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			s.shutdown()
			return err
		}
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.scheduler != nil {
		s.scheduler.Stop()
	}

	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown did not complete cleanly")
	}

	if err := s.registry.Close(); err != nil {
		log.Warn().Err(err).Msg("archive registry close reported errors")
	}

	if err := s.index.Close(); err != nil {
		log.Warn().Err(err).Msg("title index close reported errors")
	}

	return nil
}
