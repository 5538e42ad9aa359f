// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package api assembles the HTTP surface described in spec.md §6: a chi
// router wiring the search/suggest/read/list/resolve/collections/content
// handlers and the /manage/* administration surface, behind a middleware
// stack of request logging, panic recovery, compression, CORS, metrics, and
// per-IP rate limiting.
package api

import (
	"net/http"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/epheterson/zimi/internal/api/handlers"
	apimiddleware "github.com/epheterson/zimi/internal/api/middleware"
	"github.com/epheterson/zimi/internal/archive"
	"github.com/epheterson/zimi/internal/auth"
	"github.com/epheterson/zimi/internal/domain"
	"github.com/epheterson/zimi/internal/download"
	"github.com/epheterson/zimi/internal/metrics"
	"github.com/epheterson/zimi/internal/reader"
	"github.com/epheterson/zimi/internal/search"
	"github.com/epheterson/zimi/internal/state"
	"github.com/epheterson/zimi/internal/suggest"
	"github.com/epheterson/zimi/internal/titleindex"
	"github.com/epheterson/zimi/pkg/httphelpers"
)

// Dependencies holds everything the router needs to build its handlers.
type Dependencies struct {
	Config      *domain.Config
	Registry    *archive.Registry
	Index       *titleindex.Store
	Engine      *search.Engine
	Suggest     *suggest.Cache
	Reader      *reader.Reader
	Resolver    *reader.Resolver
	Collections *state.Collections
	Manager     *download.Manager
	Scheduler   *download.Scheduler // nil when auto-update is disabled
	Metrics     *metrics.Manager
	History     *state.History
	Auth        *auth.Service
	CatalogURL  string
}

// NewRouter builds the full zimi HTTP surface.
func NewRouter(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(apimiddleware.HTTPLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)

	if compressor, err := httpcompression.DefaultAdapter(); err != nil {
		log.Error().Err(err).Msg("failed to create HTTP compression adapter")
	} else {
		r.Use(compressor)
	}

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
	})
	r.Use(corsMiddleware.Handler)

	if deps.Metrics != nil {
		r.Use(metrics.Middleware(deps.Metrics))
	}

	rateLimiter := apimiddleware.NewRateLimiter(deps.Config.RateLimit)
	r.Use(rateLimiter.Middleware)

	searchHandler := handlers.NewSearchHandler(deps.Engine, deps.Collections, deps.Reader)
	suggestHandler := handlers.NewSuggestHandler(deps.Suggest)
	readHandler := handlers.NewReadHandler(deps.Reader)
	listHandler := handlers.NewListHandler(deps.Index, deps.Registry, deps.Scheduler)
	catalogHandler := handlers.NewArchiveCatalogHandler(deps.Registry)
	resolveHandler := handlers.NewResolveHandler(deps.Resolver)
	collectionsHandler := handlers.NewCollectionsHandler(deps.Collections)
	contentHandler := handlers.NewContentHandler(deps.Reader, deps.Resolver, httphelpers.NormalizeBasePath(deps.Config.BaseURL))

	r.Get("/search", searchHandler.Search)
	r.Get("/suggest", suggestHandler.Suggest)
	r.Get("/read", readHandler.Read)
	r.Get("/snippet", readHandler.Snippet)
	r.Get("/random", readHandler.Random)
	r.Get("/list", listHandler.List)
	r.Get("/catalog", catalogHandler.Catalog)
	r.Get("/resolve", resolveHandler.Resolve)
	r.Post("/resolve", resolveHandler.ResolveBatch)
	r.Get("/health", handlers.Health)
	r.Get("/w/{archiveID}/*", contentHandler.Content)

	r.Route("/collections", func(r chi.Router) {
		r.Get("/", collectionsHandler.List)
		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.RequireManagePassword(deps.Auth))
			r.Post("/", collectionsHandler.Set)
			r.Delete("/", collectionsHandler.Delete)
		})
	})

	if deps.Config.ManageEnabled {
		manageHandler := handlers.NewManageHandler(deps.Registry, deps.Index, deps.Manager, deps.Scheduler, deps.Metrics, deps.History, deps.CatalogURL)

		r.Route("/manage", func(r chi.Router) {
			r.Use(apimiddleware.RequireManagePassword(deps.Auth))

			r.Get("/status", manageHandler.Status)
			r.Get("/catalog", manageHandler.Catalog)
			r.Get("/check-updates", manageHandler.CheckUpdates)
			r.Get("/downloads", manageHandler.Downloads)
			r.Post("/download", manageHandler.Download)
			r.Post("/update", manageHandler.Update)
			r.Delete("/delete", manageHandler.Delete)
			r.Post("/cancel", manageHandler.Cancel)
			r.Post("/refresh", manageHandler.Refresh)
			r.Get("/stats", manageHandler.Stats)
			r.Post("/build-fts", manageHandler.BuildFTS)
			r.Get("/auto-update", manageHandler.AutoUpdate)
			r.Post("/auto-update", manageHandler.AutoUpdate)
		})
	}

	basePath := httphelpers.NormalizeBasePath(deps.Config.BaseURL)
	if basePath == "" {
		return r
	}

	// Deployments behind a reverse-proxy subpath (config.toml's baseUrl)
	// mount the whole API under that prefix instead of at "/", so generated
	// links and the out-of-scope web UI can share one external path space.
	root := chi.NewRouter()
	root.Mount(basePath, r)
	return root
}
