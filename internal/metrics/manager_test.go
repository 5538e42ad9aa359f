// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerObserveAndSnapshot(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.Observe("/search", http.MethodGet, 200, 10*time.Millisecond)
	m.Observe("/search", http.MethodGet, 200, 30*time.Millisecond)
	m.Observe("/search", http.MethodGet, 500, 5*time.Millisecond)
	m.Observe("/read", http.MethodGet, 404, 2*time.Millisecond)

	snap, err := m.Snapshot()
	require.NoError(t, err)
	assert.Greater(t, snap.UptimeSeconds, 0.0)

	byRoute := map[string]RouteStats{}
	for _, rs := range snap.Routes {
		byRoute[rs.Route] = rs
	}

	search := byRoute["/search"]
	assert.Equal(t, uint64(3), search.Total)
	assert.Equal(t, uint64(1), search.By5xx)
	assert.Equal(t, uint64(3), search.SampleCount)

	read := byRoute["/read"]
	assert.Equal(t, uint64(1), read.By4xx)
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	t.Parallel()

	m := NewManager()

	r := chi.NewRouter()
	r.Use(Middleware(m))
	r.Get("/w/{archiveID}/*", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/w/wikipedia_en/A/Go", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	snap, err := m.Snapshot()
	require.NoError(t, err)

	var found bool
	for _, rs := range snap.Routes {
		if rs.Route == "/w/{archiveID}/*" {
			found = true
			assert.Equal(t, uint64(1), rs.Total)
		}
	}
	assert.True(t, found, "route pattern, not raw path, should be recorded")
}
