// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epheterson/zimi/internal/auth"
)

type memoryStore struct {
	hash string
	ok   bool
}

func (m *memoryStore) Load() (string, bool, error) { return m.hash, m.ok, nil }
func (m *memoryStore) Save(hash string) error {
	m.hash = hash
	m.ok = hash != ""
	return nil
}

func TestRequireManagePasswordPassesThroughWhenDisabled(t *testing.T) {
	t.Parallel()

	svc, err := auth.NewService(&memoryStore{})
	require.NoError(t, err)

	handler := RequireManagePassword(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/manage/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireManagePasswordRejectsMissingOrWrong(t *testing.T) {
	t.Parallel()

	svc, err := auth.NewService(&memoryStore{})
	require.NoError(t, err)
	require.NoError(t, svc.SetPassword(context.Background(), "hunter2"))

	handler := RequireManagePassword(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/manage/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/manage/status", nil)
	req.Header.Set(managePasswordHeader, "wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireManagePasswordAcceptsCorrectPassword(t *testing.T) {
	t.Parallel()

	svc, err := auth.NewService(&memoryStore{})
	require.NoError(t, err)
	require.NoError(t, svc.SetPassword(context.Background(), "hunter2"))

	handler := RequireManagePassword(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/manage/status", nil)
	req.Header.Set(managePasswordHeader, "hunter2")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
