// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/epheterson/zimi/internal/buildinfo"
)

type healthResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
}

// Health handles GET /health (spec.md §6).
func Health(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, healthResponse{OK: true, Version: buildinfo.Version})
}
