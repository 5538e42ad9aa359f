// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/epheterson/zimi/internal/domain"
)

// errorBody mirrors handlers.errorBody; middleware runs outside the handler
// chain so it keeps its own minimal copy rather than importing handlers.
type errorBody struct {
	Error string           `json:"error"`
	Kind  domain.ErrorKind `json:"kind"`
}

func writeError(w http.ResponseWriter, status int, kind domain.ErrorKind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: message, Kind: kind})
}
