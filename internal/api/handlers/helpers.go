// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package handlers implements the JSON/HTTP endpoints described in spec.md
// §6: search, suggest, read, list/catalog, resolve, collections, health,
// raw content, and the /manage/* management surface.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/epheterson/zimi/internal/domain"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string           `json:"error"`
	Kind  domain.ErrorKind `json:"kind,omitempty"`
}

// RespondJSON writes data as a JSON response with the given status.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("failed to encode JSON response")
		}
	}
}

// RespondError writes a plain error response at status.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, errorBody{Error: message})
}

// statusForKind maps a domain.ErrorKind to its HTTP status code in exactly
// one place (spec.md §6, §7).
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrBadRequest:
		return http.StatusBadRequest
	case domain.ErrUnauthorized:
		return http.StatusUnauthorized
	case domain.ErrNotFound, domain.ErrArchiveGone:
		return http.StatusNotFound
	case domain.ErrConflict:
		return http.StatusConflict
	case domain.ErrRateLimited:
		return http.StatusTooManyRequests
	case domain.ErrDownloadFailed, domain.ErrIndexUnavailable, domain.ErrInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// RespondDomainError inspects err for a *domain.Error and writes the status
// and body that kind maps to, falling back to 500 for anything else.
func RespondDomainError(w http.ResponseWriter, err error) {
	var derr *domain.Error
	if errors.As(err, &derr) {
		RespondJSON(w, statusForKind(derr.Kind), errorBody{Error: derr.Message, Kind: derr.Kind})
		return
	}
	log.Error().Err(err).Msg("unhandled internal error")
	RespondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Kind: domain.ErrInternal})
}

// queryInt parses an integer query parameter, returning def if absent or
// invalid.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// queryBool parses a boolean-ish query parameter ("1", "true") , returning
// def if absent.
func queryBool(r *http.Request, name string, def bool) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return def
	}
}
