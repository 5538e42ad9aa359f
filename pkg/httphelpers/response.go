// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package httphelpers provides small HTTP utilities shared across the API
// server and the download manager's outbound HTTP client.
package httphelpers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// DrainAndClose consumes the remaining response body and closes it to allow connection reuse.
func DrainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// NormalizeBasePath trims whitespace and trailing slashes from a configured
// BaseURL path prefix, ensuring it either is empty or starts with exactly one
// leading slash and carries no trailing slash. Used when mounting the router
// under a reverse-proxy subpath.
func NormalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimRight(p, "/")
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// JoinBasePath joins a normalized base path with a suffix, producing a clean
// absolute path. Used to rewrite links in catalog/OPDS responses so they
// resolve correctly behind a reverse-proxy subpath.
func JoinBasePath(basePath, suffix string) string {
	base := NormalizeBasePath(basePath)
	suffix = strings.TrimPrefix(suffix, "/")

	if suffix == "" {
		if base == "" {
			return "/"
		}
		return base
	}

	return base + "/" + suffix
}

// WriteJSON marshals v and writes it as the response body with the given
// status code and a JSON content type. Marshal errors are logged by the
// caller; WriteJSON itself only reports whether the write succeeded.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}

// WriteJSONError writes a {"error": message} JSON body with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, message string) error {
	return WriteJSON(w, status, map[string]string{"error": message})
}
