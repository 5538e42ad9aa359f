// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package buildinfo exposes version metadata injected at link time via
// -ldflags, surfaced on GET /health and in the download manager's outbound
// User-Agent header.
package buildinfo

import (
	"encoding/json"
	"fmt"
	"runtime"
)

// Set via -ldflags "-X github.com/epheterson/zimi/internal/buildinfo.Version=..."
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// UserAgent is sent on every outbound HTTP request the download package
// issues (catalog fetches and archive downloads).
var UserAgent string

func init() {
	UserAgent = fmt.Sprintf("zimi/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}

// String renders a human-readable multi-line build summary.
func String() string {
	return fmt.Sprintf("Version: %s\nCommit: %s\nBuild date: %s", Version, Commit, Date)
}

// JSON renders the build info as a {version, commit, date} JSON object.
func JSON() ([]byte, error) {
	return json.Marshal(struct {
		Version string `json:"version"`
		Commit  string `json:"commit"`
		Date    string `json:"date"`
	}{Version, Commit, Date})
}
