// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package pathcmp provides path normalization helpers used for cross-platform
// filesystem path comparisons (archive directory scanning) and for
// canonicalizing ZIM entry paths so the same target reached via different
// URL forms dedupes to one search/suggestion result.
package pathcmp

import (
	"net/url"
	"path"
	"strings"
)

// IsWindowsDriveAbs returns true if p is a Windows absolute path (e.g., C:/...).
// It requires a drive letter, colon, and forward slash. Backslashes should be
// normalized before calling.
func IsWindowsDriveAbs(p string) bool {
	if len(p) < 3 {
		return false
	}
	c := p[0]
	return ((c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')) && p[1] == ':' && p[2] == '/'
}

// NormalizePath normalizes a filesystem path for comparison by:
// - Converting backslashes to forward slashes
// - Removing trailing slashes (preserving Windows drive roots like C:/)
// - Cleaning the path (removing . and .. where possible)
//
// Used when comparing archive directory entries discovered by the registry's
// directory scan against paths recorded in the download manager's state.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	// Convert backslashes to forward slashes for cross-platform comparison.
	p = strings.ReplaceAll(p, "\\", "/")

	// Handle Windows drive paths specially to preserve C:/ (path.Clean turns it into C:).
	if len(p) >= 2 && ((p[0] >= 'A' && p[0] <= 'Z') || (p[0] >= 'a' && p[0] <= 'z')) && p[1] == ':' {
		drive := p[:2] // "C:"
		rest := p[2:]  // "/foo/bar" or "/" or "" (drive-relative)

		// Bare drive letter (C:) is drive-relative.
		if rest == "" {
			return drive
		}

		rest = path.Clean(rest)
		// Ensure drive root stays as C:/ not C:
		if rest == "/" || rest == "." {
			return drive + "/"
		}
		return drive + rest
	}

	// Non-Windows path: standard cleaning.
	p = path.Clean(p)
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// NormalizePathFold is a case-folded version of NormalizePath for case-insensitive comparisons.
func NormalizePathFold(p string) string {
	return strings.ToLower(NormalizePath(p))
}

// CanonicalizeEntryPath reduces a ZIM entry path (or a "/w/<zim>/<path>" request
// path) to the form used as the dedup key during search ranking (spec.md §4.3
// step 1: "paths are canonicalized before dedup"):
//   - strips any #fragment suffix
//   - percent-decodes the path
//   - drops a leading "A/" user-content namespace prefix, since the same
//     article is often linked both with and without it
//   - drops a trailing "index.html" / "Main_Page" style default-entry suffix
//     is NOT performed here; only namespace/fragment/encoding variance is
//     collapsed, never semantic aliasing
func CanonicalizeEntryPath(p string) string {
	if p == "" {
		return ""
	}

	if i := strings.IndexByte(p, '#'); i >= 0 {
		p = p[:i]
	}

	if decoded, err := url.PathUnescape(p); err == nil {
		p = decoded
	}

	p = strings.TrimPrefix(p, "/")
	p = strings.TrimPrefix(p, "A/")

	return p
}
