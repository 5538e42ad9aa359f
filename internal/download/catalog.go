// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package download

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/rs/zerolog/log"

	"github.com/epheterson/zimi/internal/buildinfo"
)

// DefaultCatalogURL is the Kiwix library's public OPDS v2 catalog, queried
// for available archives and update checks (spec.md §4.7 step 1).
const DefaultCatalogURL = "https://library.kiwix.org/catalog/v2/entries"

// opdsFeed is the subset of an Atom/OPDS feed zimi needs (spec.md §4.7:
// "Resolve download URL from Kiwix catalog (OPDS)").
type opdsFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []opdsEntry `xml:"entry"`
}

type opdsEntry struct {
	Title   string     `xml:"title"`
	Updated string     `xml:"updated"`
	Name    string     `xml:"name"` // dc:name in the real feed; flattened here
	Links   []opdsLink `xml:"link"`
}

type opdsLink struct {
	Rel    string `xml:"rel,attr"`
	Href   string `xml:"href,attr"`
	Type   string `xml:"type,attr"`
	Length int64  `xml:"length,attr"`
}

// CatalogEntry is one archive offered by the catalog, reduced to what the
// download manager needs.
type CatalogEntry struct {
	Slug         string
	Title        string
	DownloadURL  string
	ExpectedSize int64
	DateStamp    string // the catalog's date-stamp token, e.g. "2024-01"
}

// FetchCatalog downloads and parses the OPDS feed at catalogURL.
func FetchCatalog(ctx context.Context, catalogURL string) ([]CatalogEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, catalogURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var feed opdsFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse catalog xml: %w", err)
	}

	entries := make([]CatalogEntry, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		var downloadURL string
		var size int64
		for _, l := range e.Links {
			if strings.Contains(l.Type, "zim") || strings.HasSuffix(l.Href, ".zim") {
				downloadURL = l.Href
				size = l.Length
				break
			}
		}
		if downloadURL == "" {
			continue
		}

		slug := e.Name
		if slug == "" {
			slug = slugify(e.Title)
		}

		entries = append(entries, CatalogEntry{
			Slug:         slug,
			Title:        e.Title,
			DownloadURL:  downloadURL,
			ExpectedSize: size,
			DateStamp:    dateStampPattern.FindString(downloadURL),
		})
	}

	if len(entries) == 0 {
		log.Warn().Str("url", catalogURL).Msg("catalog returned no usable zim entries")
	}

	return entries, nil
}

var dateStampPattern = regexp.MustCompile(`\d{4}-\d{2}`)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// slugify falls back to deriving a catalog slug from an entry's display
// title when the feed omits a name/identifier.
func slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = nonSlugChars.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// UpdateAvailable reports whether catalog's date stamp for a given archive
// is strictly newer than the installed one, comparing the extracted
// YYYY-MM token as a two-segment version (spec.md §4.7 "Update detection").
func UpdateAvailable(installedFilename, catalogDateStamp string) bool {
	installedStamp := dateStampPattern.FindString(installedFilename)
	if installedStamp == "" || catalogDateStamp == "" {
		return false
	}
	if installedStamp == catalogDateStamp {
		return false
	}

	installedVer, err1 := version.NewVersion(strings.ReplaceAll(installedStamp, "-", "."))
	catalogVer, err2 := version.NewVersion(strings.ReplaceAll(catalogDateStamp, "-", "."))
	if err1 != nil || err2 != nil {
		return catalogDateStamp > installedStamp
	}
	return catalogVer.GreaterThan(installedVer)
}

// baseSlug strips a trailing date stamp from a catalog or installed
// filename's stem, so the two can be compared as "the same logical archive"
// regardless of which date each carries. A flavor tag (e.g. "_nopic") is
// kept, so different flavors stay different archives.
func baseSlug(name string) string {
	stripped := dateStampPattern.ReplaceAllString(name, "")
	return strings.Trim(stripped, "_- ")
}
