// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <title>Wikipedia</title>
    <name>wikipedia_en_all_nopic</name>
    <updated>2024-01-01T00:00:00Z</updated>
    <link rel="http://opds-spec.org/acquisition/open-access" type="application/x-zim" length="123456" href="https://download.kiwix.org/zim/wikipedia/wikipedia_en_all_nopic_2024-02.zim"/>
  </entry>
  <entry>
    <title>No Zim Link Here</title>
    <updated>2024-01-01T00:00:00Z</updated>
    <link rel="alternate" type="text/html" href="https://example.org/about"/>
  </entry>
</feed>`

func TestFetchCatalogParsesZimLinks(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	t.Cleanup(server.Close)

	entries, err := FetchCatalog(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, entries, 1, "the entry with no zim link is skipped")

	e := entries[0]
	assert.Equal(t, "wikipedia_en_all_nopic", e.Slug)
	assert.Equal(t, "Wikipedia", e.Title)
	assert.Equal(t, int64(123456), e.ExpectedSize)
	assert.Equal(t, "2024-02", e.DateStamp)
}

func TestFetchCatalogNonOKStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	_, err := FetchCatalog(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestSlugifyFallback(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "devdocs_go", slugify("DevDocs: Go!"))
	assert.Equal(t, "wikipedia_en", slugify("  Wikipedia (en)  "))
}

func TestUpdateAvailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		installed string
		catalog   string
		want      bool
	}{
		{"newer month", "wikipedia_en_all_nopic_2024-01.zim", "2024-02", true},
		{"same stamp", "wikipedia_en_all_nopic_2024-02.zim", "2024-02", false},
		{"older stamp", "wikipedia_en_all_nopic_2024-05.zim", "2024-02", false},
		{"missing installed stamp", "wikipedia_en_all_nopic.zim", "2024-02", false},
		{"missing catalog stamp", "wikipedia_en_all_nopic_2024-01.zim", "", false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, UpdateAvailable(tc.installed, tc.catalog))
		})
	}
}

func TestBaseSlugStripsDateStamp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "wikipedia_en_all_nopic", baseSlug("wikipedia_en_all_nopic_2024-02"))
	assert.Equal(t, "devdocs_go", baseSlug("devdocs_go"))
}
