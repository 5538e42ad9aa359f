// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package reader

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/epheterson/zimi/internal/archive"
	"github.com/epheterson/zimi/internal/domain"
	"github.com/epheterson/zimi/internal/titleindex"
	"github.com/epheterson/zimi/pkg/httphelpers"
)

// resolveConcurrency bounds how many candidate archives a batch resolve
// checks at once (spec.md §4.5: "concurrency 8").
const resolveConcurrency = 8

// Match is a resolved cross-archive target.
type Match struct {
	ArchiveID string `json:"archive"`
	Path      string `json:"path"`
}

// hostRule maps an external site's URL shape to the kind of archive that
// could serve it and the path transform to apply. Scanned linearly in
// order (spec.md §9: "a plain sorted slice scanned linearly, <50 entries"),
// never a hash/graph lookup.
type hostRule struct {
	hostSuffix string
	category   domain.Category
	pathPrefix func(urlPath string) (path string, ok bool)
}

var hostTable = []hostRule{
	{"wikipedia.org", domain.CategoryWikipedia, wikiPathPrefix("/wiki/")},
	{"wiktionary.org", domain.CategoryWiktionary, wikiPathPrefix("/wiki/")},
	{"wikiquote.org", domain.CategoryWikiquote, wikiPathPrefix("/wiki/")},
	{"stackoverflow.com", domain.CategoryStackExchange, wikiPathPrefix("/questions/")},
	{"askubuntu.com", domain.CategoryStackExchange, wikiPathPrefix("/questions/")},
	{"superuser.com", domain.CategoryStackExchange, wikiPathPrefix("/questions/")},
	{"serverfault.com", domain.CategoryStackExchange, wikiPathPrefix("/questions/")},
	{"stackexchange.com", domain.CategoryStackExchange, wikiPathPrefix("/questions/")},
	{"developer.mozilla.org", domain.CategoryDevDocs, wikiPathPrefix("/en-US/docs/")},
	{"devdocs.io", domain.CategoryDevDocs, wikiPathPrefix("/")},
}

var langPrefix = regexp.MustCompile(`^([a-z]{2,3})\.`)

// wikiPathPrefix builds a pathPrefix func that requires urlPath to start
// with prefix and rewrites the remainder into the ZIM "A/<name>" namespace.
func wikiPathPrefix(prefix string) func(string) (string, bool) {
	return func(urlPath string) (string, bool) {
		if !strings.HasPrefix(urlPath, prefix) {
			return "", false
		}
		rest := strings.TrimPrefix(urlPath, prefix)
		if rest == "" {
			return "", false
		}
		return "A/" + rest, true
	}
}

// Resolver rewrites outbound links inside served article HTML into
// in-archive targets when a matching archive is installed (spec.md §4.5).
type Resolver struct {
	registry *archive.Registry
	index    *titleindex.Store
}

// NewResolver creates a Resolver backed by registry and index.
func NewResolver(registry *archive.Registry, index *titleindex.Store) *Resolver {
	return &Resolver{registry: registry, index: index}
}

// Resolve maps a single external URL to an installed archive entry, or nil
// if no candidate archive has that path.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*Match, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, domain.NewError(domain.ErrBadRequest, "invalid url", err)
	}

	host := strings.ToLower(u.Hostname())
	language := ""
	if m := langPrefix.FindStringSubmatch(host); m != nil {
		language = m[1]
		host = strings.TrimPrefix(host, m[0])
	}

	for _, rule := range hostTable {
		if !strings.HasSuffix(host, rule.hostSuffix) {
			continue
		}
		path, ok := rule.pathPrefix(u.Path)
		if !ok {
			continue
		}

		for _, h := range r.candidates(rule.category, language) {
			title, exists, err := r.index.Exists(ctx, h.ID, path)
			if err != nil {
				continue
			}
			if exists {
				_ = title
				return &Match{ArchiveID: h.ID, Path: path}, nil
			}
		}
	}

	return nil, nil
}

// ResolveBatch resolves many URLs concurrently, capped at
// resolveConcurrency in flight at once.
func (r *Resolver) ResolveBatch(ctx context.Context, urls []string) (map[string]*Match, error) {
	out := make(map[string]*Match, len(urls))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)

	for _, u := range urls {
		u := u
		g.Go(func() error {
			m, err := r.Resolve(gctx, u)
			if err != nil {
				m = nil
			}
			mu.Lock()
			out[u] = m
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return out, nil
}

// RewriteHTML walks an HTML document served from GET /w/<archive>/<path>
// and rewrites every <a href> pointing at a known external site (spec.md
// §4.5: "Used by the reader to rewrite outbound links inside served HTML")
// into a local /w/<archive>/<path> link when a matching archive is
// installed, so a browser following the link stays offline. basePath is
// prepended when the deployment is mounted under a reverse-proxy subpath
// (config.toml's baseUrl). Unresolved links are left untouched.
func (r *Resolver) RewriteHTML(ctx context.Context, content []byte, basePath string) []byte {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return content
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for i, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				if m, err := r.Resolve(ctx, attr.Val); err == nil && m != nil {
					n.Attr[i].Val = httphelpers.JoinBasePath(basePath, "/w/"+m.ArchiveID+"/"+m.Path)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return content
	}
	return buf.Bytes()
}

// candidates returns handles whose category matches (and, when language is
// non-empty, whose Meta.Language also matches), in registry order.
func (r *Resolver) candidates(category domain.Category, language string) []*archive.Handle {
	var out []*archive.Handle
	for _, h := range r.registry.List() {
		if h.Meta.Category != category {
			continue
		}
		if language != "" && h.Meta.Language != "" && !strings.EqualFold(h.Meta.Language, language) {
			continue
		}
		out = append(out, h)
	}
	return out
}
