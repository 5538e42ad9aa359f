// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package reader implements article fetch, snippet extraction, and
// cross-archive link resolution (spec.md §4.5). All native archive access
// goes through the archive registry's global lock; nothing in this package
// touches libzim directly without it.
package reader

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/epheterson/zimi/internal/archive"
	"github.com/epheterson/zimi/internal/domain"
	"github.com/epheterson/zimi/internal/nativezim"
)

// Article is the decoded result of a Read call.
type Article struct {
	Title string
	Text  string
	Mime  string
}

// Reader fetches and decodes ZIM entries for the API's /read, /snippet, and
// /random endpoints.
type Reader struct {
	registry *archive.Registry
}

// New creates a Reader backed by registry.
func New(registry *archive.Registry) *Reader {
	return &Reader{registry: registry}
}

// Read fetches path from archiveID and decodes it to plain text, truncating
// at maxLength on a word boundary (spec.md §4.5).
func (r *Reader) Read(ctx context.Context, archiveID, path string, maxLength int) (Article, error) {
	h, ok := r.registry.Get(archiveID)
	if !ok {
		return Article{}, domain.NewError(domain.ErrNotFound, "unknown archive: "+archiveID, nil)
	}

	var entry nativezim.Entry
	var content []byte
	err := h.WithNativeLock(func(a *nativezim.Archive) error {
		e, err := a.EntryByPath(path)
		if err != nil {
			return err
		}
		entry = e

		data, err := a.ReadContent(path)
		if err != nil {
			return err
		}
		content = data
		return nil
	})
	if err != nil {
		return Article{}, domain.NewError(domain.ErrNotFound, fmt.Sprintf("read %s/%s", archiveID, path), err)
	}

	if ctx.Err() != nil {
		return Article{}, ctx.Err()
	}

	if !isHTML(entry.MimeType) {
		text := truncateWords(string(content), maxLength)
		return Article{Title: entry.Title, Text: text, Mime: entry.MimeType}, nil
	}

	title, text := ExtractText(content)
	if title == "" {
		title = entry.Title
	}
	return Article{Title: title, Text: truncateWords(text, maxLength), Mime: entry.MimeType}, nil
}

// Raw fetches path from archiveID and returns its bytes and mimetype
// unmodified, for GET /w/<zim>/<path> (spec.md §6).
func (r *Reader) Raw(ctx context.Context, archiveID, path string) ([]byte, string, error) {
	h, ok := r.registry.Get(archiveID)
	if !ok {
		return nil, "", domain.NewError(domain.ErrNotFound, "unknown archive: "+archiveID, nil)
	}

	var entry nativezim.Entry
	var content []byte
	err := h.WithNativeLock(func(a *nativezim.Archive) error {
		e, err := a.EntryByPath(path)
		if err != nil {
			return err
		}
		entry = e

		data, err := a.ReadContent(path)
		if err != nil {
			return err
		}
		content = data
		return nil
	})
	if err != nil {
		return nil, "", domain.NewError(domain.ErrNotFound, fmt.Sprintf("read %s/%s", archiveID, path), err)
	}
	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}

	return content, entry.MimeType, nil
}

// Snippet extracts a short preview of path for search result display
// (spec.md §4.5), filled in only for the final truncated result set.
func (r *Reader) Snippet(ctx context.Context, archiveID, path string) (string, error) {
	h, ok := r.registry.Get(archiveID)
	if !ok {
		return "", domain.NewError(domain.ErrNotFound, "unknown archive: "+archiveID, nil)
	}

	var content []byte
	var mime string
	err := h.WithNativeLock(func(a *nativezim.Archive) error {
		e, err := a.EntryByPath(path)
		if err != nil {
			return err
		}
		mime = e.MimeType
		data, err := a.ReadContent(path)
		if err != nil {
			return err
		}
		content = data
		return nil
	})
	if err != nil {
		return "", domain.NewError(domain.ErrNotFound, fmt.Sprintf("snippet %s/%s", archiveID, path), err)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if !isHTML(mime) {
		return truncateWords(string(content), 240), nil
	}
	return ExtractSnippet(content), nil
}

// Random returns a random namespace-A entry from archiveID (spec.md §6
// GET /random). If archiveID is empty, a random archive is chosen first.
func (r *Reader) Random(ctx context.Context, archiveID string) (id, path, title string, err error) {
	h, ok := r.chooseArchive(archiveID)
	if !ok {
		return "", "", "", domain.NewError(domain.ErrNotFound, "no archives available", nil)
	}

	var entry nativezim.Entry
	nerr := h.WithNativeLock(func(a *nativezim.Archive) error {
		e, err := a.RandomEntry()
		if err != nil {
			return err
		}
		entry = e
		return nil
	})
	if nerr != nil {
		return "", "", "", domain.NewError(domain.ErrArchiveGone, "random entry", nerr)
	}
	return h.ID, entry.Path, entry.Title, nil
}

func (r *Reader) chooseArchive(archiveID string) (*archive.Handle, bool) {
	if archiveID != "" {
		return r.registry.Get(archiveID)
	}
	all := r.registry.List()
	if len(all) == 0 {
		return nil, false
	}
	return all[rand.Intn(len(all))], true
}

func isHTML(mime string) bool {
	return mime == "" || mime == "text/html" || mime == "application/xhtml+xml" ||
		len(mime) >= 9 && mime[:9] == "text/html"
}

func truncateWords(s string, maxLength int) string {
	if maxLength <= 0 || len(s) <= maxLength {
		return s
	}
	cut := s[:maxLength]
	for i := len(cut) - 1; i >= 0; i-- {
		if cut[i] == ' ' || cut[i] == '\n' || cut[i] == '\t' {
			return cut[:i]
		}
	}
	return cut
}
