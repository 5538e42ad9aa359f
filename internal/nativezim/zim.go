// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package nativezim binds the real libzim C++ library (the OpenZIM project's
// reference reader/writer, used by Kiwix) via a small C-linkage shim, since
// no maintained pure-Go ZIM reader exists. This is the one package in the
// module that requires cgo and a system install of libzim (and its Xapian
// dependency for full-text suggestions); every other package is pure Go.
package nativezim

/*
#cgo pkg-config: libzim
#cgo CXXFLAGS: -std=c++17
#include <stdlib.h>
#include "shim.h"
*/
import "C"

import (
	"fmt"
	"time"
	"unsafe"
)

// Entry describes a single ZIM directory entry (spec.md §2 glossary).
type Entry struct {
	Path       string
	Title      string
	MimeType   string
	Size       int64
	IsRedirect bool
}

// SearchResult is one hit from the archive's embedded full-text index.
type SearchResult struct {
	Path    string
	Title   string
	Score   float32
	Snippet string
}

// Archive is an open handle onto a single .zim file. Not safe for
// concurrent Read/iteration calls against the same handle without an
// external lock — the archive registry holds its process-wide global
// archive lock around every native call for exactly this reason (spec.md
// §5).
type Archive struct {
	ptr *C.zim_archive
}

func goError(cErr *C.char) error {
	if cErr == nil {
		return nil
	}
	defer C.zim_free_string(cErr)
	return fmt.Errorf("libzim: %s", C.GoString(cErr))
}

// Open opens the ZIM archive at path.
func Open(path string) (*Archive, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var cErr *C.char
	ptr := C.zim_open(cPath, &cErr)
	if ptr == nil {
		return nil, goError(cErr)
	}
	return &Archive{ptr: ptr}, nil
}

// Close releases the underlying libzim archive handle.
func (a *Archive) Close() error {
	if a.ptr != nil {
		C.zim_close(a.ptr)
		a.ptr = nil
	}
	return nil
}

// Metadata reads a single Dublin Core metadata key (Title, Creator,
// Publisher, Language, Date, Description, ...), returning "" if absent.
func (a *Archive) Metadata(key string) string {
	cKey := C.CString(key)
	defer C.free(unsafe.Pointer(cKey))

	cVal := C.zim_get_metadata(a.ptr, cKey)
	defer C.zim_free_string(cVal)
	return C.GoString(cVal)
}

// EntryCount returns the total number of directory entries (all namespaces).
func (a *Archive) EntryCount() int64 { return int64(C.zim_entry_count(a.ptr)) }

// ArticleCount returns the number of namespace-A (article) entries.
func (a *Archive) ArticleCount() int64 { return int64(C.zim_article_count(a.ptr)) }

// MediaCount returns the number of namespace-I (image/media) entries.
func (a *Archive) MediaCount() int64 { return int64(C.zim_media_count(a.ptr)) }

// FileSize returns the archive's on-disk size in bytes.
func (a *Archive) FileSize() int64 { return int64(C.zim_filesize(a.ptr)) }

// UUID returns the archive's unique identifier.
func (a *Archive) UUID() string {
	cVal := C.zim_uuid(a.ptr)
	defer C.zim_free_string(cVal)
	return C.GoString(cVal)
}

func entryFromC(info C.zim_entry_info) Entry {
	defer C.zim_free_entry_info(&info)
	return Entry{
		Path:       C.GoString(info.path),
		Title:      C.GoString(info.title),
		MimeType:   C.GoString(info.mimetype),
		Size:       int64(info.size),
		IsRedirect: info.is_redirect != 0,
	}
}

// EntryByPath resolves a path (following a single redirect hop, since
// libzim's getRedirectEntry already resolves the chain) to its entry.
func (a *Archive) EntryByPath(path string) (Entry, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var info C.zim_entry_info
	var cErr *C.char
	if C.zim_get_entry_by_path(a.ptr, cPath, &info, &cErr) != 0 {
		return Entry{}, goError(cErr)
	}
	return entryFromC(info), nil
}

// MainEntry returns the archive's designated landing page.
func (a *Archive) MainEntry() (Entry, error) {
	var info C.zim_entry_info
	var cErr *C.char
	if C.zim_get_main_entry(a.ptr, &info, &cErr) != 0 {
		return Entry{}, goError(cErr)
	}
	return entryFromC(info), nil
}

// RandomEntry returns a random namespace-A entry, backing GET /random.
func (a *Archive) RandomEntry() (Entry, error) {
	var info C.zim_entry_info
	var cErr *C.char
	if C.zim_get_random_entry(a.ptr, &info, &cErr) != 0 {
		return Entry{}, goError(cErr)
	}
	return entryFromC(info), nil
}

// ReadContent reads the full (decompressed) content of the entry at path.
func (a *Archive) ReadContent(path string) ([]byte, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var data *C.char
	var length C.longlong
	var cErr *C.char
	if C.zim_read_content(a.ptr, cPath, &data, &length, &cErr) != 0 {
		return nil, goError(cErr)
	}
	defer C.zim_free_blob(data)

	return C.GoBytes(unsafe.Pointer(data), C.int(length)), nil
}

// IteratePaths lists up to limit namespace-prefixed entry paths starting at
// offset, in on-disk order. Used by the archive registry to build the title
// index without loading the whole archive into memory at once.
func (a *Archive) IteratePaths(namespace byte, offset, limit int64) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	cOut := make([]*C.char, limit)
	written := C.zim_iterate_paths(a.ptr, C.char(namespace), C.longlong(offset), C.longlong(limit), &cOut[0])

	paths := make([]string, 0, int(written))
	for i := int64(0); i < int64(written); i++ {
		paths = append(paths, C.GoString(cOut[i]))
		C.zim_free_string(cOut[i])
	}
	return paths, nil
}

// Suggest runs libzim's embedded suggestion/full-text search (Xapian-backed,
// when the archive was built with one), used as the result source for
// Phase 2 full-text search (spec.md §4.1), which runs for every search not
// marked fast.
func (a *Archive) Suggest(query string, limit int64) ([]SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}

	cQuery := C.CString(query)
	defer C.free(unsafe.Pointer(cQuery))

	cOut := make([]C.zim_search_result, limit)
	var cErr *C.char
	written := C.zim_suggest_search(a.ptr, cQuery, C.longlong(limit), &cOut[0], &cErr)
	if written == 0 && cErr != nil {
		return nil, goError(cErr)
	}

	results := make([]SearchResult, 0, int(written))
	for i := int64(0); i < int64(written); i++ {
		r := cOut[i]
		results = append(results, SearchResult{
			Path:    C.GoString(r.path),
			Title:   C.GoString(r.title),
			Score:   float32(r.score),
			Snippet: C.GoString(r.snippet),
		})
		C.zim_free_string(r.path)
		C.zim_free_string(r.title)
		C.zim_free_string(r.snippet)
	}
	return results, nil
}

// CreationDate parses the archive's Date metadata field (ISO-8601). Update
// detection does not use it; it compares the date stamps in filenames.
func (a *Archive) CreationDate() (time.Time, bool) {
	raw := a.Metadata("Date")
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
