// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package stringutils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// unicodeNormalizer caches expensive NormalizeUnicode results to avoid repeated NFKD transformations.
	// This cuts CPU usage significantly in hot paths like title_lower generation during an index build.
	unicodeNormalizer = NewNormalizer(defaultNormalizerTTL, normalizeUnicodeInner)

	// foldNormalizer caches the full title-folding transform used to derive title_lower.
	foldNormalizer = NewNormalizer(defaultNormalizerTTL, folded)
)

// normalizeUnicodeInner is the inner transformation function used by unicodeNormalizer.
func normalizeUnicodeInner(s string) string {
	// Handle special characters that NFKD doesn't decompose to ASCII equivalents
	// (these are distinct letters in Nordic/Germanic languages, not composed characters)
	s = strings.ReplaceAll(s, "æ", "ae")
	s = strings.ReplaceAll(s, "Æ", "AE")
	s = strings.ReplaceAll(s, "œ", "oe")
	s = strings.ReplaceAll(s, "Œ", "OE")
	s = strings.ReplaceAll(s, "ø", "o")
	s = strings.ReplaceAll(s, "Ø", "O")
	s = strings.ReplaceAll(s, "ß", "ss")
	s = strings.ReplaceAll(s, "ð", "d")
	s = strings.ReplaceAll(s, "Ð", "D")
	s = strings.ReplaceAll(s, "þ", "th")
	s = strings.ReplaceAll(s, "Þ", "TH")

	// Create transformer fresh per-call (transform.Chain is not thread-safe for concurrent use).
	// Caching via unicodeNormalizer prevents repeated transformations for identical inputs.
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// folded is the inner transformation function used by foldNormalizer. It
// produces the case/diacritic-folded form stored as entries.title_lower
// (spec.md §3 invariant: "title_lower is a case/diacritic-folded form of
// title").
func folded(s string) string {
	s = unicodeNormalizer.Normalize(s)
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	return s
}

// NormalizeUnicode removes diacritics and decomposes ligatures with caching.
// Results are cached per input string (5 minute TTL) to avoid repeated expensive transformations.
// For the full title_lower transform (adds lowercasing and whitespace collapsing), use FoldTitle instead.
// Examples:
//   - "Shōgun" → "Shogun"
//   - "Amélie" → "Amelie"
//   - "naïve" → "naive"
//   - "Björk" → "Bjork"
//   - "æ" → "ae"
//   - "ﬁ" → "fi"
func NormalizeUnicode(s string) string {
	return unicodeNormalizer.Normalize(s)
}

// FoldTitle applies the cached title-folding transform used to derive
// entries.title_lower: unicode normalization (strips diacritics, decomposes
// ligatures), lowercasing, and whitespace collapsing.
//
// Results are cached per input string (5 minute TTL) since the same titles
// recur across prefix and full-text queries during an index build.
//
// Examples:
//   - "Shōgun" → "shogun"
//   - "Amélie" → "amelie"
//   - "  Water   Cycle " → "water cycle"
func FoldTitle(s string) string {
	return foldNormalizer.Normalize(s)
}
