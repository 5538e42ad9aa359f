// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "regexp"

// Category is a tagged variant describing the kind of site an archive
// mirrors, computed once at load time (spec.md §9: "no runtime type
// inspection").
type Category string

const (
	CategoryWikipedia     Category = "wikipedia"
	CategoryWiktionary    Category = "wiktionary"
	CategoryWikiquote     Category = "wikiquote"
	CategoryStackExchange Category = "stackexchange"
	CategoryDevDocs       Category = "devdocs"
	CategoryOther         Category = "other"
)

type categoryRule struct {
	category Category
	name     *regexp.Regexp
}

// categoryTable is scanned linearly, in order, for the first match. It is a
// plain sorted slice rather than a dispatch table, per spec.md §9.
var categoryTable = []categoryRule{
	{CategoryWikipedia, regexp.MustCompile(`(?i)^wikipedia`)},
	{CategoryWiktionary, regexp.MustCompile(`(?i)^wiktionary`)},
	{CategoryWikiquote, regexp.MustCompile(`(?i)^wikiquote`)},
	{CategoryStackExchange, regexp.MustCompile(`(?i)(stackexchange|stackoverflow|askubuntu|superuser|serverfault)`)},
	{CategoryDevDocs, regexp.MustCompile(`(?i)(devdocs|mdn|developer\.mozilla)`)},
}

// ClassifyCategory derives a Category from an archive's name (the Kiwix
// library naming convention embeds the project name as the first
// underscore-separated component, e.g. "wikipedia_en_all_nopic").
func ClassifyCategory(name string) Category {
	for _, rule := range categoryTable {
		if rule.name.MatchString(name) {
			return rule.category
		}
	}
	return CategoryOther
}

// defaultSourceRank is the static authority table used to break search
// ranking ties (spec.md §4.3). Higher ranks first. The table is fixed at
// build time: nothing in the module changes it at runtime or reads ranks
// from configuration.
var defaultSourceRank = map[Category]int{
	CategoryWikipedia:     100,
	CategoryWiktionary:    80,
	CategoryWikiquote:     80,
	CategoryStackExchange: 60,
	CategoryDevDocs:       40,
	CategoryOther:         10,
}

// DefaultSourceRank returns the built-in authority rank for a category.
func DefaultSourceRank(c Category) int {
	if rank, ok := defaultSourceRank[c]; ok {
		return rank
	}
	return defaultSourceRank[CategoryOther]
}
