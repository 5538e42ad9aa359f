// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package reader

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skippedElements are unwrapped entirely: their text never reaches the
// extracted body (spec.md §4.5: "strip script/style").
var skippedElements = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Noscript: true,
}

// navElements are excluded from the snippet (but not from full Read text):
// boilerplate chrome that would otherwise dominate a short snippet (spec.md
// §4.5 snippet: "not boilerplate navigation").
var navElements = map[atom.Atom]bool{
	atom.Nav:    true,
	atom.Footer: true,
	atom.Header: true,
}

// ExtractText walks an HTML document's DOM, unwraps all tags, and collapses
// whitespace into single spaces, returning the <title> and the body text.
func ExtractText(doc []byte) (title, text string) {
	node, err := html.Parse(strings.NewReader(string(doc)))
	if err != nil {
		return "", collapseWhitespace(stripTagsFallback(string(doc)))
	}

	var b strings.Builder
	var walk func(n *html.Node, skipNav bool)
	walk = func(n *html.Node, skipNav bool) {
		if n.Type == html.ElementNode {
			if skippedElements[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.Title {
				var tb strings.Builder
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.TextNode {
						tb.WriteString(c.Data)
					}
				}
				if title == "" {
					title = strings.TrimSpace(tb.String())
				}
				return
			}
			if skipNav && navElements[n.DataAtom] {
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, skipNav)
		}
	}
	walk(node, false)

	return title, collapseWhitespace(b.String())
}

// ExtractMeta returns the content of the first <meta name="description">
// and of the first <meta property="og:description"> found in doc, each ""
// when absent (spec.md §4.5 snippet priority order).
func ExtractMeta(doc []byte) (description, ogDescription string) {
	node, err := html.Parse(strings.NewReader(string(doc)))
	if err != nil {
		return "", ""
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
			var name, property, content string
			for _, a := range n.Attr {
				switch a.Key {
				case "name":
					name = a.Val
				case "property":
					property = a.Val
				case "content":
					content = a.Val
				}
			}
			if name == "description" && description == "" {
				description = content
			}
			if property == "og:description" && ogDescription == "" {
				ogDescription = content
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return description, ogDescription
}

// ExtractSnippet returns the first of: a meta description, an og:description,
// or the first 240 characters of non-navigation body text (spec.md §4.5).
func ExtractSnippet(doc []byte) string {
	if desc, og := ExtractMeta(doc); desc != "" {
		return desc
	} else if og != "" {
		return og
	}

	node, err := html.Parse(strings.NewReader(string(doc)))
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if utf8.RuneCountInString(b.String()) >= snippetLength {
			return
		}
		if n.Type == html.ElementNode {
			if skippedElements[n.DataAtom] || navElements[n.DataAtom] || n.DataAtom == atom.Title {
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil && utf8.RuneCountInString(b.String()) < snippetLength; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)

	text := collapseWhitespace(b.String())
	if r := []rune(text); len(r) > snippetLength {
		text = string(r[:snippetLength])
	}
	return text
}

const snippetLength = 240

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stripTagsFallback is used only if the document fails to parse as HTML at
// all; html.Parse is extremely permissive so this path is rarely hit.
func stripTagsFallback(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
