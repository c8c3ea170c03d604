// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package models

import (
	"sort"
	"strings"
)

// UnknownGenre is the sentinel tag for artists without genre data.
const UnknownGenre = "unknown"

// GenreSet is a sorted set of distinct genre tags. It is produced once, when
// rows enter the system, and never re-parsed afterwards.
type GenreSet []string

// NewGenreSet builds a set from already separated tags. Blank tags are dropped.
func NewGenreSet(tags ...string) GenreSet {
	seen := make(map[string]struct{}, len(tags))
	out := make(GenreSet, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// UnknownGenres returns the sentinel set {"unknown"}.
func UnknownGenres() GenreSet {
	return GenreSet{UnknownGenre}
}

// GenresFromList converts a catalog genre list. An empty list is unknown.
func GenresFromList(tags []string) GenreSet {
	set := NewGenreSet(tags...)
	if len(set) == 0 {
		return UnknownGenres()
	}
	return set
}

// ParseGenres normalizes the textual genre encodings found in chart exports
// and enrichment files:
//
//	"pop|dance pop"         pipe separated
//	"['pop', 'dance pop']"  stringified list
//	"pop"                   single tag
//	"", "unknown", "['unknown']", "[]"  unknown
//
// A malformed stringified list is treated as unknown.
func ParseGenres(raw string) GenreSet {
	s := strings.TrimSpace(raw)
	if s == "" || s == UnknownGenre || s == "['unknown']" || s == `["unknown"]` {
		return UnknownGenres()
	}

	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		tags, ok := parseListLiteral(s[1 : len(s)-1])
		if !ok {
			return UnknownGenres()
		}
		return GenresFromList(tags)
	}

	if strings.Contains(s, "|") {
		return GenresFromList(strings.Split(s, "|"))
	}

	return NewGenreSet(s)
}

// parseListLiteral splits the body of a ['a', "b"] literal. Every element
// must be a quoted string.
func parseListLiteral(body string) ([]string, bool) {
	var (
		tags  []string
		i     int
		runes = []rune(body)
	)
	for {
		for i < len(runes) && (runes[i] == ' ' || runes[i] == '\t') {
			i++
		}
		if i >= len(runes) {
			return tags, true
		}

		quote := runes[i]
		if quote != '\'' && quote != '"' {
			return nil, false
		}
		i++

		var b strings.Builder
		closed := false
		for i < len(runes) {
			r := runes[i]
			if r == '\\' && i+1 < len(runes) {
				b.WriteRune(runes[i+1])
				i += 2
				continue
			}
			if r == quote {
				closed = true
				i++
				break
			}
			b.WriteRune(r)
			i++
		}
		if !closed {
			return nil, false
		}
		tags = append(tags, b.String())

		for i < len(runes) && (runes[i] == ' ' || runes[i] == '\t') {
			i++
		}
		if i >= len(runes) {
			return tags, true
		}
		if runes[i] != ',' {
			return nil, false
		}
		i++
	}
}

// String renders the canonical pipe-separated form used in stored files.
func (g GenreSet) String() string {
	return strings.Join(g, "|")
}

// IsUnknown reports whether the set only holds the sentinel.
func (g GenreSet) IsUnknown() bool {
	return len(g) == 1 && g[0] == UnknownGenre
}

// Contains reports whether tag is in the set.
func (g GenreSet) Contains(tag string) bool {
	i := sort.SearchStrings(g, tag)
	return i < len(g) && g[i] == tag
}
