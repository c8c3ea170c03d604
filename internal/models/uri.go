// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package models

import (
	"net/url"
	"strings"
)

const trackURIPrefix = "spotify:track:"

// TrackIDFromURI extracts the catalog track id from "spotify:track:<id>" or
// an open.spotify.com/track/<id> link. ok is false for anything else,
// including ids that are not 22 base-62 characters.
func TrackIDFromURI(uri string) (id string, ok bool) {
	uri = strings.TrimSpace(uri)
	switch {
	case strings.HasPrefix(uri, trackURIPrefix):
		id = strings.TrimPrefix(uri, trackURIPrefix)
	case strings.Contains(uri, "open.spotify.com/"):
		u, err := url.Parse(uri)
		if err != nil {
			return "", false
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) < 2 || parts[len(parts)-2] != "track" {
			return "", false
		}
		id = parts[len(parts)-1]
	default:
		return "", false
	}
	if !validCatalogID(id) {
		return "", false
	}
	return id, true
}

// validCatalogID checks the 22 character base-62 shape of catalog ids.
func validCatalogID(id string) bool {
	if len(id) != 22 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
