package model

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

// AuthMarkers lists the query parameter names recognized as auth markers.
var AuthMarkers = []string{"token", "signature", "sig", "expires", "exp"}

// authMarkerPattern matches any of AuthMarkers followed by '='. The match is
// a plain substring search on the raw query so that markers nested inside
// other values (for example "hdnts=exp=1700000000~acl=...") are recognized
// as well.
var authMarkerPattern = regexp.MustCompile(`(?i)(` + strings.Join(AuthMarkers, "|") + `)=`)

// HasAuthMarker reports whether the URL's query string carries an auth marker.
// URLs that fail to parse are checked on everything after the first '?'.
func HasAuthMarker(rawURL string) bool {
	query := ""
	if u, err := url.Parse(rawURL); err == nil {
		query = u.RawQuery
	} else if _, after, ok := strings.Cut(rawURL, "?"); ok {
		query = after
	}
	if query == "" {
		return false
	}
	return authMarkerPattern.MatchString(query)
}

// Candidate is a unique URL that might be the manifest, together with the
// provenance of its first observation.
type Candidate struct {
	// URL is the unique key of the candidate.
	URL string `json:"url"`

	// FirstChannel is the channel of the first Signal for this URL.
	FirstChannel Channel `json:"firstChannel"`

	// FirstSeenAt is the timestamp of the first Signal for this URL.
	FirstSeenAt time.Time `json:"firstSeenAt"`

	// HasAuthMarker is derived from the URL's query string.
	HasAuthMarker bool `json:"hasAuthMarker"`

	// Observations counts how many Signals referenced this URL.
	Observations int `json:"observations"`

	// Sequence is the insertion order of the first observation, starting at 0.
	Sequence int `json:"sequence"`
}

// NewCandidate derives a Candidate from the first Signal seen for a URL.
func NewCandidate(sig Signal, seq int) Candidate {
	return Candidate{
		URL:           sig.URL,
		FirstChannel:  sig.Channel,
		FirstSeenAt:   sig.ObservedAt,
		HasAuthMarker: HasAuthMarker(sig.URL),
		Observations:  1,
		Sequence:      seq,
	}
}
