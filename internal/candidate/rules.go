package candidate

import (
	"fmt"
	"regexp"

	"github.com/nao1215/streamscout/internal/model"
)

var (
	// ManifestPattern matches URLs whose path ends in the manifest extension.
	// The extension must precede the query and fragment, so a playlist named
	// in a query value ("/redirect?next=a.m3u8") does not count.
	ManifestPattern = regexp.MustCompile(`(?i)^[^?#]*\.m3u8(?:$|[?#])`)

	// SegmentPattern matches media segment and auxiliary playlist resources
	// by the extension at the end of the path.
	SegmentPattern = regexp.MustCompile(`(?i)^[^?#]*\.(?:ts|m4s|aac|mp4|m4a|m4v|fmp4|cmfv|cmfa|vtt|key)(?:$|[?#])`)
)

// IndexFilename replaces the segment filename when a manifest URL is inferred.
const IndexFilename = "index.m3u8"

// Rule is one row of the ranking table. Rules are evaluated in tier order
// and a candidate is selected by the first rule it satisfies.
type Rule struct {
	// Name identifies the rule in logs and reports.
	Name string

	// Tier orders rules. Lower tiers are preferred.
	Tier model.Tier

	// Pattern must match the candidate URL. A nil pattern matches everything.
	Pattern *regexp.Regexp

	// RequireMarker demands an auth marker in the query string.
	RequireMarker bool

	// Infer rewrites the candidate into a manifest URL in the same directory.
	Infer bool
}

// Matches reports whether the candidate satisfies the rule's conditions.
func (r Rule) Matches(c model.Candidate) bool {
	if r.RequireMarker && !c.HasAuthMarker {
		return false
	}
	if r.Pattern != nil && !r.Pattern.MatchString(c.URL) {
		return false
	}
	return true
}

// DefaultRules returns the four-tier ranking policy.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:          "manifest-with-marker",
			Tier:          model.TierMarkedManifest,
			Pattern:       ManifestPattern,
			RequireMarker: true,
		},
		{
			Name:    "manifest",
			Tier:    model.TierManifest,
			Pattern: ManifestPattern,
		},
		{
			Name:          "segment-with-marker",
			Tier:          model.TierInferred,
			Pattern:       SegmentPattern,
			RequireMarker: true,
			Infer:         true,
		},
		{
			Name: "first-observed",
			Tier: model.TierFallback,
		},
	}
}

// DefaultDenylist lists host/path fragments of known non-content origins.
var DefaultDenylist = []string{
	`doubleclick\.net`,
	`googlesyndication\.com`,
	`google-analytics\.com`,
	`googletagmanager\.com`,
	`imasdk\.googleapis\.com`,
	`adservice\.`,
	`scorecardresearch\.com`,
	`facebook\.net`,
	`/ads?/`,
	`(?i)vast`,
	`(?i)preroll`,
}

// CompileDenylist compiles host/path patterns.
func CompileDenylist(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid denylist pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}
