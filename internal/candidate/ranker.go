package candidate

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/nao1215/streamscout/internal/model"
)

// Ranker selects the most promising candidate according to a rule table.
//
// Rules are tried in tier order: a manifest URL with an auth marker, any
// manifest URL, a marked segment rewritten to the index manifest of its
// directory, and finally the first candidate observed. Within a tier the
// earliest first-seen candidate wins, so the result depends only on the
// input list. URLs matching the denylist are never selected, not even by
// the fallback tier.
//
// A Ranker holds no mutable state and may be shared between goroutines.
type Ranker struct {
	rules     []Rule
	denylist  []*regexp.Regexp
	indexName string
}

// RankerOption configures a Ranker.
type RankerOption func(*Ranker)

// WithRules replaces the ranking table.
func WithRules(rules []Rule) RankerOption {
	return func(r *Ranker) {
		r.rules = append([]Rule(nil), rules...)
	}
}

// WithDenylist replaces the denylist.
func WithDenylist(denylist []*regexp.Regexp) RankerOption {
	return func(r *Ranker) {
		r.denylist = denylist
	}
}

// WithIndexFilename sets the filename used for inferred manifest URLs.
func WithIndexFilename(name string) RankerOption {
	return func(r *Ranker) {
		r.indexName = name
	}
}

// NewRanker creates a Ranker with the default rules and denylist.
func NewRanker(opts ...RankerOption) *Ranker {
	deny, _ := CompileDenylist(DefaultDenylist) //nolint:errcheck // patterns are constant and covered by tests
	r := &Ranker{
		rules:     DefaultRules(),
		denylist:  deny,
		indexName: IndexFilename,
	}
	for _, opt := range opts {
		opt(r)
	}

	sort.SliceStable(r.rules, func(i, j int) bool {
		return r.rules[i].Tier < r.rules[j].Tier
	})
	return r
}

// Pick returns the best selection, or false when there is none.
func (r *Ranker) Pick(candidates []model.Candidate) (model.Selection, bool) {
	ranked := r.Rank(candidates)
	if len(ranked) == 0 {
		return model.Selection{}, false
	}
	return ranked[0], true
}

// Rank returns every selectable URL ordered by tier, then by first-seen
// time, then by insertion order. Each resolved URL appears once, at its best
// position. Denylisted candidates and inferred URLs that land on the
// denylist are never returned.
func (r *Ranker) Rank(candidates []model.Candidate) []model.Selection {
	ordered := make([]model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !r.Denied(c.URL) {
			ordered = append(ordered, c)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.FirstSeenAt.Equal(b.FirstSeenAt) {
			return a.FirstSeenAt.Before(b.FirstSeenAt)
		}
		return a.Sequence < b.Sequence
	})

	seen := make(map[string]bool, len(ordered))
	out := make([]model.Selection, 0, len(ordered))
	for _, rule := range r.rules {
		for _, c := range ordered {
			if !rule.Matches(c) {
				continue
			}

			target := c.URL
			if rule.Infer {
				inferred, ok := InferManifestURL(c.URL, r.indexName)
				if !ok || r.Denied(inferred) {
					continue
				}
				target = inferred
			}
			if seen[target] {
				continue
			}
			seen[target] = true

			out = append(out, model.Selection{
				URL:       target,
				Tier:      rule.Tier,
				Rule:      rule.Name,
				Inferred:  rule.Infer,
				Candidate: c,
			})
		}
	}
	return out
}

// Denied reports whether the URL's host or path matches the denylist.
func (r *Ranker) Denied(rawURL string) bool {
	subject := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		subject = strings.ToLower(u.Host) + u.Path
	}
	for _, re := range r.denylist {
		if re.MatchString(subject) {
			return true
		}
	}
	return false
}

// InferManifestURL replaces the last path segment of a segment URL with
// indexName and drops the query and fragment, so
// "https://cdn/dir/seg003.ts?token=x" becomes "https://cdn/dir/index.m3u8".
func InferManifestURL(rawURL, indexName string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}

	dir := u.Path
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		dir = dir[:i+1]
	} else {
		dir = "/"
	}

	inferred := url.URL{
		Scheme: u.Scheme,
		User:   u.User,
		Host:   u.Host,
		Path:   dir + indexName,
	}
	return inferred.String(), true
}
