package model

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Sentinel is the literal every valid manifest contains.
const Sentinel = "#EXTM3U"

// Manifest is a playlist confirmed by the verifier.
// It is only ever constructed from a body that contained Sentinel.
type Manifest struct {
	// SourceURL is the candidate URL that was verified.
	SourceURL string `json:"sourceUrl"`

	// ResponseURL is the URL the content was finally served from, which
	// differs from SourceURL after redirects.
	ResponseURL string `json:"responseUrl,omitempty"`

	// RawContent is the body exactly as retrieved.
	RawContent string `json:"-"`

	// NormalizedContent is RawContent with relative references made absolute.
	NormalizedContent string `json:"normalizedContent"`

	// Verified is always true for manifests produced by the verifier.
	Verified bool `json:"verified"`

	// RetrievalPath names the path that produced the content
	// ("observed", "session" or "anonymous").
	RetrievalPath string `json:"retrievalPath"`
}

// Fingerprint returns the SHA3-256 digest of the normalized content in hex.
func (m *Manifest) Fingerprint() string {
	if m == nil {
		return ""
	}
	sum := sha3.Sum256([]byte(m.NormalizedContent))
	return hex.EncodeToString(sum[:])
}
