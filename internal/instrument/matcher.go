package instrument

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/streamscout/internal/candidate"
	"github.com/nao1215/streamscout/internal/model"
)

// manifestMIMETypes are content types that identify a playlist regardless of URL.
var manifestMIMETypes = []string{
	"application/vnd.apple.mpegurl",
	"application/x-mpegurl",
	"audio/mpegurl",
	"audio/x-mpegurl",
}

// scannableMIMEFragments are content type fragments whose bodies may embed URLs.
var scannableMIMEFragments = []string{
	"text/",
	"json",
	"javascript",
	"ecmascript",
	"html",
	"xml",
	"mpegurl",
}

var (
	// manifestURLInText finds absolute manifest URLs inside free text. The
	// path part excludes '?' and '#' so the longest path ending in the
	// extension wins and the query is captured separately.
	manifestURLInText = regexp.MustCompile("(?i)https?://[^\\s\"'<>\\\\`?#]+\\.m3u8(?:\\?[^\\s\"'<>\\\\`]*)?")

	// segmentURLInText finds absolute segment URLs that carry a query string.
	segmentURLInText = regexp.MustCompile("(?i)https?://[^\\s\"'<>\\\\`?#]+\\.(?:ts|m4s|aac|mp4|m4a|m4v|fmp4|cmfv|cmfa)\\?[^\\s\"'<>\\\\`]*")

	// textUnescaper undoes the escaping JSON and inline scripts apply to URLs.
	textUnescaper = strings.NewReplacer(
		`\/`, `/`,
		`\u002F`, `/`,
		`\u002f`, `/`,
		`\u0026`, `&`,
		`\u003D`, `=`,
		`\u003d`, `=`,
	)
)

// Matcher holds the URL classification rules shared by every source.
type Matcher struct {
	// RequireMarkerInBody only keeps body-scan URLs that carry an auth marker.
	RequireMarkerInBody bool
}

// IsManifestURL reports whether the URL ends in the manifest extension.
func (m Matcher) IsManifestURL(u string) bool {
	return candidate.ManifestPattern.MatchString(u)
}

// IsManifestMIME reports whether the content type denotes a playlist.
func (m Matcher) IsManifestMIME(mimeType string) bool {
	mt := strings.ToLower(mimeType)
	for _, t := range manifestMIMETypes {
		if strings.Contains(mt, t) {
			return true
		}
	}
	return false
}

// IsScannableMIME reports whether a body of this content type is worth
// scanning for embedded URLs.
func (m Matcher) IsScannableMIME(mimeType string) bool {
	mt := strings.ToLower(mimeType)
	for _, f := range scannableMIMEFragments {
		if strings.Contains(mt, f) {
			return true
		}
	}
	return false
}

// CaptureBody is the body filter handed to the browser tap.
func (m Matcher) CaptureBody(u, mimeType string) bool {
	return m.IsManifestURL(u) || m.IsManifestMIME(mimeType) || m.IsScannableMIME(mimeType)
}

// IsMarkedSegment reports whether the URL is a segment file with an auth marker.
func (m Matcher) IsMarkedSegment(u string) bool {
	return candidate.SegmentPattern.MatchString(u) && model.HasAuthMarker(u)
}

// Interesting reports whether a URL from a generic source should become a
// candidate: either a manifest URL or a marked segment.
func (m Matcher) Interesting(u string) bool {
	if !isHTTP(u) {
		return false
	}
	return m.IsManifestURL(u) || m.IsMarkedSegment(u)
}

// ExtractURLs returns absolute manifest URLs embedded in text, in order of
// appearance and without duplicates. When withSegments is set, marked
// segment URLs are returned too.
func (m Matcher) ExtractURLs(text string, withSegments bool) []string {
	if text == "" {
		return nil
	}
	// Escaped and entity-encoded text still contains the extension.
	if !withSegments && !strings.Contains(strings.ToLower(text), ".m3u8") {
		return nil
	}
	clean := textUnescaper.Replace(html.UnescapeString(text))

	seen := make(map[string]bool)
	var out []string
	add := func(u string) {
		u = strings.TrimRight(u, ".,;)]}")
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}

	for _, u := range manifestURLInText.FindAllString(clean, -1) {
		add(u)
	}
	if withSegments {
		for _, u := range segmentURLInText.FindAllString(clean, -1) {
			if model.HasAuthMarker(u) {
				add(u)
			}
		}
	}
	return out
}

// ExtractBodyURLs applies the body-scan policy to a response body.
func (m Matcher) ExtractBodyURLs(body string) []string {
	urls := m.ExtractURLs(body, false)
	if !m.RequireMarkerInBody {
		return urls
	}
	kept := urls[:0]
	for _, u := range urls {
		if model.HasAuthMarker(u) {
			kept = append(kept, u)
		}
	}
	return kept
}

// isHTTP reports whether u is an absolute http or https URL.
func isHTTP(u string) bool {
	lower := strings.ToLower(u)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
