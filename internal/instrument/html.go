package instrument

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// mediaAttributes are the attributes of media elements that may hold a
// stream URL.
var mediaAttributes = []string{"src", "data-src", "data-hls", "data-url", "data-stream", "data-file"}

// HTMLParser extracts stream references from an HTML document.
type HTMLParser struct {
	// baseURL resolves relative attribute values.
	baseURL *url.URL

	matcher Matcher
}

// PageMedia is what HTMLParser found in one document.
type PageMedia struct {
	// MediaSources are resolved src-like attributes of video, audio, source
	// and track elements, and of any element carrying a data-* stream attribute.
	MediaSources []string

	// MetaVideos are og:video style meta contents.
	MetaVideos []string

	// ScriptURLs are manifest URLs found in inline script text.
	ScriptURLs []string

	// Frames are resolved iframe sources, kept for diagnostics.
	Frames []string
}

// NewHTMLParser creates a parser that resolves against baseURL.
func NewHTMLParser(baseURL string, matcher Matcher) (*HTMLParser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &HTMLParser{baseURL: u, matcher: matcher}, nil
}

// Parse walks the document once and collects media references.
func (p *HTMLParser) Parse(content io.Reader) (*PageMedia, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	result := &PageMedia{}
	var scripts strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			p.processElement(n, result)
			if n.Data == "script" && getAttr(n, "src") == "" {
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.TextNode {
						scripts.WriteString(c.Data)
						scripts.WriteString("\n")
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	result.ScriptURLs = p.matcher.ExtractURLs(scripts.String(), true)
	return result, nil
}

// processElement handles one element node.
func (p *HTMLParser) processElement(n *html.Node, result *PageMedia) {
	switch n.Data {
	case "video", "audio", "source", "track":
		for _, attr := range mediaAttributes {
			if v := getAttr(n, attr); v != "" {
				if resolved := p.resolveURL(v); resolved != "" {
					result.MediaSources = append(result.MediaSources, resolved)
				}
			}
		}

	case "iframe", "frame":
		if src := getAttr(n, "src"); src != "" {
			if resolved := p.resolveURL(src); resolved != "" {
				result.Frames = append(result.Frames, resolved)
			}
		}

	case "meta":
		name := getAttr(n, "property")
		if name == "" {
			name = getAttr(n, "name")
		}
		if strings.HasPrefix(strings.ToLower(name), "og:video") || strings.HasPrefix(strings.ToLower(name), "twitter:player:stream") {
			if resolved := p.resolveURL(getAttr(n, "content")); resolved != "" {
				result.MetaVideos = append(result.MetaVideos, resolved)
			}
		}

	default:
		for _, attr := range mediaAttributes[1:] {
			if v := getAttr(n, attr); v != "" && strings.Contains(strings.ToLower(v), ".m3u8") {
				if resolved := p.resolveURL(v); resolved != "" {
					result.MediaSources = append(result.MediaSources, resolved)
				}
			}
		}
	}
}

// resolveURL resolves ref against the base URL. Non-HTTP results such as
// blob: and data: URLs are dropped.
func (p *HTMLParser) resolveURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	resolved := p.baseURL.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// Candidates returns the interesting URLs of a parsed page in document
// order without duplicates.
func (pm *PageMedia) Candidates(m Matcher) []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range [][]string{pm.MediaSources, pm.MetaVideos, pm.ScriptURLs} {
		for _, u := range group {
			if seen[u] || !m.Interesting(u) {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

// ExtractFromHTML parses an HTML body and returns the interesting URLs it
// references, resolved against baseURL.
func ExtractFromHTML(body, baseURL string, m Matcher) []string {
	p, err := NewHTMLParser(baseURL, m)
	if err != nil {
		return nil
	}
	media, err := p.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}
	return media.Candidates(m)
}

// getAttr returns the value of the named attribute, or "".
func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
