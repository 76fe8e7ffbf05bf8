package verify

import (
	"net/url"
	"regexp"
	"strings"
)

// referencePattern matches a playlist line naming a segment or a nested
// playlist by relative path.
var referencePattern = regexp.MustCompile(`(?i)^[^\s#][^\s]*\.(?:m3u8|ts|m4s|aac|mp4|m4a|m4v|fmp4|cmfv|cmfa|vtt|key)(?:\?\S*)?$`)

// absolutePattern matches lines that already carry a scheme.
var absolutePattern = regexp.MustCompile(`(?i)^[a-z][a-z0-9+.-]*://`)

// BaseDir returns scheme://host/dir/ for rawURL: the path with its final
// segment removed, without query or fragment.
func BaseDir(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	dir := u.EscapedPath()
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		dir = dir[:i+1]
	} else {
		dir = "/"
	}
	out := url.URL{Scheme: u.Scheme, User: u.User, Host: u.Host}
	return out.String() + dir, nil
}

// Normalize rewrites relative segment and playlist lines to absolute URLs
// under base's directory. Directive lines, absolute URLs and anything else
// are kept byte for byte, as are the line terminators.
func Normalize(content, base string) (string, error) {
	dir, err := BaseDir(base)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(content) + len(content)/4)

	rest := content
	for rest != "" {
		line, term := rest, ""
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			line, term = rest[:i], "\n"
			rest = rest[i+1:]
		} else {
			rest = ""
		}
		if strings.HasSuffix(line, "\r") {
			line = line[:len(line)-1]
			term = "\r" + term
		}

		b.WriteString(normalizeLine(line, dir))
		b.WriteString(term)
	}
	return b.String(), nil
}

func normalizeLine(line, dir string) string {
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") || absolutePattern.MatchString(line) {
		return line
	}
	if !referencePattern.MatchString(line) {
		return line
	}
	rel := line
	for {
		switch {
		case strings.HasPrefix(rel, "./"):
			rel = rel[2:]
		case strings.HasPrefix(rel, "/"):
			rel = rel[1:]
		default:
			return dir + rel
		}
	}
}
