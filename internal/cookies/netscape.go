package cookies

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// httpOnlyPrefix marks HttpOnly cookies in files written by curl and browsers.
const httpOnlyPrefix = "#HttpOnly_"

// ErrNoCookies is returned by LoadFile when the file holds no usable cookie.
var ErrNoCookies = errors.New("no cookies found")

// ParseNetscape reads cookies.txt lines of the form
// domain, include-subdomains, path, secure, expiry, name, value
// separated by tabs. Cookies already expired at now are skipped. An expiry
// of 0 denotes a session cookie.
func ParseNetscape(r io.Reader, now time.Time) ([]*http.Cookie, error) {
	var out []*http.Cookie
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			line = strings.TrimPrefix(line, httpOnlyPrefix)
			httpOnly = true
		}
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}

		domain := fields[0]
		if strings.EqualFold(fields[1], "TRUE") && !strings.HasPrefix(domain, ".") {
			domain = "." + domain
		}

		ck := &http.Cookie{
			Domain:   domain,
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			Name:     fields[5],
			Value:    strings.Join(fields[6:], "\t"),
			HttpOnly: httpOnly,
		}
		if ck.Name == "" {
			continue
		}
		if expires, err := strconv.ParseInt(fields[4], 10, 64); err == nil && expires > 0 {
			ck.Expires = time.Unix(expires, 0)
			if ck.Expires.Before(now) {
				continue
			}
		}
		out = append(out, ck)
	}
	return out, scanner.Err()
}

// LoadFile parses the cookies.txt file at path.
func LoadFile(path string, now time.Time) ([]*http.Cookie, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the user
	if err != nil {
		return nil, fmt.Errorf("open cookie file: %w", err)
	}
	defer f.Close()

	cookies, err := ParseNetscape(f, now)
	if err != nil {
		return nil, fmt.Errorf("parse cookie file %s: %w", path, err)
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoCookies)
	}
	return cookies, nil
}
