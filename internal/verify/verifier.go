package verify

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/streamscout/internal/fetch"
	"github.com/nao1215/streamscout/internal/model"
)

// Retrieval path names recorded on a verified Manifest.
const (
	PathObserved  = "observed"
	PathSession   = "session"
	PathAnonymous = "anonymous"
)

// DefaultTimeout bounds each retrieval path.
const DefaultTimeout = 10 * time.Second

// Retriever is the HTTP retrieval collaborator.
type Retriever interface {
	Get(ctx context.Context, rawURL string, headers http.Header, cookies []*http.Cookie) (*fetch.Response, error)
}

// SessionContext carries what the browser session knows when a candidate
// is verified.
type SessionContext struct {
	// Cookies are the browser session cookies.
	Cookies []*http.Cookie

	// Referer is sent on the session retrieval, normally the target page.
	Referer string

	// UserAgent matches the browser's user agent when set.
	UserAgent string

	// ObservedBody returns a body already captured from the response tap.
	ObservedBody func(url string) (string, bool)
}

// Verifier confirms candidates against the manifest sentinel.
//
// A candidate is retrieved along up to three paths, in order: the body the
// response tap already captured, a request carrying the session cookies
// and the target as Referer, and a plain request without either. The first
// body that contains the sentinel is normalized against its final URL and
// returned as a Manifest. When no path yields the sentinel the result is a
// *RejectionError whose reason tells a wrong body ("no-sentinel") apart
// from no body at all ("retrieval-failed").
//
// Rejection is an ordinary outcome. Callers try the next candidate.
type Verifier struct {
	retriever Retriever
	logger    *slog.Logger
	timeout   time.Duration
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// WithTimeout sets the per-path retrieval timeout.
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// NewVerifier creates a Verifier using r for fresh retrievals.
func NewVerifier(r Retriever, opts ...Option) *Verifier {
	v := &Verifier{
		retriever: r,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	return v
}

// Verify tries the observed body, then a session retrieval, then an
// anonymous one, and accepts the first body containing the sentinel. A
// rejection is returned as *RejectionError.
func (v *Verifier) Verify(ctx context.Context, rawURL string, sc SessionContext) (*model.Manifest, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &RejectionError{URL: rawURL, Reason: ReasonInvalidURL, Cause: err}
	}

	retrievedOK := false
	var lastErr error

	if sc.ObservedBody != nil {
		if body, ok := sc.ObservedBody(rawURL); ok {
			retrievedOK = true
			if strings.Contains(body, model.Sentinel) {
				return v.accept(rawURL, rawURL, body, PathObserved)
			}
			v.logger.Debug("observed body lacks sentinel", "url", rawURL)
		}
	}

	paths := []struct {
		name    string
		headers http.Header
		cookies []*http.Cookie
	}{
		{name: PathSession, headers: sessionHeaders(sc), cookies: sc.Cookies},
		{name: PathAnonymous, headers: anonymousHeaders(sc)},
	}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, &RejectionError{URL: rawURL, Reason: ReasonRetrievalFailed, Cause: err}
		}

		resp, err := v.get(ctx, rawURL, p.headers, p.cookies)
		if err != nil {
			lastErr = err
			v.logger.Debug("retrieval failed", "path", p.name, "url", rawURL, "error", err)
			continue
		}
		if !resp.OK() {
			v.logger.Debug("retrieval not successful", "path", p.name, "url", rawURL, "status", resp.StatusCode)
			continue
		}
		retrievedOK = true

		body := string(resp.Body)
		if !strings.Contains(body, model.Sentinel) {
			v.logger.Debug("body lacks sentinel", "path", p.name, "url", rawURL)
			continue
		}
		base := resp.FinalURL
		if base == "" {
			base = rawURL
		}
		return v.accept(rawURL, base, body, p.name)
	}

	if retrievedOK {
		return nil, &RejectionError{URL: rawURL, Reason: ReasonNoSentinel}
	}
	return nil, &RejectionError{URL: rawURL, Reason: ReasonRetrievalFailed, Cause: lastErr}
}

func (v *Verifier) get(ctx context.Context, rawURL string, headers http.Header, cookies []*http.Cookie) (*fetch.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	return v.retriever.Get(ctx, rawURL, headers, cookies)
}

func (v *Verifier) accept(sourceURL, base, body, path string) (*model.Manifest, error) {
	normalized, err := Normalize(body, base)
	if err != nil {
		return nil, &RejectionError{URL: sourceURL, Reason: ReasonInvalidURL, Cause: err}
	}
	return &model.Manifest{
		SourceURL:         sourceURL,
		ResponseURL:       base,
		RawContent:        body,
		NormalizedContent: normalized,
		Verified:          true,
		RetrievalPath:     path,
	}, nil
}

func sessionHeaders(sc SessionContext) http.Header {
	h := anonymousHeaders(sc)
	if sc.Referer != "" {
		h.Set("Referer", sc.Referer)
		if ref, err := url.Parse(sc.Referer); err == nil && ref.Host != "" {
			h.Set("Origin", ref.Scheme+"://"+ref.Host)
		}
	}
	return h
}

func anonymousHeaders(sc SessionContext) http.Header {
	h := http.Header{}
	h.Set("Accept", "application/vnd.apple.mpegurl, application/x-mpegurl, */*")
	if sc.UserAgent != "" {
		h.Set("User-Agent", sc.UserAgent)
	}
	return h
}
