package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/streamscout/internal/proxy"
)

const (
	// DefaultTimeout bounds one retrieval including the body read.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxBodyBytes caps how much of a body is read.
	DefaultMaxBodyBytes = 5 << 20

	// maxRedirects stops redirect loops.
	maxRedirects = 10
)

// ErrTooManyRedirects is returned when a retrieval follows more than
// maxRedirects redirects.
var ErrTooManyRedirects = errors.New("too many redirects")

// Response is the result of a retrieval.
type Response struct {
	// StatusCode is the final HTTP status.
	StatusCode int

	// Header holds the final response headers.
	Header http.Header

	// Body is the response body, cut at the client's body cap.
	Body []byte

	// FinalURL is the URL after redirects.
	FinalURL string

	// Truncated is set when the body exceeded the cap.
	Truncated bool
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client performs plain GET retrievals, optionally through a SOCKS5 proxy.
type Client struct {
	httpClient   *http.Client
	maxBodyBytes int64
	userAgent    string
	proxyAddress string
	timeout      time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithProxy routes every connection through the SOCKS5 proxy at address.
func WithProxy(address string) Option {
	return func(c *Client) {
		c.proxyAddress = address
	}
}

// WithTimeout sets the per-retrieval timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxBodyBytes sets the body cap.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent sent when the caller supplies none.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHTTPClient replaces the underlying client. The proxy option is
// ignored when this is set.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient builds a Client. It fails only on an invalid proxy address.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		maxBodyBytes: DefaultMaxBodyBytes,
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // DefaultTransport is always *http.Transport
		transport.MaxIdleConnsPerHost = 2
		transport.IdleConnTimeout = 30 * time.Second

		if c.proxyAddress != "" {
			dialer, err := proxy.NewDialer(c.proxyAddress)
			if err != nil {
				return nil, err
			}
			transport.Proxy = nil
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			}
		}

		c.httpClient = &http.Client{
			Transport: transport,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return ErrTooManyRedirects
				}
				return nil
			},
		}
	}

	if c.userAgent != "" {
		base := c.httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		wrapped := *c.httpClient
		wrapped.Transport = &defaultHeaderTransport{
			base:    base,
			headers: map[string]string{"User-Agent": c.userAgent},
		}
		c.httpClient = &wrapped
	}
	return c, nil
}

// Get retrieves rawURL. headers are set on the request as given. cookies
// are filtered to those whose domain matches the request host. Non-2xx
// statuses are returned as a Response, not an error.
func (c *Client) Get(ctx context.Context, rawURL string, headers http.Header, cookies []*http.Cookie) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	for _, ck := range CookiesFor(req.URL.Hostname(), cookies) {
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FinalURL:   resp.Request.URL.String(),
	}
	if int64(len(body)) > c.maxBodyBytes {
		out.Body = body[:c.maxBodyBytes]
		out.Truncated = true
	}
	return out, nil
}

// CookiesFor returns the cookies that a browser would send to host.
// Host-only cookies without a Domain are always included.
func CookiesFor(host string, cookies []*http.Cookie) []*http.Cookie {
	host = strings.ToLower(host)
	var out []*http.Cookie
	for _, ck := range cookies {
		if ck == nil || ck.Name == "" {
			continue
		}
		domain := strings.ToLower(strings.TrimPrefix(ck.Domain, "."))
		if domain == "" || host == domain || strings.HasSuffix(host, "."+domain) {
			out = append(out, ck)
		}
	}
	return out
}

// defaultHeaderTransport sets headers the request does not already carry,
// including on redirected requests.
type defaultHeaderTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *defaultHeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for key, value := range t.headers {
		if clone.Header.Get(key) == "" {
			clone.Header.Set(key, value)
		}
	}
	return t.base.RoundTrip(clone)
}
