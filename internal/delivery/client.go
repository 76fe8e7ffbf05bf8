package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/streamscout/internal/model"
)

// DefaultTimeout bounds one delivery request.
const DefaultTimeout = 15 * time.Second

// Source describes where the delivered URL came from.
type Source struct {
	Channel     model.Channel `json:"channel"`
	FirstSeenAt time.Time     `json:"firstSeenAt"`
	Tier        model.Tier    `json:"tier"`
	Inferred    bool          `json:"inferred"`
}

// Payload is the JSON document posted to the sink.
type Payload struct {
	PlaylistURL     string  `json:"playlistUrl"`
	PlaylistContent string  `json:"playlistContent,omitempty"`
	Source          *Source `json:"source,omitempty"`
	Fingerprint     string  `json:"fingerprint,omitempty"`
}

// NewPayload builds the payload for a verified manifest. includeContent
// controls whether the normalized playlist is embedded.
func NewPayload(sel *model.Selection, m *model.Manifest, includeContent bool) Payload {
	p := Payload{}
	if m != nil {
		p.PlaylistURL = m.SourceURL
		p.Fingerprint = m.Fingerprint()
		if includeContent {
			p.PlaylistContent = m.NormalizedContent
		}
	}
	if sel != nil {
		if p.PlaylistURL == "" {
			p.PlaylistURL = sel.URL
		}
		p.Source = &Source{
			Channel:     sel.Candidate.FirstChannel,
			FirstSeenAt: sel.Candidate.FirstSeenAt,
			Tier:        sel.Tier,
			Inferred:    sel.Inferred,
		}
	}
	return p
}

// Client posts verified results to the sink's update endpoint.
type Client struct {
	endpoint   string
	secret     string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client for endpoint. Trailing slashes on endpoint
// are ignored.
func NewClient(endpoint, secret string, opts ...Option) *Client {
	c := &Client{
		endpoint:  strings.TrimRight(endpoint, "/"),
		secret:    secret,
		userAgent: "streamscout",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// UpdateURL returns the URL payloads are posted to.
func (c *Client) UpdateURL() string {
	return c.endpoint + "/update"
}

// Send posts p. Any 2xx status is success. Other statuses are returned as
// *StatusError.
func (c *Client) Send(ctx context.Context, p Payload) error {
	if p.PlaylistURL == "" {
		return ErrNothingToSend
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.UpdateURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to sink: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best effort
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
	}
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for reuse

	c.logger.Info("delivered manifest", "url", p.PlaylistURL, "status", resp.StatusCode)
	return nil
}
