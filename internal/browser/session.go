package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// WaitPolicy selects which page lifecycle event ends a navigation.
type WaitPolicy string

const (
	// WaitDOMContentLoaded waits for the DOMContentLoaded event.
	WaitDOMContentLoaded WaitPolicy = "domcontentloaded"

	// WaitLoad waits for the load event.
	WaitLoad WaitPolicy = "load"

	// WaitNetworkIdle waits for the network to go quiet.
	WaitNetworkIdle WaitPolicy = "networkidle"
)

// ParseWaitPolicy validates a wait policy name.
func ParseWaitPolicy(s string) (WaitPolicy, error) {
	switch WaitPolicy(s) {
	case WaitDOMContentLoaded, WaitLoad, WaitNetworkIdle:
		return WaitPolicy(s), nil
	default:
		return "", ErrUnknownWaitPolicy
	}
}

// FrameScope selects which documents QueryAndClick searches.
type FrameScope int

const (
	// ScopeMainFrame searches only the top-level document.
	ScopeMainFrame FrameScope = iota

	// ScopeAllFrames searches the top-level document and every nested frame.
	ScopeAllFrames
)

// Key is a keyboard key understood by PressKey.
type Key string

const (
	// KeySpace is the space bar.
	KeySpace Key = "Space"

	// KeyEnter is the enter key.
	KeyEnter Key = "Enter"
)

// EventKind classifies a raw network tap event.
type EventKind int

const (
	// EventRequest is an outbound request.
	EventRequest EventKind = iota

	// EventResponse is a response header arrival.
	EventResponse

	// EventResponseBody is a fully loaded response body.
	EventResponseBody

	// EventSocketFrame is a WebSocket frame in either direction.
	EventSocketFrame
)

// Event is a raw observation from the browser's network tap.
type Event struct {
	Kind      EventKind
	RequestID string
	URL       string
	MIMEType  string
	Status    int
	Body      string
	At        time.Time
}

// BodyFilter decides whether a response body should be fetched, given its
// URL and MIME type.
type BodyFilter func(url, mimeType string) bool

// Session is the browser collaborator driven by the attempt controller and
// observed by the instrumentation adapter.
type Session interface {
	// Navigate loads url and waits for the policy's lifecycle event.
	Navigate(ctx context.Context, url string, wait WaitPolicy) error

	// Reload reloads the current document.
	Reload(ctx context.Context, wait WaitPolicy) error

	// QueryAndClick clicks the first element matching any selector, in
	// order, within scope. It reports whether something was clicked.
	QueryAndClick(ctx context.Context, selectors []string, scope FrameScope) (bool, error)

	// PressKey sends a key press to the focused document.
	PressKey(ctx context.Context, key Key) error

	// Evaluate runs a JavaScript function expression and returns its
	// JSON-encoded result.
	Evaluate(ctx context.Context, script string) (json.RawMessage, error)

	// InjectOnNewDocument registers a script that runs before any page
	// script in every subsequently created document.
	InjectOnNewDocument(ctx context.Context, script string) error

	// Cookies returns the cookies visible to the current document.
	Cookies(ctx context.Context) ([]*http.Cookie, error)

	// SetCookies seeds the browser cookie store.
	SetCookies(ctx context.Context, cookies []*http.Cookie) error

	// Events streams raw network tap events until ctx is done. Response
	// bodies are fetched only when capture returns true.
	Events(ctx context.Context, capture BodyFilter) <-chan Event

	// Close releases the page and any browser it owns.
	Close() error
}
