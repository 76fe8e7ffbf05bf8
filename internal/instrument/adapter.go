package instrument

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/streamscout/internal/browser"
	"github.com/nao1215/streamscout/internal/model"
)

const (
	// DefaultPollInterval is how often in-page sources are sampled.
	DefaultPollInterval = 500 * time.Millisecond

	// defaultEvalTimeout bounds a single in-page evaluation.
	defaultEvalTimeout = 2 * time.Second

	// signalBuffer is the capacity of the channel returned by Observe.
	signalBuffer = 256
)

// Page is the part of the browser session the adapter observes.
type Page interface {
	Events(ctx context.Context, capture browser.BodyFilter) <-chan browser.Event
	Evaluate(ctx context.Context, script string) (json.RawMessage, error)
	InjectOnNewDocument(ctx context.Context, script string) error
}

// Emit delivers one signal to the adapter's output.
type Emit func(model.Signal)

// Source is one independent observation channel. Run blocks until ctx is
// done or the source has nothing more to observe.
type Source interface {
	Name() string
	Run(ctx context.Context, page Page, emit Emit) error
}

// Adapter turns raw browser observations into Signals.
//
// The default sources are the network tap (requests, responses, captured
// bodies and WebSocket frames) and four in-page samplers polled every
// PollInterval: the fetch/XHR hook buffer, media elements across frames,
// top-level globals and resource-timing entries. The hook buffer is filled
// by a script that Prepare installs before any page script runs.
//
// Each source runs in its own goroutine. A source that returns an error or
// panics is logged and stops alone; the others keep emitting until ctx is
// done. Sources may emit the same URL many times, and deduplication is
// left to the candidate store.
type Adapter struct {
	matcher      Matcher
	cache        *BodyCache
	logger       *slog.Logger
	pollInterval time.Duration
	sources      []Source
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithMatcher replaces the URL classification rules.
func WithMatcher(m Matcher) Option {
	return func(a *Adapter) {
		a.matcher = m
	}
}

// WithPollInterval sets how often in-page sources are sampled.
func WithPollInterval(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.pollInterval = d
		}
	}
}

// WithSources replaces the default source set.
func WithSources(sources ...Source) Option {
	return func(a *Adapter) {
		a.sources = sources
	}
}

// NewAdapter creates an Adapter with every built-in source enabled.
func NewAdapter(opts ...Option) *Adapter {
	a := &Adapter{
		cache:        NewBodyCache(),
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.sources == nil {
		a.sources = a.DefaultSources()
	}
	return a
}

// DefaultSources returns the network tap plus the four in-page sources.
func (a *Adapter) DefaultSources() []Source {
	return []Source{
		&tapSource{adapter: a},
		a.pollSource("hook-capture", model.ChannelHookCapture, drainHooksScript, decodeStrings, a.matcher.Interesting),
		a.pollSource("dom-scan", model.ChannelDomScan, domScanScript, decodeStrings, isHTTP),
		a.pollSource("global-scan", model.ChannelGlobalScan, globalScanScript, a.decodeText, a.matcher.IsManifestURL),
		a.pollSource("timing-scan", model.ChannelTimingScan, timingScanScript, decodeStrings, a.matcher.IsManifestURL),
	}
}

// ObservedBody returns a manifest body captured on the response channel.
func (a *Adapter) ObservedBody(url string) (string, bool) {
	return a.cache.Get(url)
}

// Prepare installs the in-page capture hooks. It must run before the first
// navigation so the hooks precede every page script.
func (a *Adapter) Prepare(ctx context.Context, page Page) error {
	if err := page.InjectOnNewDocument(ctx, hookInitScript); err != nil {
		return fmt.Errorf("install capture hooks: %w", err)
	}
	return nil
}

// Observe starts every source and returns their merged Signals. The channel
// is closed once ctx is done and all sources have returned.
func (a *Adapter) Observe(ctx context.Context, page Page) <-chan model.Signal {
	out := make(chan model.Signal, signalBuffer)
	emit := func(sig model.Signal) {
		select {
		case out <- sig:
		case <-ctx.Done():
		}
	}

	var g errgroup.Group
	for _, src := range a.sources {
		g.Go(func() error {
			a.runIsolated(ctx, src, page, emit)
			return nil
		})
	}

	go func() {
		_ = g.Wait() //nolint:errcheck // sources never return errors to the group
		close(out)
	}()
	return out
}

// runIsolated runs one source, containing its panics and errors.
func (a *Adapter) runIsolated(ctx context.Context, src Source, page Page, emit Emit) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("instrumentation source panicked", "source", src.Name(), "panic", r)
		}
	}()

	if err := src.Run(ctx, page, emit); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		a.logger.Warn("instrumentation source stopped", "source", src.Name(), "error", err)
	}
}

// guard runs fn and turns a panic into a logged warning.
func (a *Adapter) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("instrumentation handler panicked", "source", name, "panic", r)
		}
	}()
	fn()
}

// decodeStrings decodes a JSON array of strings.
func decodeStrings(raw json.RawMessage) ([]string, error) {
	var out []string
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeText decodes a JSON string and extracts manifest URLs from it.
func (a *Adapter) decodeText(raw json.RawMessage) ([]string, error) {
	var text string
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, err
	}
	return a.matcher.ExtractURLs(text, false), nil
}
