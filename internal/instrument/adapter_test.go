package instrument

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/nao1215/streamscout/internal/browser"
	"github.com/nao1215/streamscout/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakePage is an in-memory Page.
type fakePage struct {
	events    chan browser.Event
	results   map[string]json.RawMessage
	panicOn   map[string]bool
	injectErr error

	mu       sync.Mutex
	injected []string
}

func newFakePage() *fakePage {
	return &fakePage{
		events:  make(chan browser.Event, 16),
		results: map[string]json.RawMessage{},
		panicOn: map[string]bool{},
	}
}

func (f *fakePage) Events(context.Context, browser.BodyFilter) <-chan browser.Event {
	return f.events
}

func (f *fakePage) Evaluate(_ context.Context, script string) (json.RawMessage, error) {
	if f.panicOn[script] {
		panic("evaluation exploded")
	}
	if r, ok := f.results[script]; ok {
		return r, nil
	}
	return nil, errors.New("execution context was destroyed")
}

func (f *fakePage) InjectOnNewDocument(_ context.Context, script string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.injectErr != nil {
		return f.injectErr
	}
	f.injected = append(f.injected, script)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collect reads signals until every wanted URL has been seen or the timeout
// passes, then cancels and drains the channel until it closes.
func collect(t *testing.T, cancel context.CancelFunc, ch <-chan model.Signal, want []string) map[string]model.Signal {
	t.Helper()

	got := make(map[string]model.Signal)
	missing := func() int {
		n := 0
		for _, w := range want {
			if _, ok := got[w]; !ok {
				n++
			}
		}
		return n
	}

	timeout := time.After(5 * time.Second)
loop:
	for missing() > 0 {
		select {
		case sig, ok := <-ch:
			if !ok {
				break loop
			}
			if _, dup := got[sig.URL]; !dup {
				got[sig.URL] = sig
			}
		case <-timeout:
			break loop
		}
	}

	cancel()
	drained := time.After(5 * time.Second)
	for {
		select {
		case sig, ok := <-ch:
			if !ok {
				return got
			}
			if _, dup := got[sig.URL]; !dup {
				got[sig.URL] = sig
			}
		case <-drained:
			t.Fatal("signal channel was not closed after cancel")
		}
	}
}

// TestAdapterPrepare tests hook installation.
func TestAdapterPrepare(t *testing.T) {
	t.Parallel()

	t.Run("installs capture hooks", func(t *testing.T) {
		t.Parallel()

		page := newFakePage()
		if err := NewAdapter(WithLogger(quietLogger())).Prepare(context.Background(), page); err != nil {
			t.Fatalf("Prepare() error = %v", err)
		}
		if len(page.injected) != 1 || page.injected[0] != hookInitScript {
			t.Errorf("expected the hook script to be injected once, got %d scripts", len(page.injected))
		}
	})

	t.Run("wraps injection errors", func(t *testing.T) {
		t.Parallel()

		page := newFakePage()
		page.injectErr = browser.ErrClosed
		err := NewAdapter(WithLogger(quietLogger())).Prepare(context.Background(), page)
		if !errors.Is(err, browser.ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	})
}

// TestAdapterNetworkTap tests classification of protocol events.
func TestAdapterNetworkTap(t *testing.T) {
	t.Parallel()

	a := NewAdapter(WithLogger(quietLogger()))
	a.sources = []Source{&tapSource{adapter: a}}

	page := newFakePage()
	manifestBody := "#EXTM3U\n#EXT-X-VERSION:3\nseg0.ts\n"
	page.events <- browser.Event{Kind: browser.EventRequest, URL: "https://cdn.example/req/index.m3u8?token=1"}
	page.events <- browser.Event{Kind: browser.EventRequest, URL: "https://cdn.example/logo.png"}
	page.events <- browser.Event{Kind: browser.EventResponse, URL: "https://cdn.example/playlist?id=7", MIMEType: "application/vnd.apple.mpegurl"}
	page.events <- browser.Event{Kind: browser.EventResponseBody, URL: "https://cdn.example/playlist?id=7", MIMEType: "application/vnd.apple.mpegurl", Body: manifestBody}
	page.events <- browser.Event{Kind: browser.EventResponseBody, URL: "https://api.example/config", MIMEType: "application/json", Body: `{"stream":"https:\/\/cdn.example\/body\/master.m3u8"}`}
	page.events <- browser.Event{Kind: browser.EventSocketFrame, URL: "wss://rt.example/ws", Body: `{"type":"play","src":"https://cdn.example/ws/live.m3u8?sig=x"}`}
	page.events <- browser.Event{Kind: browser.EventSocketFrame, URL: "wss://rt.example/ws", Body: `{"src":"https://cdn.example/ws/UPPER.M3U8"}`}

	ctx, cancel := context.WithCancel(context.Background())
	want := map[string]model.Channel{
		"https://cdn.example/req/index.m3u8?token=1": model.ChannelRequestTap,
		"https://cdn.example/playlist?id=7":          model.ChannelResponseTap,
		"https://cdn.example/body/master.m3u8":       model.ChannelResponseBodyScan,
		"https://cdn.example/ws/live.m3u8?sig=x":     model.ChannelSocketFrame,
		"https://cdn.example/ws/UPPER.M3U8":          model.ChannelSocketFrame,
	}
	urls := make([]string, 0, len(want))
	for u := range want {
		urls = append(urls, u)
	}

	got := collect(t, cancel, a.Observe(ctx, page), urls)

	for u, ch := range want {
		sig, ok := got[u]
		if !ok {
			t.Errorf("missing signal for %s", u)
			continue
		}
		if sig.Channel != ch {
			t.Errorf("%s: channel = %v, want %v", u, sig.Channel, ch)
		}
	}
	if _, ok := got["https://cdn.example/logo.png"]; ok {
		t.Error("expected non-manifest request to be ignored")
	}

	body, ok := a.ObservedBody("https://cdn.example/playlist?id=7")
	if !ok || body != manifestBody {
		t.Errorf("expected captured manifest body, got %q (ok=%v)", body, ok)
	}
}

// TestAdapterInPageSources tests the polling sources. The manifest here is
// only reachable from page state, never from the network tap.
func TestAdapterInPageSources(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	page.results[drainHooksScript] = json.RawMessage(`["https://cdn.example/hook/a.m3u8","https://site.example/app.js"]`)
	page.results[domScanScript] = json.RawMessage(`["https://cdn.example/dom/b.m3u8","blob:https://site.example/1"]`)
	page.results[globalScanScript] = json.RawMessage(`"{\"player\":{\"src\":\"https://cdn.example/global/c.m3u8\"}}"`)
	page.results[timingScanScript] = json.RawMessage(`["https://cdn.example/timing/d.m3u8","https://site.example/img.png"]`)

	a := NewAdapter(WithLogger(quietLogger()), WithPollInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	want := map[string]model.Channel{
		"https://cdn.example/hook/a.m3u8":   model.ChannelHookCapture,
		"https://cdn.example/dom/b.m3u8":    model.ChannelDomScan,
		"https://cdn.example/global/c.m3u8": model.ChannelGlobalScan,
		"https://cdn.example/timing/d.m3u8": model.ChannelTimingScan,
	}
	urls := make([]string, 0, len(want))
	for u := range want {
		urls = append(urls, u)
	}

	got := collect(t, cancel, a.Observe(ctx, page), urls)

	for u, ch := range want {
		sig, ok := got[u]
		if !ok {
			t.Errorf("missing signal for %s", u)
			continue
		}
		if sig.Channel != ch {
			t.Errorf("%s: channel = %v, want %v", u, sig.Channel, ch)
		}
	}
	for _, unwanted := range []string{"https://site.example/app.js", "blob:https://site.example/1", "https://site.example/img.png"} {
		if _, ok := got[unwanted]; ok {
			t.Errorf("expected %s to be filtered", unwanted)
		}
	}
}

type panicSource struct{}

func (panicSource) Name() string { return "panics" }

func (panicSource) Run(context.Context, Page, Emit) error { panic("source exploded") }

type failingSource struct{}

func (failingSource) Name() string { return "fails" }

func (failingSource) Run(context.Context, Page, Emit) error { return errors.New("broken") }

type staticSource struct{ url string }

func (s staticSource) Name() string { return "static" }

func (s staticSource) Run(ctx context.Context, _ Page, emit Emit) error {
	emit(model.NewSignal(s.url, model.ChannelDomScan))
	<-ctx.Done()
	return ctx.Err()
}

// TestAdapterSourceIsolation tests that failing sources do not stop others.
func TestAdapterSourceIsolation(t *testing.T) {
	t.Parallel()

	t.Run("panicking and failing sources", func(t *testing.T) {
		t.Parallel()

		a := NewAdapter(
			WithLogger(quietLogger()),
			WithSources(panicSource{}, failingSource{}, staticSource{url: "https://cdn.example/ok.m3u8"}),
		)
		ctx, cancel := context.WithCancel(context.Background())

		got := collect(t, cancel, a.Observe(ctx, newFakePage()), []string{"https://cdn.example/ok.m3u8"})
		if _, ok := got["https://cdn.example/ok.m3u8"]; !ok {
			t.Error("expected the healthy source to keep emitting")
		}
	})

	t.Run("panicking evaluation", func(t *testing.T) {
		t.Parallel()

		page := newFakePage()
		page.panicOn[domScanScript] = true
		page.panicOn[drainHooksScript] = true
		page.results[timingScanScript] = json.RawMessage(`["https://cdn.example/t.m3u8"]`)

		a := NewAdapter(WithLogger(quietLogger()), WithPollInterval(10*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())

		got := collect(t, cancel, a.Observe(ctx, page), []string{"https://cdn.example/t.m3u8"})
		if _, ok := got["https://cdn.example/t.m3u8"]; !ok {
			t.Error("expected the timing source to survive other sources panicking")
		}
	})
}

// TestBodyCache tests bounded storage of captured bodies.
func TestBodyCache(t *testing.T) {
	t.Parallel()

	c := NewBodyCache()
	for i := range maxCachedBodies + 10 {
		c.Put(fmt.Sprintf("https://cdn.example/%d.m3u8", i), "body")
	}
	if c.Len() != maxCachedBodies {
		t.Errorf("expected %d cached bodies, got %d", maxCachedBodies, c.Len())
	}
	if _, ok := c.Get("https://cdn.example/0.m3u8"); ok {
		t.Error("expected the oldest body to be evicted")
	}

	c.Put("k", "v1")
	c.Put("k", "v2")
	if v, _ := c.Get("k"); v != "v2" {
		t.Errorf("expected overwrite, got %q", v)
	}
}
