package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nao1215/streamscout/internal/browser"
	"github.com/nao1215/streamscout/internal/delivery"
	"github.com/nao1215/streamscout/internal/instrument"
	"github.com/nao1215/streamscout/internal/model"
	"github.com/nao1215/streamscout/internal/verify"
)

// fakeSession records what the controller asked the browser to do.
type fakeSession struct {
	mu        sync.Mutex
	navigates int
	reloads   int
	clicks    []string
	keys      []browser.Key
	clickable map[string]bool
	navErr    error

	// onLoad runs after every navigation or reload with the load count.
	onLoad func(n int)
	// onClick runs after a successful click.
	onClick func(selector string)
}

func (s *fakeSession) load(nav bool) error {
	s.mu.Lock()
	if nav {
		s.navigates++
	} else {
		s.reloads++
	}
	n := s.navigates + s.reloads
	hook := s.onLoad
	err := s.navErr
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return err
}

func (s *fakeSession) Navigate(context.Context, string, browser.WaitPolicy) error { return s.load(true) }
func (s *fakeSession) Reload(context.Context, browser.WaitPolicy) error { return s.load(false) }

func (s *fakeSession) QueryAndClick(_ context.Context, selectors []string, _ browser.FrameScope) (bool, error) {
	s.mu.Lock()
	s.clicks = append(s.clicks, selectors...)
	hit := false
	for _, sel := range selectors {
		if s.clickable[sel] {
			hit = true
		}
	}
	hook := s.onClick
	s.mu.Unlock()
	if hit && hook != nil {
		hook(selectors[0])
	}
	return hit, nil
}

func (s *fakeSession) PressKey(_ context.Context, key browser.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return nil
}

func (s *fakeSession) Evaluate(context.Context, string) (json.RawMessage, error) {
	return json.RawMessage("null"), nil
}

func (s *fakeSession) InjectOnNewDocument(context.Context, string) error { return nil }

func (s *fakeSession) Cookies(context.Context) ([]*http.Cookie, error) {
	return []*http.Cookie{{Name: "sid", Value: "1"}}, nil
}

func (s *fakeSession) SetCookies(context.Context, []*http.Cookie) error { return nil }

func (s *fakeSession) Events(context.Context, browser.BodyFilter) <-chan browser.Event {
	return make(chan browser.Event)
}

func (s *fakeSession) Close() error { return nil }

func (s *fakeSession) counts() (navigates, reloads int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigates, s.reloads
}

// fakeInstrumenter lets a test push signals as if a source had seen them.
type fakeInstrumenter struct {
	out chan model.Signal
}

func newFakeInstrumenter() *fakeInstrumenter {
	return &fakeInstrumenter{out: make(chan model.Signal, 256)}
}

func (f *fakeInstrumenter) Prepare(context.Context, instrument.Page) error { return nil }

func (f *fakeInstrumenter) Observe(context.Context, instrument.Page) <-chan model.Signal {
	return f.out
}

func (f *fakeInstrumenter) ObservedBody(string) (string, bool) { return "", false }

func (f *fakeInstrumenter) emit(urls ...string) {
	for _, u := range urls {
		f.out <- model.NewSignal(u, model.ChannelRequestTap)
	}
}

// fakeVerifier accepts the URLs in accept and rejects everything else.
type fakeVerifier struct {
	mu     sync.Mutex
	accept map[string]bool
	calls  []string
}

func (v *fakeVerifier) Verify(_ context.Context, rawURL string, sc verify.SessionContext) (*model.Manifest, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, rawURL)
	if sc.Referer == "" || len(sc.Cookies) == 0 {
		return nil, errors.New("session context missing")
	}
	if v.accept[rawURL] {
		return &model.Manifest{
			SourceURL:         rawURL,
			RawContent:        "#EXTM3U\n",
			NormalizedContent: "#EXTM3U\n",
			Verified:          true,
			RetrievalPath:     verify.PathSession,
		}, nil
	}
	return nil, &verify.RejectionError{URL: rawURL, Reason: verify.ReasonNoSentinel}
}

func (v *fakeVerifier) calledWith() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.calls...)
}

// fakeDeliverer fails the first failures sends.
type fakeDeliverer struct {
	mu       sync.Mutex
	failures int
	payloads []delivery.Payload
}

func (d *fakeDeliverer) Send(_ context.Context, p delivery.Payload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads = append(d.payloads, p)
	if d.failures > 0 {
		d.failures--
		return &delivery.StatusError{StatusCode: http.StatusBadGateway}
	}
	return nil
}

func (d *fakeDeliverer) sent() []delivery.Payload {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]delivery.Payload(nil), d.payloads...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastPolicy keeps every wait in the millisecond range.
func fastPolicy() Policy {
	p := DefaultPolicy()
	p.NavigationTimeout = time.Second
	p.PostLoadWait = 0
	p.ClickSettle = 5 * time.Millisecond
	p.KeySettle = time.Millisecond
	p.SignalTimeout = 50 * time.Millisecond
	p.PollInterval = 2 * time.Millisecond
	p.VerifyTimeout = time.Second
	p.DeliveryTimeout = time.Second
	p.BackoffBase = time.Millisecond
	p.RunBudget = 10 * time.Second
	return p
}
