package instrument

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nao1215/streamscout/internal/browser"
	"github.com/nao1215/streamscout/internal/model"
)

// tapSource classifies network traffic from the browser protocol. It feeds
// the request, response, body scan and socket frame channels.
type tapSource struct {
	adapter *Adapter
}

func (t *tapSource) Name() string { return "network-tap" }

func (t *tapSource) Run(ctx context.Context, page Page, emit Emit) error {
	events := page.Events(ctx, t.adapter.matcher.CaptureBody)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			t.handle(ev, emit)
		}
	}
}

// handle dispatches one event. Each classifier is guarded on its own so a
// bad payload only loses that event.
func (t *tapSource) handle(ev browser.Event, emit Emit) {
	a := t.adapter
	m := a.matcher

	switch ev.Kind {
	case browser.EventRequest:
		a.guard("request-tap", func() {
			if isHTTP(ev.URL) && m.IsManifestURL(ev.URL) {
				emit(signalAt(ev.URL, model.ChannelRequestTap, ev.At))
			}
		})

	case browser.EventResponse:
		a.guard("response-tap", func() {
			if isHTTP(ev.URL) && (m.IsManifestURL(ev.URL) || m.IsManifestMIME(ev.MIMEType)) {
				emit(signalAt(ev.URL, model.ChannelResponseTap, ev.At))
			}
		})

	case browser.EventResponseBody:
		a.guard("response-body", func() {
			t.handleBody(ev, emit)
		})

	case browser.EventSocketFrame:
		a.guard("socket-frame", func() {
			payload := ev.Body
			if !strings.Contains(strings.ToLower(payload), ".m3u8") && !model.HasAuthMarker(payload) {
				return
			}
			for _, u := range m.ExtractURLs(payload, true) {
				emit(signalAt(u, model.ChannelSocketFrame, ev.At))
			}
		})
	}
}

func (t *tapSource) handleBody(ev browser.Event, emit Emit) {
	a := t.adapter
	m := a.matcher
	body := ev.Body

	isManifest := isHTTP(ev.URL) && (m.IsManifestURL(ev.URL) || m.IsManifestMIME(ev.MIMEType))
	if isManifest && strings.HasPrefix(strings.TrimLeft(body, "\ufeff \t\r\n"), model.Sentinel) {
		a.cache.Put(ev.URL, body)
		sig := signalAt(ev.URL, model.ChannelResponseTap, ev.At)
		sig.BodyExcerpt = excerpt(body)
		emit(sig)
	}

	if !m.IsScannableMIME(ev.MIMEType) {
		return
	}

	seen := make(map[string]bool)
	found := m.ExtractBodyURLs(body)
	if strings.Contains(strings.ToLower(ev.MIMEType), "html") {
		found = append(found, ExtractFromHTML(body, ev.URL, m)...)
	}
	for _, u := range found {
		if seen[u] || u == ev.URL {
			continue
		}
		seen[u] = true
		emit(signalAt(u, model.ChannelResponseBodyScan, ev.At))
	}
}

// pollSource samples page state on a fixed interval.
type pollSource struct {
	adapter  *Adapter
	name     string
	channel  model.Channel
	script   string
	decode   func(json.RawMessage) ([]string, error)
	accept   func(string) bool
	interval time.Duration
}

func (a *Adapter) pollSource(name string, ch model.Channel, script string, decode func(json.RawMessage) ([]string, error), accept func(string) bool) *pollSource {
	return &pollSource{
		adapter:  a,
		name:     name,
		channel:  ch,
		script:   script,
		decode:   decode,
		accept:   accept,
		interval: a.pollInterval,
	}
}

func (p *pollSource) Name() string { return p.name }

func (p *pollSource) Run(ctx context.Context, page Page, emit Emit) error {
	seen := make(map[string]bool)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.adapter.guard(p.name, func() {
			p.sample(ctx, page, emit, seen)
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// sample runs the script once. Evaluation errors are expected while a page
// navigates and are only logged at debug level.
func (p *pollSource) sample(ctx context.Context, page Page, emit Emit, seen map[string]bool) {
	evalCtx, cancel := context.WithTimeout(ctx, defaultEvalTimeout)
	defer cancel()

	raw, err := page.Evaluate(evalCtx, p.script)
	if err != nil {
		if ctx.Err() == nil {
			p.adapter.logger.Debug("in-page sample failed", "source", p.name, "error", err)
		}
		return
	}
	urls, err := p.decode(raw)
	if err != nil {
		p.adapter.logger.Debug("in-page sample undecodable", "source", p.name, "error", err)
		return
	}
	for _, u := range urls {
		if seen[u] || !p.accept(u) {
			continue
		}
		seen[u] = true
		emit(model.NewSignal(u, p.channel))
	}
}

// signalAt builds a signal stamped with the event time when known.
func signalAt(url string, ch model.Channel, at time.Time) model.Signal {
	sig := model.NewSignal(url, ch)
	if !at.IsZero() {
		sig.ObservedAt = at
	}
	return sig
}

// maxExcerpt bounds the body carried on a signal.
const maxExcerpt = 2 << 20

func excerpt(body string) string {
	if len(body) > maxExcerpt {
		return body[:maxExcerpt]
	}
	return body
}
