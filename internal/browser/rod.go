package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

const (
	// eventBuffer is the capacity of the channel returned by Events.
	eventBuffer = 512

	// maxFrameDepth bounds recursion into nested frames.
	maxFrameDepth = 4

	// clickTimeout bounds how long a single click waits for its element to
	// become interactable before the script click fallback is used.
	clickTimeout = 2 * time.Second

	// defaultMaxBodyBytes caps captured response bodies.
	defaultMaxBodyBytes = 2 * 1024 * 1024
)

// LaunchOptions configures Launch.
type LaunchOptions struct {
	// Bin is the browser executable. Empty means rod's managed browser.
	Bin string

	// ControlURL connects to an already running browser instead of
	// launching one.
	ControlURL string

	// Headless runs the browser without a window.
	Headless bool

	// Proxy routes browser traffic, e.g. "socks5://127.0.0.1:9050".
	Proxy string

	// UserAgent overrides the navigator user agent.
	UserAgent string

	// Locale is sent as Accept-Language and passed as --lang.
	Locale string

	// ViewportWidth and ViewportHeight set the emulated viewport.
	ViewportWidth  int
	ViewportHeight int

	// MaxBodyBytes caps captured response bodies. Zero uses 2 MiB.
	MaxBodyBytes int

	// Logger receives debug output. Nil uses slog.Default().
	Logger *slog.Logger
}

// RodSession is a Session backed by a Chromium page driven through go-rod.
// The page lives in its own incognito context so runs never share cookies.
type RodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	maxBody  int
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ Session = (*RodSession)(nil)

// Launch starts (or connects to) a browser and opens a configured page.
func Launch(ctx context.Context, opts LaunchOptions) (*RodSession, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &RodSession{
		maxBody: opts.MaxBodyBytes,
		logger:  logger,
	}
	if s.maxBody <= 0 {
		s.maxBody = defaultMaxBodyBytes
	}

	controlURL := opts.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(opts.Headless).
			NoSandbox(true).
			Set(flags.Flag("disable-setuid-sandbox")).
			Set(flags.Flag("disable-dev-shm-usage"))
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		if opts.Proxy != "" {
			l = l.Proxy(opts.Proxy)
		}
		if opts.Locale != "" {
			l = l.Set(flags.Flag("lang"), opts.Locale)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		s.launcher = l
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		s.killLauncher()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	s.browser = b

	incognito, err := b.Incognito()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("create incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	s.page = page

	if err := s.configurePage(ctx, opts); err != nil {
		_ = s.Close()
		return nil, err
	}

	logger.Debug("browser session ready", "controlURL", controlURL, "headless", opts.Headless)
	return s, nil
}

// configurePage applies viewport, user agent and network settings.
func (s *RodSession) configurePage(ctx context.Context, opts LaunchOptions) error {
	p := s.page.Context(ctx)

	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.ViewportWidth,
			Height:            opts.ViewportHeight,
			DeviceScaleFactor: 1,
		}).Call(p); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
	}

	if opts.UserAgent != "" {
		if err := (proto.NetworkSetUserAgentOverride{
			UserAgent:      opts.UserAgent,
			AcceptLanguage: opts.Locale,
		}).Call(p); err != nil {
			return fmt.Errorf("set user agent: %w", err)
		}
	}

	if err := (proto.NetworkEnable{}).Call(p); err != nil {
		return fmt.Errorf("enable network domain: %w", err)
	}
	return nil
}

// lifecycleEvent maps a wait policy onto the CDP lifecycle event name.
func lifecycleEvent(wait WaitPolicy) proto.PageLifecycleEventName {
	switch wait {
	case WaitLoad:
		return proto.PageLifecycleEventNameLoad
	case WaitNetworkIdle:
		return proto.PageLifecycleEventNameNetworkIdle
	default:
		return proto.PageLifecycleEventNameDOMContentLoaded
	}
}

// Navigate implements Session.
func (s *RodSession) Navigate(ctx context.Context, url string, wait WaitPolicy) error {
	p := s.page.Context(ctx)
	waitNav := p.WaitNavigation(lifecycleEvent(wait))
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	waitNav()
	return ctx.Err()
}

// Reload implements Session.
func (s *RodSession) Reload(ctx context.Context, wait WaitPolicy) error {
	p := s.page.Context(ctx)
	waitNav := p.WaitNavigation(lifecycleEvent(wait))
	if err := p.Reload(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	waitNav()
	return ctx.Err()
}

// QueryAndClick implements Session.
func (s *RodSession) QueryAndClick(ctx context.Context, selectors []string, scope FrameScope) (bool, error) {
	var lastErr error
	for _, selector := range selectors {
		clicked, err := s.clickIn(ctx, s.page, selector, scope, 0)
		if clicked {
			s.logger.Debug("clicked element", "selector", selector)
			return true, nil
		}
		if err != nil {
			lastErr = err
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
	}
	return false, lastErr
}

// clickIn looks for selector in page, then in its frames when scope allows.
func (s *RodSession) clickIn(ctx context.Context, page *rod.Page, selector string, scope FrameScope, depth int) (bool, error) {
	p := page.Context(ctx)

	has, el, err := p.Has(selector)
	if err != nil {
		return false, fmt.Errorf("query %q: %w", selector, err)
	}
	if has {
		if err := el.Timeout(clickTimeout).Click(proto.InputMouseButtonLeft, 1); err == nil {
			return true, nil
		}
		// Hidden or covered controls still respond to a script click.
		if _, err := el.Eval(`() => this.click()`); err == nil {
			return true, nil
		}
	}

	if scope != ScopeAllFrames || depth >= maxFrameDepth {
		return false, nil
	}

	frames, err := p.Elements("iframe, frame")
	if err != nil {
		return false, nil //nolint:nilerr // frames vanish during navigation
	}
	for _, fe := range frames {
		fp, err := fe.Frame()
		if err != nil {
			continue
		}
		if clicked, _ := s.clickIn(ctx, fp, selector, scope, depth+1); clicked {
			return true, nil
		}
	}
	return false, nil
}

// PressKey implements Session.
func (s *RodSession) PressKey(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var k input.Key
	switch key {
	case KeySpace:
		k = input.Space
	case KeyEnter:
		k = input.Enter
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	// Page.Keyboard stays bound to the page it was created from, so the
	// events are dispatched on a ctx-bound page instead.
	page := s.page.Context(ctx)
	if err := k.Encode(proto.InputDispatchKeyEventTypeKeyDown, 0).Call(page); err != nil {
		return fmt.Errorf("key down %s: %w", key, err)
	}
	if err := k.Encode(proto.InputDispatchKeyEventTypeKeyUp, 0).Call(page); err != nil {
		return fmt.Errorf("key up %s: %w", key, err)
	}
	return nil
}

// Evaluate implements Session.
func (s *RodSession) Evaluate(ctx context.Context, script string) (json.RawMessage, error) {
	res, err := s.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           script,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode evaluation result: %w", err)
	}
	return raw, nil
}

// InjectOnNewDocument implements Session.
func (s *RodSession) InjectOnNewDocument(ctx context.Context, script string) error {
	if _, err := s.page.Context(ctx).EvalOnNewDocument(script); err != nil {
		return fmt.Errorf("inject init script: %w", err)
	}
	return nil
}

// Cookies implements Session.
func (s *RodSession) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	cookies, err := s.page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out, nil
}

// SetCookies implements Session.
func (s *RodSession) SetCookies(ctx context.Context, cookies []*http.Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		})
	}
	if err := s.page.Context(ctx).SetCookies(params); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

// Events implements Session.
func (s *RodSession) Events(ctx context.Context, capture BodyFilter) <-chan Event {
	out := make(chan Event, eventBuffer)

	var (
		pending sync.Map
		bodies  sync.WaitGroup
	)
	emit := func(ev Event) {
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}
	emitFrame := func(id proto.NetworkRequestID, frame *proto.NetworkWebSocketFrame) {
		if frame == nil || frame.PayloadData == "" {
			return
		}
		emit(Event{Kind: EventSocketFrame, RequestID: string(id), Body: frame.PayloadData, At: time.Now()})
	}

	wait := s.page.Context(ctx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			if e.Request == nil {
				return
			}
			emit(Event{Kind: EventRequest, RequestID: string(e.RequestID), URL: e.Request.URL, At: time.Now()})
		},
		func(e *proto.NetworkResponseReceived) {
			if e.Response == nil {
				return
			}
			ev := Event{
				Kind:      EventResponse,
				RequestID: string(e.RequestID),
				URL:       e.Response.URL,
				MIMEType:  e.Response.MIMEType,
				Status:    e.Response.Status,
				At:        time.Now(),
			}
			emit(ev)
			if capture != nil && capture(ev.URL, ev.MIMEType) {
				pending.Store(e.RequestID, ev)
			}
		},
		func(e *proto.NetworkLoadingFinished) {
			v, ok := pending.LoadAndDelete(e.RequestID)
			if !ok {
				return
			}
			meta, _ := v.(Event) //nolint:errcheck // only Events are stored
			bodies.Add(1)
			go func() {
				defer bodies.Done()
				s.fetchBody(ctx, e.RequestID, meta, emit)
			}()
		},
		func(e *proto.NetworkLoadingFailed) {
			pending.Delete(e.RequestID)
		},
		func(e *proto.NetworkWebSocketFrameReceived) {
			emitFrame(e.RequestID, e.Response)
		},
		func(e *proto.NetworkWebSocketFrameSent) {
			emitFrame(e.RequestID, e.Response)
		},
	)

	go func() {
		wait()
		bodies.Wait()
		close(out)
	}()
	return out
}

// fetchBody retrieves a finished response body and emits it.
func (s *RodSession) fetchBody(ctx context.Context, id proto.NetworkRequestID, meta Event, emit func(Event)) {
	res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(s.page.Context(ctx))
	if err != nil {
		s.logger.Debug("response body unavailable", "url", meta.URL, "error", err)
		return
	}

	body := res.Body
	if res.Base64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return
		}
		body = string(decoded)
	}
	if len(body) > s.maxBody {
		body = body[:s.maxBody]
	}

	meta.Kind = EventResponseBody
	meta.Body = body
	meta.At = time.Now()
	emit(meta)
}

// Close implements Session.
func (s *RodSession) Close() error {
	s.closeOnce.Do(func() {
		if s.page != nil {
			if err := s.page.Close(); err != nil {
				s.closeErr = fmt.Errorf("close page: %w", err)
			}
		}
		if s.browser != nil && s.launcher != nil {
			if err := s.browser.Close(); err != nil && s.closeErr == nil {
				s.closeErr = fmt.Errorf("close browser: %w", err)
			}
		}
		s.killLauncher()
	})
	return s.closeErr
}

// killLauncher stops a browser process started by Launch.
func (s *RodSession) killLauncher() {
	if s.launcher == nil {
		return
	}
	s.launcher.Kill()
	s.launcher.Cleanup()
}
