package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/streamscout/internal/browser"
	"github.com/nao1215/streamscout/internal/candidate"
	"github.com/nao1215/streamscout/internal/delivery"
	"github.com/nao1215/streamscout/internal/instrument"
	"github.com/nao1215/streamscout/internal/model"
	"github.com/nao1215/streamscout/internal/verify"
)

// Instrumenter feeds signals observed on a page.
type Instrumenter interface {
	Prepare(ctx context.Context, page instrument.Page) error
	Observe(ctx context.Context, page instrument.Page) <-chan model.Signal
	ObservedBody(url string) (string, bool)
}

// Verifier confirms a candidate URL.
type Verifier interface {
	Verify(ctx context.Context, rawURL string, sc verify.SessionContext) (*model.Manifest, error)
}

// Deliverer forwards a verified manifest.
type Deliverer interface {
	Send(ctx context.Context, p delivery.Payload) error
}

// Controller drives one Run through the attempt loop.
//
// Each attempt navigates (attempt 1) or reloads (later attempts), presses
// play, and waits up to SignalTimeout for the candidate store to grow. It
// then verifies ranked selections one at a time. The first selection that
// verifies is delivered and ends the Run; a rejected URL is skipped for the
// rest of that attempt but ranked again in the next one. Between attempts
// the controller sleeps BackoffBase times the finished attempt's index.
//
// Navigation and interaction failures are logged and never end the Run.
// The Run ends in exactly one of Succeeded, Exhausted, DeliveryFailed or
// Aborted; Aborted means the RunBudget elapsed or ctx was cancelled.
//
// A Controller runs one Run at a time and is not safe for concurrent use.
type Controller struct {
	session      browser.Session
	instrumenter Instrumenter
	ranker       *candidate.Ranker
	verifier     Verifier
	deliverer    Deliverer
	policy       Policy
	logger       *slog.Logger
	onState      func(State, int)
}

// Option configures a Controller.
type Option func(*Controller)

// WithPolicy replaces the default policy.
func WithPolicy(p Policy) Option {
	return func(c *Controller) {
		c.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithRanker replaces the default ranker.
func WithRanker(r *candidate.Ranker) Option {
	return func(c *Controller) {
		c.ranker = r
	}
}

// WithStateHook registers fn to be called on every state change with the
// current attempt index.
func WithStateHook(fn func(State, int)) Option {
	return func(c *Controller) {
		c.onState = fn
	}
}

// NewController wires the collaborators. deliverer may be nil when the
// policy is a dry run.
func NewController(session browser.Session, in Instrumenter, v Verifier, d Deliverer, opts ...Option) *Controller {
	c := &Controller{
		session:      session,
		instrumenter: in,
		verifier:     v,
		deliverer:    d,
		policy:       DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ranker == nil {
		c.ranker = candidate.NewRanker()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Run executes the attempt loop against target and always returns a Run in
// a terminal result.
func (c *Controller) Run(ctx context.Context, target string) *model.Run {
	run := model.NewRun(target)
	run.DryRun = c.policy.DryRun
	c.transition(StateIdle, 0)

	if err := c.policy.Validate(); err != nil {
		run.Finish(model.ResultExhausted, err)
		c.transition(StateExhausted, 0)
		return run
	}

	runCtx, cancel := context.WithTimeoutCause(ctx, c.policy.RunBudget, &HardTimeout{Budget: c.policy.RunBudget})
	defer cancel()

	store := candidate.NewStore()
	defer func() { run.Candidates = store.Snapshot() }()

	if err := c.instrumenter.Prepare(runCtx, c.session); err != nil {
		c.logger.Warn("capture hooks not installed", "error", err)
	}

	observeCtx, stopObserving := context.WithCancel(runCtx)
	consumed := make(chan struct{})
	signals := c.instrumenter.Observe(observeCtx, c.session)
	go func() {
		defer close(consumed)
		store.Consume(observeCtx, signals, func(sig model.Signal) {
			c.logger.Debug("new candidate", "url", sig.URL, "channel", sig.Channel)
		})
	}()
	defer func() {
		stopObserving()
		<-consumed
	}()

	for index := 1; index <= c.policy.MaxAttempts; index++ {
		if index > 1 {
			wait := c.policy.Backoff(index - 1)
			c.logger.Info("backing off", "attempt", index, "wait", wait)
			if err := sleep(runCtx, wait); err != nil {
				c.abort(runCtx, run, index)
				return run
			}
		}

		attempt, done := c.attempt(runCtx, run, store, target, index)
		run.Attempts = append(run.Attempts, attempt)
		if done {
			return run
		}
		if runCtx.Err() != nil {
			c.abort(runCtx, run, index)
			return run
		}
	}

	run.Finish(model.ResultExhausted, fmt.Errorf("no candidate verified in %d attempts", c.policy.MaxAttempts))
	c.transition(StateExhausted, c.policy.MaxAttempts)
	return run
}

// attempt runs one navigate-interact-wait-verify cycle. done is true when
// the run reached a terminal result inside the attempt.
func (c *Controller) attempt(ctx context.Context, run *model.Run, store *candidate.Store, target string, index int) (model.Attempt, bool) {
	att := model.Attempt{Index: index, StartedAt: time.Now(), Outcome: model.OutcomePending}
	finish := func(o model.AttemptOutcome) (model.Attempt, bool) {
		att.Outcome = o
		att.FinishedAt = time.Now()
		return att, false
	}

	c.logger.Info("attempt started", "attempt", index, "of", c.policy.MaxAttempts)
	baseline := store.Len()

	c.transition(StateNavigating, index)
	if err := c.navigate(ctx, target, index); err != nil {
		if ctx.Err() != nil {
			att.Notes = append(att.Notes, "aborted during navigation")
			return finish(model.OutcomeError)
		}
		c.logger.Warn("navigation failed, continuing", "attempt", index, "error", err)
		att.Notes = append(att.Notes, err.Error())
	}
	if err := sleep(ctx, c.policy.PostLoadWait); err != nil {
		return finish(model.OutcomeError)
	}

	c.transition(StateInteracting, index)
	att.InteractionPerformed = c.interact(ctx, store, baseline, &att)
	if ctx.Err() != nil {
		return finish(model.OutcomeError)
	}

	c.transition(StateAwaitingSignal, index)
	if err := c.awaitSignal(ctx, store, baseline); err != nil {
		if !errors.Is(err, ErrSignalTimeout) {
			return finish(model.OutcomeError)
		}
		if store.Len() == 0 {
			c.logger.Info("no candidates observed", "attempt", index)
			return finish(model.OutcomeNoCandidate)
		}
		c.logger.Info("signal timeout, verifying what was observed", "attempt", index, "candidates", store.Len())
	}

	c.transition(StateVerifying, index)
	sel, manifest, tried := c.verifyBest(ctx, store, target, &att)
	if manifest == nil {
		if ctx.Err() != nil {
			return finish(model.OutcomeError)
		}
		if tried == 0 {
			return finish(model.OutcomeNoCandidate)
		}
		return finish(model.OutcomeVerificationFailed)
	}

	att.Outcome = model.OutcomeVerified
	run.Selection = &sel
	run.Manifest = manifest

	if c.policy.DryRun || c.deliverer == nil {
		c.logger.Info("manifest verified, delivery skipped", "url", manifest.SourceURL)
		run.Finish(model.ResultSucceeded, nil)
		c.transition(StateSucceeded, index)
		att.FinishedAt = time.Now()
		return att, true
	}

	c.transition(StateDelivering, index)
	if err := c.deliver(ctx, sel, manifest); err != nil {
		att.Notes = append(att.Notes, err.Error())
		if ctx.Err() != nil {
			att.Outcome = model.OutcomeError
			return att, false
		}
		if c.policy.ContinueOnDeliveryError && index < c.policy.MaxAttempts {
			c.logger.Warn("delivery failed, retrying in next attempt", "error", err)
			run.Selection, run.Manifest = nil, nil
			return finish(model.OutcomeError)
		}
		run.Finish(model.ResultDeliveryFailed, err)
		c.transition(StateDeliveryFailed, index)
		att.FinishedAt = time.Now()
		return att, true
	}

	run.Delivered = true
	run.Finish(model.ResultSucceeded, nil)
	c.transition(StateSucceeded, index)
	att.FinishedAt = time.Now()
	return att, true
}

func (c *Controller) navigate(ctx context.Context, target string, index int) error {
	navCtx, cancel := context.WithTimeout(ctx, c.policy.NavigationTimeout)
	defer cancel()

	var err error
	if index == 1 {
		err = c.session.Navigate(navCtx, target, c.policy.WaitPolicy)
	} else {
		err = c.session.Reload(navCtx, c.policy.WaitPolicy)
	}
	if err != nil {
		return &NavigationError{URL: target, Attempt: index, Err: err}
	}
	return nil
}

// awaitSignal polls the store until it grows past baseline or the signal
// timeout passes.
func (c *Controller) awaitSignal(ctx context.Context, store *candidate.Store, baseline int) error {
	deadline := time.NewTimer(c.policy.SignalTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.policy.PollInterval)
	defer ticker.Stop()

	for {
		if store.Len() > baseline {
			return nil
		}
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-deadline.C:
			return ErrSignalTimeout
		case <-ticker.C:
		}
	}
}

// verifyBest re-ranks after every rejection and verifies up to
// MaxVerifyPerAttempt selections, skipping URLs already rejected in this
// attempt.
func (c *Controller) verifyBest(ctx context.Context, store *candidate.Store, target string, att *model.Attempt) (model.Selection, *model.Manifest, int) {
	sc := c.sessionContext(ctx, target)
	rejected := make(map[string]bool)
	tried := 0

	for tried < c.policy.MaxVerifyPerAttempt {
		sel, ok := c.next(store, rejected)
		if !ok {
			break
		}
		tried++
		att.Tried = append(att.Tried, sel.URL)

		vctx, cancel := context.WithTimeout(ctx, c.policy.VerifyTimeout)
		manifest, err := c.verifier.Verify(vctx, sel.URL, sc)
		cancel()
		if err == nil {
			c.logger.Info("manifest verified", "url", sel.URL, "tier", sel.Tier, "rule", sel.Rule, "path", manifest.RetrievalPath)
			return sel, manifest, tried
		}
		if ctx.Err() != nil {
			return model.Selection{}, nil, tried
		}

		rejected[sel.URL] = true
		att.Notes = append(att.Notes, err.Error())
		var rej *VerificationRejected
		if errors.As(err, &rej) {
			c.logger.Info("candidate rejected", "url", sel.URL, "reason", rej.Reason)
		} else {
			c.logger.Warn("verification error", "url", sel.URL, "error", err)
		}
	}
	return model.Selection{}, nil, tried
}

func (c *Controller) next(store *candidate.Store, rejected map[string]bool) (model.Selection, bool) {
	for _, sel := range c.ranker.Rank(store.Snapshot()) {
		if !rejected[sel.URL] {
			return sel, true
		}
	}
	return model.Selection{}, false
}

func (c *Controller) sessionContext(ctx context.Context, target string) verify.SessionContext {
	cctx, cancel := context.WithTimeout(ctx, c.policy.VerifyTimeout)
	defer cancel()
	cookies, err := c.session.Cookies(cctx)
	if err != nil {
		c.logger.Debug("session cookies unavailable", "error", err)
		cookies = nil
	}
	return verify.SessionContext{
		Cookies:      cookies,
		Referer:      target,
		UserAgent:    c.policy.UserAgent,
		ObservedBody: c.instrumenter.ObservedBody,
	}
}

func (c *Controller) deliver(ctx context.Context, sel model.Selection, m *model.Manifest) error {
	dctx, cancel := context.WithTimeout(ctx, c.policy.DeliveryTimeout)
	defer cancel()
	if err := c.deliverer.Send(dctx, delivery.NewPayload(&sel, m, c.policy.IncludeContent)); err != nil {
		return &DeliveryError{URL: m.SourceURL, Err: err}
	}
	return nil
}

func (c *Controller) abort(ctx context.Context, run *model.Run, index int) {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	c.logger.Warn("run aborted", "attempt", index, "cause", cause)
	run.Finish(model.ResultAborted, cause)
	c.transition(StateAborted, index)
}

func (c *Controller) transition(s State, index int) {
	c.logger.Debug("state", "state", s.String(), "attempt", index)
	if c.onState != nil {
		c.onState(s, index)
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}
