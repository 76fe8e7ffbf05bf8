package engine

import (
	"errors"
	"time"

	"github.com/nao1215/streamscout/internal/browser"
)

// DefaultSelectors are the play controls tried on every attempt, in order.
var DefaultSelectors = []string{
	"button.play",
	".play-button",
	".vjs-play-control",
	"[data-play]",
	".jw-icon-play",
	".player-play",
	"#play",
	".plyr__control--play",
	".ytp-large-play-button",
	`[aria-label="Play"]`,
}

// Policy holds the knobs of the attempt loop.
type Policy struct {
	MaxAttempts         int
	MaxVerifyPerAttempt int

	NavigationTimeout time.Duration
	PostLoadWait      time.Duration
	ClickSettle       time.Duration
	KeySettle         time.Duration
	SignalTimeout     time.Duration
	PollInterval      time.Duration
	VerifyTimeout     time.Duration
	DeliveryTimeout   time.Duration
	BackoffBase       time.Duration
	RunBudget         time.Duration

	WaitPolicy browser.WaitPolicy
	Selectors  []string

	// DryRun verifies without delivering.
	DryRun bool

	// IncludeContent embeds the normalized playlist in the delivery.
	IncludeContent bool

	// ContinueOnDeliveryError starts another attempt after a refused
	// delivery while attempts remain.
	ContinueOnDeliveryError bool

	// UserAgent is forwarded on verification retrievals.
	UserAgent string
}

// DefaultPolicy returns the stock timings.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:         5,
		MaxVerifyPerAttempt: 3,
		NavigationTimeout:   60 * time.Second,
		PostLoadWait:        2 * time.Second,
		ClickSettle:         1500 * time.Millisecond,
		KeySettle:           500 * time.Millisecond,
		SignalTimeout:       25 * time.Second,
		PollInterval:        250 * time.Millisecond,
		VerifyTimeout:       8 * time.Second,
		DeliveryTimeout:     15 * time.Second,
		BackoffBase:         1500 * time.Millisecond,
		RunBudget:           5 * time.Minute,
		WaitPolicy:          browser.WaitDOMContentLoaded,
		Selectors:           DefaultSelectors,
		IncludeContent:      true,
	}
}

// Backoff returns the pause after the attempt with the given index.
func (p Policy) Backoff(finished int) time.Duration {
	if finished < 1 {
		return 0
	}
	return p.BackoffBase * time.Duration(finished)
}

// Validate rejects policies the loop cannot run with.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.New("max attempts must be at least 1")
	}
	if p.MaxVerifyPerAttempt < 1 {
		return errors.New("max verifications per attempt must be at least 1")
	}
	if p.PollInterval <= 0 || p.SignalTimeout <= 0 || p.RunBudget <= 0 || p.NavigationTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	return nil
}
