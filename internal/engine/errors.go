package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/streamscout/internal/verify"
)

// ErrSignalTimeout ends the wait for a new candidate. It only steers the
// attempt and is never the reason a Run fails.
var ErrSignalTimeout = errors.New("no new candidate before the signal timeout")

// NavigationError is a failed navigation or reload. The attempt continues
// with whatever the page managed to load.
type NavigationError struct {
	URL     string
	Attempt int
	Err     error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("attempt %d: navigate %s: %v", e.Attempt, e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// InteractionError is a failed click or key press. It is logged and ignored.
type InteractionError struct {
	// Action is the selector or key involved.
	Action string
	Err    error
}

func (e *InteractionError) Error() string {
	return fmt.Sprintf("interaction %q: %v", e.Action, e.Err)
}

func (e *InteractionError) Unwrap() error { return e.Err }

// VerificationRejected is a candidate that did not verify.
type VerificationRejected = verify.RejectionError

// DeliveryError is a verified manifest the sink did not accept.
type DeliveryError struct {
	URL string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s: %v", e.URL, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// HardTimeout is the cause attached to the run context when the wall-clock
// budget runs out.
type HardTimeout struct {
	Budget time.Duration
}

func (e *HardTimeout) Error() string {
	return fmt.Sprintf("run exceeded its %s budget", e.Budget)
}
