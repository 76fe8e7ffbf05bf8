package model

import "time"

// AttemptOutcome is how a single navigate/interact/wait/verify cycle ended.
type AttemptOutcome int

const (
	// OutcomePending is the outcome of an attempt that has not finished.
	OutcomePending AttemptOutcome = iota

	// OutcomeNoCandidate means the signal wait expired with an empty store.
	OutcomeNoCandidate

	// OutcomeVerificationFailed means every candidate tried was rejected.
	OutcomeVerificationFailed

	// OutcomeVerified means a candidate was confirmed as a manifest.
	OutcomeVerified

	// OutcomeError means the attempt was cut short by an unrecoverable error,
	// such as cancellation of the run.
	OutcomeError
)

// String returns the name of the outcome.
func (o AttemptOutcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeNoCandidate:
		return "no-candidate"
	case OutcomeVerificationFailed:
		return "verification-failed"
	case OutcomeVerified:
		return "verified"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o AttemptOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *AttemptOutcome) UnmarshalText(text []byte) error {
	for _, candidate := range []AttemptOutcome{
		OutcomePending, OutcomeNoCandidate, OutcomeVerificationFailed, OutcomeVerified, OutcomeError,
	} {
		if candidate.String() == string(text) {
			*o = candidate
			return nil
		}
	}
	*o = OutcomeError
	return nil
}

// Attempt records one cycle of the attempt controller.
type Attempt struct {
	// Index starts at 1 and is strictly increasing within a Run.
	Index int `json:"index"`

	// StartedAt is when navigation for this attempt began.
	StartedAt time.Time `json:"startedAt"`

	// FinishedAt is when the attempt reached its outcome.
	FinishedAt time.Time `json:"finishedAt"`

	// InteractionPerformed is true when a play affordance was clicked or a
	// fallback key was delivered.
	InteractionPerformed bool `json:"interactionPerformed"`

	// Outcome is how the attempt ended.
	Outcome AttemptOutcome `json:"outcome"`

	// Tried lists the URLs handed to the verifier, in order.
	Tried []string `json:"tried,omitempty"`

	// Notes collects non-fatal errors (navigation, interaction, rejection
	// reasons) for the report.
	Notes []string `json:"notes,omitempty"`
}

// Duration returns how long the attempt ran.
func (a Attempt) Duration() time.Duration {
	if a.FinishedAt.IsZero() {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}
