package model

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the ranking tier a selection was made from. Lower is better.
type Tier int

const (
	// TierMarkedManifest is a manifest URL carrying an auth marker.
	TierMarkedManifest Tier = 1

	// TierManifest is a manifest URL without an auth marker.
	TierManifest Tier = 2

	// TierInferred is a manifest URL inferred from a marked segment URL.
	TierInferred Tier = 3

	// TierFallback is the first observed candidate.
	TierFallback Tier = 4
)

// String returns a short description of the tier.
func (t Tier) String() string {
	switch t {
	case TierMarkedManifest:
		return "manifest+marker"
	case TierManifest:
		return "manifest"
	case TierInferred:
		return "inferred"
	case TierFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Selection is a candidate chosen by the ranker, possibly with a URL that
// was inferred from the candidate rather than observed.
type Selection struct {
	// URL is the URL to verify.
	URL string `json:"url"`

	// Tier is the rule tier that produced the selection.
	Tier Tier `json:"tier"`

	// Rule is the name of the matching rule.
	Rule string `json:"rule"`

	// Inferred is true when URL was derived from Candidate.URL.
	Inferred bool `json:"inferred"`

	// Candidate is the observed candidate behind the selection.
	Candidate Candidate `json:"candidate"`
}

// RunResult is the terminal status of a Run.
type RunResult int

const (
	// ResultPending is the result of a Run that has not finished.
	ResultPending RunResult = iota

	// ResultSucceeded means a verified manifest was delivered.
	ResultSucceeded

	// ResultExhausted means every attempt finished without a verified manifest.
	ResultExhausted

	// ResultDeliveryFailed means a manifest verified but the sink refused it.
	ResultDeliveryFailed

	// ResultAborted means the wall-clock budget ran out or the run was
	// interrupted.
	ResultAborted
)

// String returns the name of the result.
func (r RunResult) String() string {
	switch r {
	case ResultPending:
		return "pending"
	case ResultSucceeded:
		return "succeeded"
	case ResultExhausted:
		return "exhausted"
	case ResultDeliveryFailed:
		return "delivery-failed"
	case ResultAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r RunResult) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RunResult) UnmarshalText(text []byte) error {
	for _, candidate := range []RunResult{
		ResultPending, ResultSucceeded, ResultExhausted, ResultDeliveryFailed, ResultAborted,
	} {
		if candidate.String() == string(text) {
			*r = candidate
			return nil
		}
	}
	*r = ResultPending
	return nil
}

// Failed reports whether the run ended without delivering a manifest.
func (r RunResult) Failed() bool {
	return r != ResultSucceeded && r != ResultPending
}

// Run is the record of one invocation of the engine.
type Run struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`

	// Target is the page URL the run was pointed at.
	Target string `json:"target"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"startedAt"`

	// FinishedAt is when the run reached its terminal result.
	FinishedAt time.Time `json:"finishedAt"`

	// Attempts is the ordered list of attempts.
	Attempts []Attempt `json:"attempts"`

	// Candidates is the candidate store snapshot taken when the run ended.
	Candidates []Candidate `json:"candidates"`

	// Result is the terminal status.
	Result RunResult `json:"result"`

	// Selection is the selection that verified, if any.
	Selection *Selection `json:"selection,omitempty"`

	// Manifest is the verified manifest, if any.
	Manifest *Manifest `json:"manifest,omitempty"`

	// Delivered is true when the sink accepted the manifest.
	Delivered bool `json:"delivered"`

	// DryRun is true when delivery was skipped on purpose.
	DryRun bool `json:"dryRun,omitempty"`

	// Error describes why the run failed. Empty on success.
	Error string `json:"error,omitempty"`
}

// NewRun creates a pending Run for the target.
func NewRun(target string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Target:    target,
		StartedAt: time.Now(),
		Result:    ResultPending,
	}
}

// Finish records the terminal result. Only the first call has an effect.
func (r *Run) Finish(result RunResult, err error) {
	if r.Result != ResultPending {
		return
	}
	r.Result = result
	r.FinishedAt = time.Now()
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration returns the wall-clock time of the run.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ChannelCounts counts candidates by their first channel.
func (r *Run) ChannelCounts() map[Channel]int {
	counts := make(map[Channel]int)
	for _, c := range r.Candidates {
		counts[c.FirstChannel]++
	}
	return counts
}
