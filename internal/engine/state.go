package engine

// State is a step of the attempt loop.
type State int

const (
	StateIdle State = iota
	StateNavigating
	StateInteracting
	StateAwaitingSignal
	StateVerifying
	StateDelivering
	StateSucceeded
	StateExhausted
	StateDeliveryFailed
	StateAborted
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateNavigating:     "navigating",
	StateInteracting:    "interacting",
	StateAwaitingSignal: "awaiting-signal",
	StateVerifying:      "verifying",
	StateDelivering:     "delivering",
	StateSucceeded:      "succeeded",
	StateExhausted:      "exhausted",
	StateDeliveryFailed: "delivery-failed",
	StateAborted:        "aborted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether the run ends in s.
func (s State) Terminal() bool {
	return s >= StateSucceeded
}
