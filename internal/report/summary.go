package report

import (
	"sort"
	"time"

	"github.com/nao1215/streamscout/internal/model"
)

// ChannelCount is the number of candidates first seen on a channel.
type ChannelCount struct {
	Channel model.Channel `json:"channel"`
	Count   int           `json:"count"`
}

// Summary is the condensed view of a run every format renders.
type Summary struct {
	RunID       string          `json:"runId"`
	Target      string          `json:"target"`
	StartedAt   time.Time       `json:"startedAt"`
	Duration    time.Duration   `json:"durationNs"`
	Result      model.RunResult `json:"result"`
	Delivered   bool            `json:"delivered"`
	DryRun      bool            `json:"dryRun,omitempty"`
	Attempts    int             `json:"attempts"`
	SelectedURL string          `json:"selectedUrl,omitempty"`
	Tier        model.Tier      `json:"tier,omitempty"`
	Inferred    bool            `json:"inferred,omitempty"`
	Path        string          `json:"retrievalPath,omitempty"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	Channels    []ChannelCount  `json:"channels"`
	Candidates  int             `json:"candidates"`
	MarkedCount int             `json:"markedCandidates"`
	Error       string          `json:"error,omitempty"`
}

// NewSummary condenses run. Channels are ordered by count, then by
// channel order, and channels with no candidates are left out.
func NewSummary(run *model.Run) *Summary {
	s := &Summary{
		RunID:      run.ID,
		Target:     run.Target,
		StartedAt:  run.StartedAt,
		Duration:   run.Duration(),
		Result:     run.Result,
		Delivered:  run.Delivered,
		DryRun:     run.DryRun,
		Attempts:   len(run.Attempts),
		Candidates: len(run.Candidates),
		Error:      run.Error,
	}
	if run.Selection != nil {
		s.SelectedURL = run.Selection.URL
		s.Tier = run.Selection.Tier
		s.Inferred = run.Selection.Inferred
	}
	if run.Manifest != nil {
		s.Path = run.Manifest.RetrievalPath
		s.Fingerprint = run.Manifest.Fingerprint()
	}
	for _, c := range run.Candidates {
		if c.HasAuthMarker {
			s.MarkedCount++
		}
	}

	counts := run.ChannelCounts()
	for _, ch := range model.AllChannels() {
		if n := counts[ch]; n > 0 {
			s.Channels = append(s.Channels, ChannelCount{Channel: ch, Count: n})
		}
	}
	sort.SliceStable(s.Channels, func(i, j int) bool {
		return s.Channels[i].Count > s.Channels[j].Count
	})
	return s
}

// statusText describes the result in one line.
func statusText(s *Summary) string {
	switch s.Result {
	case model.ResultSucceeded:
		if s.DryRun {
			return "Verified (dry run, not delivered)"
		}
		return "Delivered"
	case model.ResultExhausted:
		return "Exhausted: no candidate verified"
	case model.ResultDeliveryFailed:
		return "Verified but delivery failed"
	case model.ResultAborted:
		return "Aborted"
	default:
		return s.Result.String()
	}
}

// truncateString truncates s to maxLen bytes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
