package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/streamscout/internal/model"
)

// SimpleWriter renders a plain text report for the terminal.
type SimpleWriter struct {
	baseWriter

	// verbose adds attempt notes.
	verbose bool

	title cases.Caser
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose adds the notes collected by every attempt.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithCandidates includes the candidate dump on successful runs as well.
func WithCandidates(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.candidates = show
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		title:      cases.Title(language.English),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write renders run.
func (w *SimpleWriter) Write(run *model.Run) (int, error) {
	var sb strings.Builder
	s := NewSummary(run)

	w.writeHeader(&sb, s)
	w.writeAttempts(&sb, run)
	w.writeChannels(&sb, s)
	if w.showCandidates(run) {
		w.writeCandidates(&sb, run)
	}
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, s *Summary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n                        STREAMSCOUT RUN REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Target:      %s\n", s.Target)
	fmt.Fprintf(sb, "Run:         %s\n", s.RunID)
	fmt.Fprintf(sb, "Started:     %s\n", s.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:    %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(sb, "Status:      %s\n", statusText(s))
	if s.SelectedURL != "" {
		fmt.Fprintf(sb, "Manifest:    %s\n", s.SelectedURL)
		fmt.Fprintf(sb, "Tier:        %d (%s)\n", s.Tier, s.Tier)
		if s.Path != "" {
			fmt.Fprintf(sb, "Retrieved:   %s\n", s.Path)
		}
		if s.Fingerprint != "" {
			fmt.Fprintf(sb, "Fingerprint: %s\n", s.Fingerprint)
		}
	}
	if s.Error != "" {
		fmt.Fprintf(sb, "Error:       %s\n", s.Error)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeAttempts(sb *strings.Builder, run *model.Run) {
	section(sb, "ATTEMPTS")
	if len(run.Attempts) == 0 {
		sb.WriteString("  No attempts\n\n")
		return
	}
	for _, att := range run.Attempts {
		interaction := "no interaction"
		if att.InteractionPerformed {
			interaction = "interacted"
		}
		fmt.Fprintf(sb, "  #%d  %-20s %-15s %s\n", att.Index, att.Outcome, interaction, att.Duration().Round(time.Millisecond))
		for _, u := range att.Tried {
			fmt.Fprintf(sb, "      tried %s\n", u)
		}
		if w.verbose {
			for _, note := range att.Notes {
				fmt.Fprintf(sb, "      note  %s\n", note)
			}
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeChannels(sb *strings.Builder, s *Summary) {
	section(sb, "CANDIDATES BY CHANNEL")
	if len(s.Channels) == 0 {
		sb.WriteString("  No candidates observed\n\n")
		return
	}
	for _, cc := range s.Channels {
		fmt.Fprintf(sb, "  %-22s %d\n", w.channelLabel(cc.Channel), cc.Count)
	}
	fmt.Fprintf(sb, "\n  %d candidates, %d with an auth marker\n\n", s.Candidates, s.MarkedCount)
}

func (w *SimpleWriter) writeCandidates(sb *strings.Builder, run *model.Run) {
	section(sb, "CANDIDATE DUMP")
	if len(run.Candidates) == 0 {
		sb.WriteString("  (empty)\n\n")
		return
	}
	for _, c := range run.Candidates {
		marker := " "
		if c.HasAuthMarker {
			marker = "*"
		}
		fmt.Fprintf(sb, "  %s %3d  %-18s x%-3d %s\n", marker, c.Sequence, c.FirstChannel, c.Observations, c.URL)
	}
	sb.WriteString("\n  * auth marker present\n\n")
}

// channelLabel turns "response-body-scan" into "Response Body Scan".
func (w *SimpleWriter) channelLabel(ch model.Channel) string {
	return w.title.String(strings.ReplaceAll(ch.String(), "-", " "))
}

func section(sb *strings.Builder, name string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(name)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}
