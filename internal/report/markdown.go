package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/streamscout/internal/model"
)

// MarkdownWriter renders a run as GitHub flavored Markdown with a mermaid
// pie chart of where candidates were observed.
type MarkdownWriter struct {
	baseWriter
}

// MarkdownWriterOption configures a MarkdownWriter.
type MarkdownWriterOption func(*MarkdownWriter)

// WithMarkdownCandidates keeps the candidate table on successful runs.
func WithMarkdownCandidates(show bool) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		w.candidates = show
	}
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...MarkdownWriterOption) *MarkdownWriter {
	w := &MarkdownWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write renders run.
func (w *MarkdownWriter) Write(run *model.Run) (int, error) {
	md := markdown.NewMarkdown(w.output)
	s := NewSummary(run)

	w.writeHeader(md, s)
	w.writeAlert(md, s)
	w.writeAttempts(md, run)
	w.writeChannels(md, s)
	if w.showCandidates(run) {
		w.writeCandidates(md, run)
	}
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by [streamscout](https://github.com/nao1215/streamscout)*")

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *Summary) {
	md.H1("streamscout Run Report")
	md.PlainText("")

	rows := [][]string{
		{"Target", "`" + s.Target + "`"},
		{"Run", "`" + s.RunID + "`"},
		{"Started", s.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Duration", s.Duration.Round(time.Millisecond).String()},
		{"Status", statusText(s)},
		{"Attempts", strconv.Itoa(s.Attempts)},
	}
	if s.SelectedURL != "" {
		rows = append(rows,
			[]string{"Manifest", "`" + s.SelectedURL + "`"},
			[]string{"Tier", strconv.Itoa(int(s.Tier)) + " (" + s.Tier.String() + ")"},
		)
	}
	if s.Fingerprint != "" {
		rows = append(rows, []string{"Fingerprint", "`" + s.Fingerprint + "`"})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *Summary) {
	switch s.Result {
	case model.ResultSucceeded:
		if s.DryRun {
			md.Note("Manifest verified. Delivery was skipped (dry run).")
		} else {
			md.Tip("Manifest verified and delivered.")
		}
	case model.ResultDeliveryFailed:
		md.Cautionf("A manifest verified but the sink refused it: %s", s.Error)
	case model.ResultAborted:
		md.Importantf("The run was aborted: %s", s.Error)
	default:
		md.Warningf("No candidate verified after %d attempt(s). The candidate dump below shows what was observed.", s.Attempts)
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeAttempts(md *markdown.Markdown, run *model.Run) {
	md.H2("Attempts")
	md.PlainText("")
	if len(run.Attempts) == 0 {
		md.PlainText("No attempts were made.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(run.Attempts))
	for _, att := range run.Attempts {
		tried := "-"
		if len(att.Tried) > 0 {
			tried = strconv.Itoa(len(att.Tried))
		}
		rows = append(rows, []string{
			strconv.Itoa(att.Index),
			att.Outcome.String(),
			strconv.FormatBool(att.InteractionPerformed),
			tried,
			att.Duration().Round(time.Millisecond).String(),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "Outcome", "Interaction", "Verified", "Duration"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, att := range run.Attempts {
		if len(att.Notes) == 0 {
			continue
		}
		md.Details("Attempt "+strconv.Itoa(att.Index)+" notes", joinLines(att.Notes))
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeChannels(md *markdown.Markdown, s *Summary) {
	md.H2("Candidates by Channel")
	md.PlainText("")
	if len(s.Channels) == 0 {
		md.PlainText("No candidates were observed.")
		md.PlainText("")
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("First observation channel"),
		piechart.WithShowData(true),
	)
	rows := make([][]string, 0, len(s.Channels))
	for _, cc := range s.Channels {
		chart.LabelAndIntValue(cc.Channel.String(), uint64(cc.Count)) //nolint:gosec // counts are never negative
		rows = append(rows, []string{cc.Channel.String(), strconv.Itoa(cc.Count)})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Channel", "Candidates"},
		Rows:   rows,
	})
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeCandidates(md *markdown.Markdown, run *model.Run) {
	md.H2("Candidate Dump")
	md.PlainText("")
	if len(run.Candidates) == 0 {
		md.PlainText("The candidate store was empty.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(run.Candidates))
	for _, c := range run.Candidates {
		marker := ""
		if c.HasAuthMarker {
			marker = "yes"
		}
		rows = append(rows, []string{
			strconv.Itoa(c.Sequence),
			c.FirstChannel.String(),
			strconv.Itoa(c.Observations),
			marker,
			"`" + truncateString(c.URL, 120) + "`",
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Seq", "Channel", "Seen", "Marker", "URL"},
		Rows:   rows,
	})
	md.PlainText("")
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
