package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/streamscout/internal/model"
)

// JSONWriter renders a run as JSON for other tools.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
	version      string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables indented output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the tool version in the document.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// WithJSONCandidates keeps the candidate dump on successful runs.
func WithJSONCandidates(show bool) JSONWriterOption {
	return func(w *JSONWriter) {
		w.candidates = show
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport is the document JSONWriter produces.
type JSONReport struct {
	// Version is the streamscout version that produced the report.
	Version string `json:"version,omitempty"`

	// Summary is the condensed view.
	Summary *Summary `json:"summary"`

	// Run is the full record. Its candidate list is cleared on successful
	// runs unless the dump was requested.
	Run *model.Run `json:"run"`
}

// Write renders run.
func (w *JSONWriter) Write(run *model.Run) (int, error) {
	doc := JSONReport{
		Version: w.version,
		Summary: NewSummary(run),
		Run:     run,
	}
	if !w.showCandidates(run) {
		trimmed := *run
		trimmed.Candidates = nil
		doc.Run = &trimmed
	}

	var data []byte
	var err error
	if w.indent {
		data, err = json.MarshalIndent(doc, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}
