package report

import (
	"io"

	"github.com/nao1215/streamscout/internal/model"
)

// Writer renders a finished run.
type Writer interface {
	// Write renders run and returns the number of bytes written.
	Write(run *model.Run) (int, error)
}

// MultiWriter writes the same run to several Writers and stops at the
// first error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write renders run with every writer in order.
func (m *MultiWriter) Write(run *model.Run) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(run)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter holds what every format shares.
type baseWriter struct {
	output io.Writer

	// candidates forces the candidate dump on successful runs too.
	candidates bool
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// showCandidates reports whether the candidate dump belongs in the report.
// Failed runs always carry it.
func (b baseWriter) showCandidates(run *model.Run) bool {
	return b.candidates || run.Result.Failed()
}
