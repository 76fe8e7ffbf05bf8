package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/streamscout/internal/model"
	"github.com/nao1215/streamscout/internal/report"
)

// RunSaver stores finished runs. *database.RunDB satisfies it.
type RunSaver interface {
	SaveRun(ctx context.Context, run *model.Run) (int64, error)
}

// PersistStep saves the run to the history database.
type PersistStep struct {
	saver  RunSaver
	logger *slog.Logger
}

// NewPersistStep creates a PersistStep writing to saver.
func NewPersistStep(saver RunSaver, logger *slog.Logger) *PersistStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistStep{saver: saver, logger: logger}
}

// Name implements Step.
func (s *PersistStep) Name() string {
	return "persist"
}

// Do implements Step.
func (s *PersistStep) Do(ctx context.Context, run *model.Run) error {
	id, err := s.saver.SaveRun(ctx, run)
	if err != nil {
		return err
	}
	s.logger.Debug("run saved", "run", run.ID, "row", id)
	return nil
}

// ReportStep renders the run with a report.Writer.
type ReportStep struct {
	writer report.Writer
}

// NewReportStep creates a ReportStep rendering with w.
func NewReportStep(w report.Writer) *ReportStep {
	return &ReportStep{writer: w}
}

// Name implements Step.
func (s *ReportStep) Name() string {
	return "report"
}

// Do implements Step.
func (s *ReportStep) Do(_ context.Context, run *model.Run) error {
	_, err := s.writer.Write(run)
	return err
}

// PostRun builds the standard pipeline: persist when saver is non-nil,
// then report.
func PostRun(saver RunSaver, w report.Writer, opts ...Option) *Pipeline {
	p := New(opts...)
	if saver != nil {
		p.Add(NewPersistStep(saver, p.logger))
	}
	if w != nil {
		p.Add(NewReportStep(w))
	}
	return p
}
