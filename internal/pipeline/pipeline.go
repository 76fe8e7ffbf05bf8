package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/streamscout/internal/model"
)

// Step is one post-run stage.
//
// Steps receive the finished Run after the attempt loop returned, including
// aborted runs, so a step must not assume the Run succeeded. Steps are
// executed sequentially in the order they were added.
type Step interface {
	// Do handles the finished run. It must not modify the run.
	Do(ctx context.Context, run *model.Run) error

	// Name identifies the step in logs and errors.
	Name() string
}

// Pipeline runs its steps sequentially against one finished run.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger

	// keepGoing runs the remaining steps after a failure.
	keepGoing bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError makes Execute run every step even after a failure.
// All failures are joined into the returned error.
func WithContinueOnError(keepGoing bool) Option {
	return func(p *Pipeline) {
		p.keepGoing = keepGoing
	}
}

// New returns an empty pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Add appends steps and returns p.
func (p *Pipeline) Add(steps ...Step) *Pipeline {
	p.steps = append(p.steps, steps...)
	return p
}

// Execute runs every step against run. Cancellation is checked between
// steps; a step that is already running handles ctx itself.
func (p *Pipeline) Execute(ctx context.Context, run *model.Run) error {
	var errs []error
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("post-run steps cancelled", "next", step.Name(), "reason", err)
			return errors.Join(append(errs, err)...)
		}

		log := p.logger.With("step", step.Name(), "run", run.ID)
		log.Debug("post-run step started")
		if err := step.Do(ctx, run); err != nil {
			log.Error("post-run step failed", "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", step.Name(), err))
			if p.keepGoing {
				continue
			}
			break
		}
		log.Debug("post-run step done")
	}
	return errors.Join(errs...)
}

// StepNames lists the steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, len(p.steps))
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	return names
}
