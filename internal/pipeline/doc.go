// Package pipeline runs the steps that follow a finished run.
//
// The engine produces a model.Run. The pipeline hands that run to each
// step in turn: persisting it to the history database and rendering the
// report. Steps only read the run.
package pipeline
