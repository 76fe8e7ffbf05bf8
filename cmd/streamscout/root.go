package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/streamscout/internal/log"
	"github.com/nao1215/streamscout/internal/model"
)

// Process exit statuses.
const (
	exitOK      = 0
	exitFailure = 1
	exitAborted = 2
	exitUsage   = 3
)

// exitError carries the status the process should exit with.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// usageError marks err as a usage or configuration problem.
func usageError(err error) error {
	return &exitError{code: exitUsage, err: err}
}

// resultError turns a terminal run result into an error with the matching
// exit status. It returns nil for a successful run.
func resultError(run *model.Run) error {
	switch run.Result {
	case model.ResultSucceeded:
		return nil
	case model.ResultAborted:
		return &exitError{code: exitAborted, err: fmt.Errorf("run aborted: %s", run.Error)}
	default:
		return &exitError{code: exitFailure, err: fmt.Errorf("run %s: %s", run.Result, run.Error)}
	}
}

// exitCode maps an error returned by a command to a process status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailure
}

// usageArgs wraps a positional argument validator so its errors exit with
// the usage status.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

// NewRootCmd creates the root command for streamscout.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streamscout",
		Short: "Discover and deliver the HLS playlist behind a video page",
		Long: `streamscout loads a video page in a headless browser, watches the network,
the page's scripts and its media elements for the HLS playlist the player
fetches, confirms the playlist by retrieving it, and posts it to a
receiving service.

Every run is saved to a local history database. Use 'streamscout history'
to inspect past runs.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command and returns the process exit status.
func Execute() int {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return exitCode(err)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger creates the redacting logger for the command.
func setupLogger(cmd *cobra.Command, w io.Writer) *slog.Logger {
	verbose := getVerboseFlag(cmd)
	if asJSON, err := cmd.Flags().GetBool("log-json"); err == nil && asJSON {
		return log.NewSecureJSONLogger(w, verbose)
	}
	return log.NewSecureLogger(w, verbose)
}
