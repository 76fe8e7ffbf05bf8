package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/streamscout/internal/config"
	"github.com/nao1215/streamscout/internal/database"
	"github.com/nao1215/streamscout/internal/model"
	"github.com/nao1215/streamscout/internal/report"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [target-url]",
		Short: "Inspect saved runs",
		Long: `History reads the run history database.

Without flags it lists the saved runs, newest first, optionally only those
for one target. A single run can be shown as a full report, and the two
latest runs of a target can be compared to see which candidates appeared
or disappeared.

Examples:
  # List every saved run
  streamscout history

  # List the runs of one target
  streamscout history https://site.example/watch/1

  # List the targets that have runs
  streamscout history --list-targets

  # Show run 12 as Markdown
  streamscout history --id 12 --markdown

  # Compare the two latest runs of a target
  streamscout history --diff https://site.example/watch/1

  # Delete runs older than 30 days
  streamscout history --prune 720h`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list-targets", "L", false, "List every target with saved runs")
	cmd.Flags().Int64P("id", "i", 0, "Show the saved run with this ID")
	cmd.Flags().BoolP("diff", "d", false, "Compare the candidates of the two latest runs of the target")
	cmd.Flags().Duration("prune", 0, "Delete runs started longer ago than this duration")
	cmd.Flags().BoolP("json", "j", false, "Output in JSON format")
	cmd.Flags().BoolP("markdown", "m", false, "Output a run in Markdown format (with --id)")
	cmd.Flags().String("db-dir", "", "History database directory (default: XDG data directory)")

	return cmd
}

// historyOptions are the parsed history flags.
type historyOptions struct {
	target      string
	listTargets bool
	id          int64
	diff        bool
	prune       time.Duration
	json        bool
	markdown    bool
	dbDir       string
}

func parseHistoryOptions(cmd *cobra.Command, args []string) (*historyOptions, error) {
	opts := &historyOptions{}
	if len(args) > 0 {
		opts.target = strings.TrimSpace(args[0])
	}

	fs := cmd.Flags()
	err := errors.Join(
		override(fs, "list-targets", fs.GetBool, &opts.listTargets),
		override(fs, "id", fs.GetInt64, &opts.id),
		override(fs, "diff", fs.GetBool, &opts.diff),
		override(fs, "prune", fs.GetDuration, &opts.prune),
		override(fs, "json", fs.GetBool, &opts.json),
		override(fs, "markdown", fs.GetBool, &opts.markdown),
		override(fs, "db-dir", fs.GetString, &opts.dbDir),
	)
	if err != nil {
		return nil, err
	}
	if opts.dbDir == "" {
		opts.dbDir = config.XDGDataDir()
	}

	switch {
	case opts.json && opts.markdown:
		return nil, config.ErrConflictingReportFormats
	case opts.diff && opts.target == "":
		return nil, errors.New("--diff needs a target URL")
	case opts.id < 0:
		return nil, errors.New("--id must be positive")
	case opts.prune < 0:
		return nil, errors.New("--prune must be positive")
	}
	return opts, nil
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	// Validate before opening the database so a usage error never leaves
	// a fresh empty database behind.
	opts, err := parseHistoryOptions(cmd, args)
	if err != nil {
		return usageError(err)
	}

	db, err := database.Open(opts.dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return runHistory(context.Background(), db, opts, cmd.OutOrStdout())
}

// runHistory dispatches to the selected view.
func runHistory(ctx context.Context, db *database.RunDB, opts *historyOptions, out io.Writer) error {
	switch {
	case opts.prune > 0:
		return pruneRuns(ctx, db, opts.prune, out)
	case opts.listTargets:
		return listTargets(ctx, db, opts, out)
	case opts.id > 0:
		return showRun(ctx, db, opts, out)
	case opts.diff:
		return diffLatestRuns(ctx, db, opts, out)
	default:
		return listRuns(ctx, db, opts, out)
	}
}

func pruneRuns(ctx context.Context, db *database.RunDB, age time.Duration, out io.Writer) error {
	cutoff := time.Now().Add(-age)
	n, err := db.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted %d run(s) started before %s\n", n, cutoff.Format("2006-01-02 15:04:05"))
	return nil
}

func listTargets(ctx context.Context, db *database.RunDB, opts *historyOptions, out io.Writer) error {
	targets, err := db.ListTargets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list targets: %w", err)
	}
	if opts.json {
		return writeJSON(out, targets)
	}

	if len(targets) == 0 {
		fmt.Fprintln(out, "No runs found in the database.")
		fmt.Fprintln(out, "\nUse 'streamscout run <target-url>' to start one.")
		return nil
	}
	fmt.Fprintf(out, "Targets (%d):\n\n", len(targets))
	for _, t := range targets {
		fmt.Fprintf(out, "  • %s\n", t)
	}
	fmt.Fprintln(out, "\nUse 'streamscout history <target-url>' to see the runs of a target.")
	return nil
}

func listRuns(ctx context.Context, db *database.RunDB, opts *historyOptions, out io.Writer) error {
	runs, err := db.GetRunHistory(ctx, opts.target)
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}
	if opts.json {
		return writeJSON(out, runs)
	}

	if len(runs) == 0 {
		if opts.target != "" {
			fmt.Fprintf(out, "No runs found for %s\n", opts.target)
		} else {
			fmt.Fprintln(out, "No runs found in the database.")
		}
		return nil
	}

	fmt.Fprintf(out, "Runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-6s  %-19s  %-15s  %-8s  %-10s  %s\n", "ID", "Started", "Result", "Attempts", "Candidates", "Target")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 90))
	for _, r := range runs {
		fmt.Fprintf(out, "  %-6d  %-19s  %-15s  %-8d  %-10d  %s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Result,
			r.Attempts,
			r.Candidates,
			r.Target,
		)
	}
	fmt.Fprintln(out, "\nUse 'streamscout history --id <id>' to show a run.")
	return nil
}

func showRun(ctx context.Context, db *database.RunDB, opts *historyOptions, out io.Writer) error {
	run, err := db.GetRunByID(ctx, opts.id)
	if err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			return usageError(err)
		}
		return err
	}

	var w report.Writer
	switch {
	case opts.json:
		w = report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithJSONCandidates(true))
	case opts.markdown:
		w = report.NewMarkdownWriter(out, report.WithMarkdownCandidates(true))
	default:
		w = report.NewSimpleWriter(out, report.WithVerbose(true), report.WithCandidates(true))
	}
	_, err = w.Write(run)
	return err
}

// candidateChange is one row of a diff.
type candidateChange struct {
	URL        string        `json:"url"`
	Channel    model.Channel `json:"channel"`
	HasMarker  bool          `json:"hasAuthMarker"`
	SeenInRuns int           `json:"seenInRuns"`
}

// runDiff is the JSON form of a diff.
type runDiff struct {
	Target           string            `json:"target"`
	Older            string            `json:"olderRun"`
	Newer            string            `json:"newerRun"`
	OlderSelection   string            `json:"olderSelection,omitempty"`
	NewerSelection   string            `json:"newerSelection,omitempty"`
	SelectionChanged bool              `json:"selectionChanged"`
	Added            []candidateChange `json:"added"`
	Removed          []candidateChange `json:"removed"`
	Common           int               `json:"common"`
}

func diffLatestRuns(ctx context.Context, db *database.RunDB, opts *historyOptions, out io.Writer) error {
	runs, err := db.GetLatestRuns(ctx, opts.target, 2)
	if err != nil {
		return err
	}
	if len(runs) < 2 {
		return fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(runs))
	}
	newer, older := runs[0], runs[1]
	d := database.DiffRuns(older, newer)

	result := runDiff{
		Target:           opts.target,
		Older:            older.ID,
		Newer:            newer.ID,
		OlderSelection:   selectionURL(older),
		NewerSelection:   selectionURL(newer),
		SelectionChanged: d.SelectionChanged,
		Common:           len(d.Common),
	}
	if result.Added, err = changes(ctx, db, d.Added); err != nil {
		return err
	}
	if result.Removed, err = changes(ctx, db, d.Removed); err != nil {
		return err
	}

	if opts.json {
		return writeJSON(out, result)
	}

	fmt.Fprintf(out, "Comparing runs of %s\n", result.Target)
	fmt.Fprintf(out, "  older: %s (%s)\n", older.ID, older.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  newer: %s (%s)\n\n", newer.ID, newer.StartedAt.Local().Format("2006-01-02 15:04:05"))

	if !d.HasChanges() {
		fmt.Fprintf(out, "No changes: %d candidate(s) in both runs, same selection.\n", result.Common)
		return nil
	}
	if result.SelectionChanged {
		fmt.Fprintf(out, "Selection changed:\n  - %s\n  + %s\n\n", orNone(result.OlderSelection), orNone(result.NewerSelection))
	}
	writeChanges(out, "Added", "+", result.Added)
	writeChanges(out, "Removed", "-", result.Removed)
	fmt.Fprintf(out, "Unchanged: %d candidate(s)\n", result.Common)
	return nil
}

// changes annotates candidates with how many saved runs observed them.
func changes(ctx context.Context, db *database.RunDB, cands []model.Candidate) ([]candidateChange, error) {
	out := make([]candidateChange, 0, len(cands))
	for _, c := range cands {
		n, err := db.CandidateSightings(ctx, c.URL)
		if err != nil {
			return nil, err
		}
		out = append(out, candidateChange{
			URL:        c.URL,
			Channel:    c.FirstChannel,
			HasMarker:  c.HasAuthMarker,
			SeenInRuns: n,
		})
	}
	return out, nil
}

func writeChanges(out io.Writer, title, sign string, rows []candidateChange) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(out, "%s (%d):\n", title, len(rows))
	for _, r := range rows {
		fmt.Fprintf(out, "  %s %-18s seen in %d run(s)  %s\n", sign, r.Channel, r.SeenInRuns, r.URL)
	}
	fmt.Fprintln(out)
}

func selectionURL(r *model.Run) string {
	if r.Selection == nil {
		return ""
	}
	return r.Selection.URL
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
