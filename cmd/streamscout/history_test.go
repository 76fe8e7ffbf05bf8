package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/streamscout/internal/config"
	"github.com/nao1215/streamscout/internal/database"
	"github.com/nao1215/streamscout/internal/model"
)

// seedHistory opens a database in a temporary directory and stores an older
// and a newer run of testTarget.
func seedHistory(t *testing.T) (*database.RunDB, []int64) {
	t.Helper()

	db, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	older := sampleRun(testTarget, time.Now().Add(-48*time.Hour),
		"https://cdn.example/old.m3u8",
		"https://cdn.example/shared.m3u8",
	)
	newer := sampleRun(testTarget, time.Now().Add(-time.Hour),
		"https://cdn.example/shared.m3u8",
		"https://cdn.example/new.m3u8",
	)
	newer.Result = model.ResultSucceeded
	newer.Error = ""
	newer.Delivered = true
	newer.Selection = &model.Selection{URL: "https://cdn.example/new.m3u8", Tier: 1, Rule: "marker", Candidate: newer.Candidates[1]}

	var ids []int64
	for _, run := range []*model.Run{older, newer} {
		id, err := db.SaveRun(context.Background(), run)
		if err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		ids = append(ids, id)
	}
	return db, ids
}

// TestNewHistoryCmd tests the history command flags.
func TestNewHistoryCmd(t *testing.T) {
	t.Parallel()

	cmd := NewHistoryCmd()
	for _, name := range []string{"list-targets", "id", "diff", "prune", "json", "markdown", "db-dir"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
}

// TestParseHistoryOptions tests flag validation.
func TestParseHistoryOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		flags   []string
		args    []string
		wantErr bool
	}{
		{name: "defaults", flags: nil},
		{name: "target", args: []string{testTarget}},
		{name: "json and markdown", flags: []string{"--json", "--markdown"}, wantErr: true},
		{name: "diff without target", flags: []string{"--diff"}, wantErr: true},
		{name: "diff with target", flags: []string{"--diff"}, args: []string{testTarget}},
		{name: "negative id", flags: []string{"--id", "-1"}, wantErr: true},
		{name: "negative prune", flags: []string{"--prune", "-1h"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cmd := NewHistoryCmd()
			if err := cmd.ParseFlags(tc.flags); err != nil {
				t.Fatalf("failed to parse flags: %v", err)
			}
			opts, err := parseHistoryOptions(cmd, tc.args)
			if tc.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if opts.dbDir != config.XDGDataDir() {
				t.Errorf("dbDir = %q, want XDG data directory", opts.dbDir)
			}
			if len(tc.args) > 0 && opts.target != tc.args[0] {
				t.Errorf("target = %q, want %q", opts.target, tc.args[0])
			}
		})
	}
}

// TestHistoryCmdUsageErrors tests that invalid flag combinations exit with
// the usage status.
func TestHistoryCmdUsageErrors(t *testing.T) {
	t.Parallel()

	cmd := NewHistoryCmd()
	cmd.SetArgs([]string{"--db-dir", t.TempDir(), "--json", "--markdown"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	if !errors.Is(err, config.ErrConflictingReportFormats) {
		t.Fatalf("expected ErrConflictingReportFormats, got %v", err)
	}
	if exitCode(err) != exitUsage {
		t.Errorf("exitCode() = %d, want %d", exitCode(err), exitUsage)
	}
}

// TestRunHistory tests every history view against a seeded database.
func TestRunHistory(t *testing.T) {
	t.Parallel()

	t.Run("list runs", func(t *testing.T) {
		t.Parallel()

		db, _ := seedHistory(t)
		var out bytes.Buffer
		if err := runHistory(context.Background(), db, &historyOptions{target: testTarget}, &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := out.String()
		if !strings.Contains(got, "Runs (2)") {
			t.Errorf("expected two runs, got:\n%s", got)
		}
		if !strings.Contains(got, "succeeded") || !strings.Contains(got, "exhausted") {
			t.Errorf("expected both results, got:\n%s", got)
		}
	})

	t.Run("list runs of unknown target", func(t *testing.T) {
		t.Parallel()

		db, _ := seedHistory(t)
		var out bytes.Buffer
		if err := runHistory(context.Background(), db, &historyOptions{target: "https://other.example/"}, &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out.String(), "No runs found for https://other.example/") {
			t.Errorf("unexpected output:\n%s", out.String())
		}
	})

	t.Run("list runs as json", func(t *testing.T) {
		t.Parallel()

		db, _ := seedHistory(t)
		var out bytes.Buffer
		if err := runHistory(context.Background(), db, &historyOptions{json: true}, &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var runs []database.RunMetadata
		if err := json.Unmarshal(out.Bytes(), &runs); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(runs) != 2 {
			t.Errorf("expected 2 runs, got %d", len(runs))
		}
	})

	t.Run("list targets", func(t *testing.T) {
		t.Parallel()

		db, _ := seedHistory(t)
		var out bytes.Buffer
		if err := runHistory(context.Background(), db, &historyOptions{listTargets: true}, &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out.String(), "Targets (1)") || !strings.Contains(out.String(), testTarget) {
			t.Errorf("unexpected output:\n%s", out.String())
		}
	})

	t.Run("show run", func(t *testing.T) {
		t.Parallel()

		db, ids := seedHistory(t)
		formats := []struct {
			name string
			opts historyOptions
			want string
		}{
			{name: "simple", opts: historyOptions{id: ids[1]}, want: "STREAMSCOUT RUN REPORT"},
			{name: "json", opts: historyOptions{id: ids[1], json: true}, want: `"target"`},
			{name: "markdown", opts: historyOptions{id: ids[1], markdown: true}, want: "# streamscout Run Report"},
		}
		for _, f := range formats {
			var out bytes.Buffer
			if err := runHistory(context.Background(), db, &f.opts, &out); err != nil {
				t.Fatalf("%s: unexpected error: %v", f.name, err)
			}
			if !strings.Contains(out.String(), f.want) {
				t.Errorf("%s: expected %q in output", f.name, f.want)
			}
			if !strings.Contains(out.String(), "https://cdn.example/new.m3u8") {
				t.Errorf("%s: expected candidate dump in output", f.name)
			}
		}
	})

	t.Run("show missing run", func(t *testing.T) {
		t.Parallel()

		db, _ := seedHistory(t)
		err := runHistory(context.Background(), db, &historyOptions{id: 999}, &bytes.Buffer{})
		if !errors.Is(err, database.ErrRunNotFound) {
			t.Fatalf("expected ErrRunNotFound, got %v", err)
		}
		if exitCode(err) != exitUsage {
			t.Errorf("exitCode() = %d, want %d", exitCode(err), exitUsage)
		}
	})

	t.Run("diff", func(t *testing.T) {
		t.Parallel()

		db, _ := seedHistory(t)
		var out bytes.Buffer
		if err := runHistory(context.Background(), db, &historyOptions{target: testTarget, diff: true}, &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := out.String()
		for _, want := range []string{
			"Selection changed",
			"Added (1)",
			"+ ",
			"https://cdn.example/new.m3u8",
			"Removed (1)",
			"https://cdn.example/old.m3u8",
			"Unchanged: 1 candidate(s)",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("expected %q in output:\n%s", want, got)
			}
		}
	})

	t.Run("diff as json", func(t *testing.T) {
		t.Parallel()

		db, _ := seedHistory(t)
		var out bytes.Buffer
		if err := runHistory(context.Background(), db, &historyOptions{target: testTarget, diff: true, json: true}, &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var d runDiff
		if err := json.Unmarshal(out.Bytes(), &d); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if !d.SelectionChanged || d.Common != 1 {
			t.Errorf("unexpected diff: %+v", d)
		}
		if len(d.Added) != 1 || d.Added[0].URL != "https://cdn.example/new.m3u8" || d.Added[0].SeenInRuns != 1 {
			t.Errorf("Added = %+v", d.Added)
		}
		if len(d.Removed) != 1 || d.Removed[0].URL != "https://cdn.example/old.m3u8" {
			t.Errorf("Removed = %+v", d.Removed)
		}
	})

	t.Run("diff needs two runs", func(t *testing.T) {
		t.Parallel()

		db, _ := seedHistory(t)
		err := runHistory(context.Background(), db, &historyOptions{target: "https://other.example/", diff: true}, &bytes.Buffer{})
		if err == nil {
			t.Error("expected error")
		}
	})

	t.Run("prune", func(t *testing.T) {
		t.Parallel()

		db, _ := seedHistory(t)
		var out bytes.Buffer
		if err := runHistory(context.Background(), db, &historyOptions{prune: 24 * time.Hour}, &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out.String(), "Deleted 1 run(s)") {
			t.Errorf("unexpected output:\n%s", out.String())
		}
		history, err := db.GetRunHistory(context.Background(), testTarget)
		if err != nil {
			t.Fatalf("failed to read history: %v", err)
		}
		if len(history) != 1 || history[0].Result != model.ResultSucceeded {
			t.Errorf("history after prune = %+v", history)
		}
	})
}
