package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/streamscout/internal/model"
)

// FileName is the database file created inside the database directory.
const FileName = "streamscout.db"

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// RunDB stores finished runs, their attempts and their candidate snapshots.
type RunDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file when missing.
	CreateIfNotExists bool

	// EnableWAL enables write-ahead logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the database in dbDir.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Foreign keys are a per-connection setting, so they go in the DSN.
	dsn := dbPath + "?mode=rw&_pragma=foreign_keys(1)"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite has a single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return rdb, nil
}

// Path returns the database file path.
func (rdb *RunDB) Path() string {
	return rdb.dbPath
}

// Close closes the database connection.
func (rdb *RunDB) Close() error {
	return rdb.db.Close()
}

func (rdb *RunDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_uuid TEXT NOT NULL UNIQUE,
		target TEXT NOT NULL,
		host TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		result TEXT NOT NULL,
		delivered INTEGER NOT NULL DEFAULT 0,
		dry_run INTEGER NOT NULL DEFAULT 0,
		selected_url TEXT,
		tier INTEGER,
		fingerprint TEXT,
		error TEXT,
		run_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_target ON runs(target);
	CREATE INDEX IF NOT EXISTS idx_runs_host ON runs(host);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- one row per attempt of a run
	CREATE TABLE IF NOT EXISTS attempts (
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		interaction INTEGER NOT NULL DEFAULT 0,
		tried TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		PRIMARY KEY (run_id, idx)
	);

	-- the candidate snapshot taken when the run ended
	CREATE TABLE IF NOT EXISTS candidates (
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		first_channel TEXT NOT NULL,
		first_seen_at DATETIME,
		has_marker INTEGER NOT NULL DEFAULT 0,
		observations INTEGER NOT NULL DEFAULT 1,
		sequence INTEGER NOT NULL,
		PRIMARY KEY (run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_candidates_url ON candidates(url);
	`
	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a finished run with its attempts and candidates in one
// transaction and returns the row ID.
func (rdb *RunDB) SaveRun(ctx context.Context, run *model.Run) (int64, error) {
	runJSON, err := json.Marshal(run)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize run: %w", err)
	}

	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	var selected sql.NullString
	var tier sql.NullInt64
	if run.Selection != nil {
		selected = sql.NullString{String: run.Selection.URL, Valid: true}
		tier = sql.NullInt64{Int64: int64(run.Selection.Tier), Valid: true}
	}

	result, err := tx.ExecContext(ctx, `
	INSERT INTO runs (run_uuid, target, host, started_at, finished_at, result, delivered, dry_run,
		selected_url, tier, fingerprint, error, run_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Target,
		hostOf(run.Target),
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		run.Result.String(),
		run.Delivered,
		run.DryRun,
		selected,
		tier,
		run.Manifest.Fingerprint(),
		run.Error,
		string(runJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	for _, att := range run.Attempts {
		tried, err := json.Marshal(att.Tried)
		if err != nil {
			return 0, fmt.Errorf("failed to serialize attempt %d: %w", att.Index, err)
		}
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO attempts (run_id, idx, outcome, interaction, tried, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, att.Index, att.Outcome.String(), att.InteractionPerformed, string(tried),
			formatTime(att.StartedAt), formatTime(att.FinishedAt)); err != nil {
			return 0, fmt.Errorf("failed to insert attempt %d: %w", att.Index, err)
		}
	}

	for _, c := range run.Candidates {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO candidates (run_id, url, first_channel, first_seen_at, has_marker, observations, sequence)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, c.URL, c.FirstChannel.String(), formatTime(c.FirstSeenAt), c.HasAuthMarker,
			c.Observations, c.Sequence); err != nil {
			return 0, fmt.Errorf("failed to insert candidate: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

// ListTargets returns every target with at least one stored run.
func (rdb *RunDB) ListTargets(ctx context.Context) ([]string, error) {
	rows, err := rdb.db.QueryContext(ctx, `SELECT DISTINCT target FROM runs ORDER BY target`)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []string
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

// RunMetadata summarizes a stored run without loading it.
type RunMetadata struct {
	ID          int64
	RunID       string
	Target      string
	StartedAt   time.Time
	Duration    time.Duration
	Result      model.RunResult
	Delivered   bool
	Attempts    int
	Candidates  int
	SelectedURL string
	Tier        model.Tier
	Fingerprint string
	Error       string
}

// GetRunHistory returns metadata of the runs for target, newest first.
// An empty target lists every run.
func (rdb *RunDB) GetRunHistory(ctx context.Context, target string) ([]RunMetadata, error) {
	query := `
	SELECT r.id, r.run_uuid, r.target, r.started_at, r.finished_at, r.result, r.delivered,
		COALESCE(r.selected_url, ''), COALESCE(r.tier, 0), COALESCE(r.fingerprint, ''), COALESCE(r.error, ''),
		(SELECT COUNT(*) FROM attempts a WHERE a.run_id = r.id),
		(SELECT COUNT(*) FROM candidates c WHERE c.run_id = r.id)
	FROM runs r
	`
	args := make([]any, 0, 1)
	if target != "" {
		query += " WHERE r.target = ?"
		args = append(args, target)
	}
	query += " ORDER BY r.started_at DESC, r.id DESC"

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var started, finished sql.NullString
		var result string
		var tier int64
		if err := rows.Scan(&meta.ID, &meta.RunID, &meta.Target, &started, &finished, &result,
			&meta.Delivered, &meta.SelectedURL, &tier, &meta.Fingerprint, &meta.Error,
			&meta.Attempts, &meta.Candidates); err != nil {
			return nil, fmt.Errorf("failed to scan run metadata: %w", err)
		}
		meta.StartedAt = parseTimestamp(started.String)
		if end := parseTimestamp(finished.String); !end.IsZero() && !meta.StartedAt.IsZero() {
			meta.Duration = end.Sub(meta.StartedAt)
		}
		_ = meta.Result.UnmarshalText([]byte(result)) //nolint:errcheck // unknown names decode as pending
		meta.Tier = model.Tier(tier)
		results = append(results, meta)
	}
	return results, rows.Err()
}

// GetRunByID loads a stored run.
func (rdb *RunDB) GetRunByID(ctx context.Context, id int64) (*model.Run, error) {
	var runJSON string
	err := rdb.db.QueryRowContext(ctx, `SELECT run_json FROM runs WHERE id = ?`, id).Scan(&runJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run model.Run
	if err := json.Unmarshal([]byte(runJSON), &run); err != nil {
		return nil, fmt.Errorf("failed to parse run: %w", err)
	}
	return &run, nil
}

// GetLatestRuns returns up to limit runs for target, newest first.
func (rdb *RunDB) GetLatestRuns(ctx context.Context, target string, limit int) ([]*model.Run, error) {
	rows, err := rdb.db.QueryContext(ctx, `
	SELECT run_json FROM runs
	WHERE target = ?
	ORDER BY started_at DESC, id DESC
	LIMIT ?
	`, target, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		var runJSON string
		if err := rows.Scan(&runJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		var run model.Run
		if err := json.Unmarshal([]byte(runJSON), &run); err != nil {
			continue // skip rows written by an incompatible version
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// CandidateSightings returns how many stored runs observed url.
func (rdb *RunDB) CandidateSightings(ctx context.Context, rawURL string) (int, error) {
	var n int
	err := rdb.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT run_id) FROM candidates WHERE url = ?`, rawURL).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sightings: %w", err)
	}
	return n, nil
}

// DeleteRunsBefore removes runs started before cutoff and returns how many
// were deleted. Attempts and candidates go with them.
func (rdb *RunDB) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := rdb.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	return result.RowsAffected()
}

func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// storedTimeFormat sorts lexically in UTC.
const storedTimeFormat = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(storedTimeFormat)
}

// timestampFormats are the layouts SQLite may hand back.
var timestampFormats = []string{
	storedTimeFormat,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999",
}

// parseTimestamp returns the zero time when no layout matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
