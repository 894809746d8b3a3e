// Package journal records release runs and per-entry outcomes in a local
// SQLite database.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/input-output-hk/catalyst-forge-release/domain"
)

// Store is an open journal.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Run is one invocation of the publisher.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Entries    int
	Summary    domain.Summary
}

// Finished reports whether FinishRun was called for the run.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Entry is a recorded outcome together with the run it belongs to.
type Entry struct {
	RunID       string
	DryRun      bool
	Platform    domain.Platform
	Version     string
	Status      domain.OutcomeStatus
	Stage       domain.Stage
	Detail      string
	DownloadURL string
	BuildID     string
	Duration    time.Duration
	RecordedAt  time.Time
}

// Open creates or opens the journal at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun inserts a new run and returns its ID.
func (s *Store) BeginRun(ctx context.Context, dryRun bool, entries int) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, dry_run, entries) VALUES (?, ?, ?, ?)`,
		id, formatTime(s.now()), dryRun, entries)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// RecordOutcome stores the outcome of one entry.
func (s *Store) RecordOutcome(ctx context.Context, runID string, o domain.Outcome) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (
            run_id, platform, version, status, stage, detail,
            download_url, build_id, duration_ms, recorded_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		string(o.Entry.Platform),
		o.Entry.Version,
		string(o.Status),
		string(o.Stage),
		nullable(o.Detail),
		nullable(o.DownloadURL),
		nullable(o.BuildID),
		o.Duration.Milliseconds(),
		formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// FinishRun stamps the run's finish time and counters.
func (s *Store) FinishRun(ctx context.Context, runID string, summary domain.Summary) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, uploaded = ?, published = ?, submitted = ?,
            cleaned = ?, skipped = ?, failed = ?
        WHERE id = ?`,
		formatTime(s.now()),
		summary.Uploaded, summary.Published, summary.Submitted,
		summary.Cleaned, summary.Skipped, summary.Failed,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run: unknown run %s", runID)
	}
	return nil
}

// Runs returns up to limit runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, dry_run, entries,
            uploaded, published, submitted, cleaned, skipped, failed
        FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.DryRun, &r.Entries,
			&r.Summary.Uploaded, &r.Summary.Published, &r.Summary.Submitted,
			&r.Summary.Cleaned, &r.Summary.Skipped, &r.Summary.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = parseTime(started)
		if finished.Valid {
			r.FinishedAt = parseTime(finished.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// History returns up to limit recorded outcomes, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT o.run_id, r.dry_run, o.platform, o.version, o.status, o.stage,
            o.detail, o.download_url, o.build_id, o.duration_ms, o.recorded_at
        FROM outcomes o JOIN runs r ON r.id = o.run_id
        ORDER BY o.id DESC LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                       Entry
			platform, status, stage string
			detail, url, buildID    sql.NullString
			durationMS              int64
			recorded                string
		)
		if err := rows.Scan(&e.RunID, &e.DryRun, &platform, &e.Version, &status, &stage,
			&detail, &url, &buildID, &durationMS, &recorded); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		e.Platform = domain.Platform(platform)
		e.Status = domain.OutcomeStatus(status)
		e.Stage = domain.Stage(stage)
		e.Detail = detail.String
		e.DownloadURL = url.String
		e.BuildID = buildID.String
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.RecordedAt = parseTime(recorded)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// sqlLimit maps a non-positive limit to SQLite's "no limit".
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// timeLayout keeps every fraction digit so stored timestamps sort in time
// order as text. time.RFC3339Nano trims trailing zeros and does not.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
