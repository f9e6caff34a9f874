// Package history - SQLite store of past evaluation runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3" // register the sqlite3 driver
	"github.com/pkg/errors"

	"github.com/nvr-ai/fashion-eval/report"
)

const (
	createRuns = "CREATE TABLE IF NOT EXISTS runs (" +
		"run_id TEXT PRIMARY KEY, " +
		"model TEXT NOT NULL, " +
		"manifest TEXT NOT NULL, " +
		"started_at INTEGER NOT NULL, " +
		"duration_ns INTEGER NOT NULL, " +
		"samples INTEGER NOT NULL, " +
		"report_json BLOB NOT NULL" +
		")"

	createHeads = "CREATE TABLE IF NOT EXISTS run_heads (" +
		"run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE, " +
		"head TEXT NOT NULL, " +
		"top1 REAL NOT NULL, " +
		"acsa REAL NOT NULL, " +
		"PRIMARY KEY (run_id, head)" +
		")"

	insertRun = "INSERT OR REPLACE INTO runs " +
		"(run_id, model, manifest, started_at, duration_ns, samples, report_json) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?)"

	insertHead = "INSERT OR REPLACE INTO run_heads (run_id, head, top1, acsa) VALUES (?, ?, ?, ?)"

	selectRuns = "SELECT run_id, model, manifest, started_at, duration_ns, samples " +
		"FROM runs ORDER BY started_at DESC LIMIT ?"

	selectHeads = "SELECT head, top1, acsa FROM run_heads WHERE run_id = ?"

	selectReport = "SELECT report_json FROM runs WHERE run_id = ?"
)

// Run summarizes one stored evaluation.
type Run struct {
	ID        string
	Model     string
	Manifest  string
	StartedAt time.Time
	Duration  time.Duration
	Samples   int
	// Heads maps head name to its scores.
	Heads map[string]Scores
}

// Scores are the headline metrics of one head.
type Scores struct {
	Top1 float64
	ACSA float64
}

// Store persists evaluation reports.
type Store struct {
	db *sql.DB
}

// Open opens, and creates if needed, the SQLite database at path.
//
// Arguments:
//   - path: The database file.
//
// Returns:
//   - *Store: The store, to be closed by the caller.
//   - error: An error if the database cannot be opened or migrated.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open history %s", path)
	}
	s, err := NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore creates a store on an open SQLite database and creates the schema.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(createRuns); err != nil {
		return nil, errors.Wrap(err, "create runs table")
	}
	if _, err := db.Exec(createHeads); err != nil {
		return nil, errors.Wrap(err, "create run_heads table")
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores a report. Saving a run id twice replaces the earlier entry.
func (s *Store) Save(ctx context.Context, doc *report.Document) (err error) {
	if doc == nil || doc.RunID == "" {
		return errors.New("report has no run id")
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "marshal report")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, insertRun,
		doc.RunID,
		doc.Model,
		doc.Manifest,
		doc.StartedAt.UnixNano(),
		int64(doc.Stats.TotalDuration),
		doc.Stats.Samples,
		payload,
	); err != nil {
		return errors.Wrapf(err, "store run %s", doc.RunID)
	}
	for _, h := range doc.Heads {
		if h.Result == nil {
			continue
		}
		if _, err = tx.ExecContext(ctx, insertHead, doc.RunID, h.Name, h.Top1, h.ACSA); err != nil {
			return errors.Wrapf(err, "store run %s head %s", doc.RunID, h.Name)
		}
	}

	return errors.Wrap(tx.Commit(), "commit run")
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, selectRuns, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r         Run
			startedAt int64
			duration  int64
		)
		if err := rows.Scan(&r.ID, &r.Model, &r.Manifest, &startedAt, &duration, &r.Samples); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		r.StartedAt = time.Unix(0, startedAt)
		r.Duration = time.Duration(duration)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list runs")
	}

	for i := range runs {
		heads, err := s.heads(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Heads = heads
	}
	return runs, nil
}

func (s *Store) heads(ctx context.Context, runID string) (map[string]Scores, error) {
	rows, err := s.db.QueryContext(ctx, selectHeads, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "load heads of run %s", runID)
	}
	defer rows.Close()

	heads := make(map[string]Scores)
	for rows.Next() {
		var (
			name string
			sc   Scores
		)
		if err := rows.Scan(&name, &sc.Top1, &sc.ACSA); err != nil {
			return nil, errors.Wrapf(err, "scan heads of run %s", runID)
		}
		heads[name] = sc
	}
	return heads, errors.Wrapf(rows.Err(), "load heads of run %s", runID)
}

// Get loads the full report of a run. A missing run wraps os.ErrNotExist.
func (s *Store) Get(ctx context.Context, runID string) (*report.Document, error) {
	var payload []byte
	if err := s.db.QueryRowContext(ctx, selectReport, runID).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(os.ErrNotExist, "run %s", runID)
		}
		return nil, errors.Wrapf(err, "load run %s", runID)
	}

	var doc report.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, errors.Wrapf(err, "unmarshal run %s", runID)
	}
	return &doc, nil
}
