// Package store persists items, runs, scores and all run-adjacent
// state in a single embedded sqlite file.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"aidigest/internal/item"
)

// Store owns every persisted row. Writes go through a single-connection
// pool so sqlite never sees two writers.
type Store struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

// Open opens (and if needed creates) the database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}

	s := &Store{readDB: readDB, writeDB: writeDB}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.writeDB.Exec(schema)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return s.migrate()
}

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL,
	source       TEXT NOT NULL,
	author       TEXT NOT NULL DEFAULT '',
	published_at DATETIME,
	type         TEXT NOT NULL,
	raw_text     TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	hash         TEXT NOT NULL,
	first_seen   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_published ON items(published_at DESC);
CREATE INDEX IF NOT EXISTS idx_items_source ON items(source);

CREATE TABLE IF NOT EXISTS runs (
	run_id         TEXT PRIMARY KEY,
	started_at     DATETIME NOT NULL,
	window_start   DATETIME NOT NULL,
	window_end     DATETIME NOT NULL,
	status         TEXT NOT NULL,
	source_errors  TEXT NOT NULL DEFAULT '',
	summary_errors TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS scores (
	run_id      TEXT NOT NULL,
	item_id     TEXT NOT NULL,
	relevance   INTEGER NOT NULL,
	quality     INTEGER NOT NULL,
	novelty     INTEGER NOT NULL,
	total       INTEGER NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '[]',
	topic_tags  TEXT NOT NULL DEFAULT '[]',
	format_tags TEXT NOT NULL DEFAULT '[]',
	provider    TEXT NOT NULL,
	PRIMARY KEY (run_id, item_id)
);

CREATE TABLE IF NOT EXISTS seen (
	key      TEXT PRIMARY KEY,
	added_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS score_cache (
	item_hash   TEXT NOT NULL,
	model       TEXT NOT NULL,
	relevance   INTEGER NOT NULL,
	quality     INTEGER NOT NULL,
	novelty     INTEGER NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '[]',
	topic_tags  TEXT NOT NULL DEFAULT '[]',
	format_tags TEXT NOT NULL DEFAULT '[]',
	stored_at   DATETIME NOT NULL,
	PRIMARY KEY (item_hash, model)
);

CREATE TABLE IF NOT EXISTS learning_weights (
	kind       TEXT NOT NULL,
	value      TEXT NOT NULL,
	weight     REAL NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (kind, value)
);

CREATE TABLE IF NOT EXISTS run_quality_eval (
	run_id        TEXT PRIMARY KEY,
	quality_score INTEGER NOT NULL,
	confidence    REAL NOT NULL,
	issues        TEXT NOT NULL DEFAULT '[]',
	before_ids    TEXT NOT NULL DEFAULT '[]',
	after_ids     TEXT NOT NULL DEFAULT '[]',
	repaired      INTEGER NOT NULL DEFAULT 0,
	model         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS timeline_events (
	run_id      TEXT NOT NULL,
	event_index INTEGER NOT NULL,
	stage       TEXT NOT NULL,
	severity    TEXT NOT NULL,
	message     TEXT NOT NULL,
	elapsed_s   REAL NOT NULL,
	details     TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (run_id, event_index)
);

CREATE TABLE IF NOT EXISTS timeline_notes (
	run_id     TEXT NOT NULL,
	note       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL DEFAULT '',
	item_id    TEXT NOT NULL DEFAULT '',
	verdict    TEXT NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS admin_audit (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	actor      TEXT NOT NULL,
	action     TEXT NOT NULL,
	details    TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS x_cursors (
	selector_type TEXT NOT NULL,
	selector_value TEXT NOT NULL,
	cursor        TEXT NOT NULL DEFAULT '',
	last_item_id  TEXT NOT NULL DEFAULT '',
	updated_at    DATETIME NOT NULL,
	PRIMARY KEY (selector_type, selector_value)
);
`

// migrate applies idempotent column additions for databases created
// by older versions. Duplicate-column errors mean the column already
// exists and are ignored.
func (s *Store) migrate() error {
	alters := []string{
		`ALTER TABLE scores ADD COLUMN provider TEXT NOT NULL DEFAULT 'rules'`,
		`ALTER TABLE scores ADD COLUMN topic_tags TEXT NOT NULL DEFAULT '[]'`,
		`ALTER TABLE scores ADD COLUMN format_tags TEXT NOT NULL DEFAULT '[]'`,
		`ALTER TABLE run_quality_eval ADD COLUMN model TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE x_cursors ADD COLUMN last_item_id TEXT NOT NULL DEFAULT ''`,
	}
	for _, stmt := range alters {
		if _, err := s.writeDB.Exec(stmt); err != nil {
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("migrating schema: %w", err)
		}
	}
	return nil
}

// Close closes both database handles.
func (s *Store) Close() error {
	var errs []error
	if s.readDB != nil {
		errs = append(errs, s.readDB.Close())
	}
	if s.writeDB != nil {
		errs = append(errs, s.writeDB.Close())
	}
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// UpsertItems inserts or refreshes fetched items.
func (s *Store) UpsertItems(items []item.Item) error {
	tx, err := s.writeDB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO items (id, url, title, source, author, published_at, type, raw_text, description, hash, first_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			raw_text = excluded.raw_text,
			description = excluded.description
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, it := range items {
		var pub any
		if it.PublishedAt != nil {
			pub = it.PublishedAt.UTC()
		}
		if _, err := stmt.Exec(it.ID, it.URL, it.Title, it.Source, it.Author, pub, string(it.Type), it.RawText, it.Description, it.Hash, now); err != nil {
			return fmt.Errorf("upserting item %s: %w", it.ID, err)
		}
	}
	return tx.Commit()
}

// Run is a persisted run row.
type Run struct {
	RunID         string
	StartedAt     time.Time
	WindowStart   time.Time
	WindowEnd     time.Time
	Status        string
	SourceErrors  []string
	SummaryErrors []string
}

// StartRun inserts the run in status "running".
func (s *Store) StartRun(runID string, startedAt, windowStart, windowEnd time.Time) error {
	_, err := s.writeDB.Exec(`
		INSERT INTO runs (run_id, started_at, window_start, window_end, status)
		VALUES (?, ?, ?, ?, 'running')
	`, runID, startedAt.UTC(), windowStart.UTC(), windowEnd.UTC())
	if err != nil {
		return fmt.Errorf("starting run %s: %w", runID, err)
	}
	return nil
}

// FinishRun records the terminal status and accumulated errors.
func (s *Store) FinishRun(runID, status string, sourceErrors, summaryErrors []string) error {
	_, err := s.writeDB.Exec(`
		UPDATE runs SET status = ?, source_errors = ?, summary_errors = ? WHERE run_id = ?
	`, status, strings.Join(sourceErrors, "\n"), strings.Join(summaryErrors, "\n"), runID)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	return nil
}

// LastCompletedWindowEnd returns the window end of the most recent
// run that finished successfully or partially. Zero when none exists.
func (s *Store) LastCompletedWindowEnd() (time.Time, error) {
	var end time.Time
	err := s.readDB.QueryRow(`
		SELECT window_end FROM runs
		WHERE status IN ('success', 'partial')
		ORDER BY started_at DESC LIMIT 1
	`).Scan(&end)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("querying last run: %w", err)
	}
	return end, nil
}

// GetRun loads one run row.
func (s *Store) GetRun(runID string) (Run, error) {
	var r Run
	var srcErrs, sumErrs string
	err := s.readDB.QueryRow(`
		SELECT run_id, started_at, window_start, window_end, status, source_errors, summary_errors
		FROM runs WHERE run_id = ?
	`, runID).Scan(&r.RunID, &r.StartedAt, &r.WindowStart, &r.WindowEnd, &r.Status, &srcErrs, &sumErrs)
	if err != nil {
		return Run{}, fmt.Errorf("loading run %s: %w", runID, err)
	}
	r.SourceErrors = splitLines(srcErrs)
	r.SummaryErrors = splitLines(sumErrs)
	return r, nil
}

// InsertScores writes the run's scores in one transaction.
func (s *Store) InsertScores(runID string, scores []item.Score) error {
	tx, err := s.writeDB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO scores (run_id, item_id, relevance, quality, novelty, total, reason, tags, topic_tags, format_tags, provider)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sc := range scores {
		if _, err := stmt.Exec(runID, sc.ItemID, sc.Relevance, sc.Quality, sc.Novelty, sc.Total(),
			sc.Reason, jsonList(sc.Tags), jsonList(sc.TopicTags), jsonList(sc.FormatTags), string(sc.Provider)); err != nil {
			return fmt.Errorf("inserting score for %s: %w", sc.ItemID, err)
		}
	}
	return tx.Commit()
}

// Seen returns the full seen-set.
func (s *Store) Seen() (map[string]bool, error) {
	rows, err := s.readDB.Query(`SELECT key FROM seen`)
	if err != nil {
		return nil, fmt.Errorf("querying seen set: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		seen[key] = true
	}
	return seen, rows.Err()
}

// AddSeen appends keys to the seen-set.
func (s *Store) AddSeen(keys []string) error {
	tx, err := s.writeDB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO seen (key, added_at) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, k := range keys {
		if _, err := stmt.Exec(k, now); err != nil {
			return fmt.Errorf("adding seen key: %w", err)
		}
	}
	return tx.Commit()
}

func jsonList(s []string) string {
	if len(s) == 0 {
		return "[]"
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func fromJSONList(s string) []string {
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
