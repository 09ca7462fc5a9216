// Package runlog keeps a SQLite ledger of pipeline runs so the last-good
// state of a failed run can be inspected afterwards.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"toppers-pipeline/types"
)

type Ledger struct {
	conn *sql.DB
}

// Entry is one row of the runs table
type Entry struct {
	RunID         string
	Timestamp     string
	Topic         string
	State         types.PipelineState
	LastGoodState types.PipelineState
	Error         string
	VideoID       string
	FailedRanks   string
	StartedAt     time.Time
	CompletedAt   time.Time
}

// Open creates or opens the ledger at path. ":memory:" is accepted.
func Open(path string) (*Ledger, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping ledger: %w", err)
	}

	l := &Ledger{conn: conn}
	if err := l.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return l, nil
}

func (l *Ledger) Close() error {
	return l.conn.Close()
}

func (l *Ledger) migrate() error {
	_, err := l.conn.Exec(`CREATE TABLE IF NOT EXISTS runs (
		run_id          TEXT PRIMARY KEY,
		ts              TEXT NOT NULL,
		topic           TEXT NOT NULL DEFAULT '',
		state           TEXT NOT NULL,
		last_good_state TEXT NOT NULL DEFAULT '',
		error_message   TEXT NOT NULL DEFAULT '',
		video_id        TEXT NOT NULL DEFAULT '',
		failed_ranks    TEXT NOT NULL DEFAULT '',
		started_at      TEXT NOT NULL,
		completed_at    TEXT
	)`)
	return err
}

// Start records a run as in progress
func (l *Ledger) Start(ctx context.Context, runID, ts string, startedAt time.Time) error {
	_, err := l.conn.ExecContext(ctx,
		`INSERT INTO runs (run_id, ts, state, started_at) VALUES (?, ?, ?, ?)`,
		runID, ts, string(types.StateIdle), startedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Finish stores the outcome of a run
func (l *Ledger) Finish(ctx context.Context, r *types.RunReport, completedAt time.Time) error {
	topic := ""
	if r.Topic != nil {
		topic = r.Topic.Title
	}
	errMsg := r.Error
	if r.PublishError != "" && errMsg == "" {
		errMsg = r.PublishError
	}
	_, err := l.conn.ExecContext(ctx,
		`UPDATE runs SET topic = ?, state = ?, last_good_state = ?, error_message = ?,
			video_id = ?, failed_ranks = ?, completed_at = ?
		 WHERE run_id = ?`,
		topic, string(r.State), string(r.LastGoodState), errMsg,
		r.VideoID, joinRanks(r.FailedRanks), completedAt.UTC().Format(time.RFC3339), r.RunID)
	if err != nil {
		return fmt.Errorf("update run %s: %w", r.RunID, err)
	}
	return nil
}

// Recent returns the newest runs first
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := l.conn.QueryContext(ctx,
		`SELECT run_id, ts, topic, state, last_good_state, error_message, video_id, failed_ranks,
			started_at, COALESCE(completed_at, '')
		 FROM runs ORDER BY started_at DESC, ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var state, lastGood, started, completed string
		if err := rows.Scan(&e.RunID, &e.Timestamp, &e.Topic, &state, &lastGood, &e.Error,
			&e.VideoID, &e.FailedRanks, &started, &completed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.State = types.PipelineState(state)
		e.LastGoodState = types.PipelineState(lastGood)
		e.StartedAt, _ = time.Parse(time.RFC3339, started)
		if completed != "" {
			e.CompletedAt, _ = time.Parse(time.RFC3339, completed)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func joinRanks(ranks []int) string {
	parts := make([]string, len(ranks))
	for i, r := range ranks {
		parts[i] = fmt.Sprint(r)
	}
	return strings.Join(parts, ",")
}
