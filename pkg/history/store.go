// Package history persists part creation runs in SQLite so past work
// survives restarts and can be listed and swept.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/partforge/partforge/pkg/agent"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	model       TEXT NOT NULL DEFAULT '',
	rounds      INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);

CREATE TABLE IF NOT EXISTS tool_calls (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq    INTEGER NOT NULL,
	tool   TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// Config holds history store configuration.
type Config struct {
	Path          string
	Retention     time.Duration // drop runs older than this; 0 keeps everything
	SweepSchedule string        // cron spec for the retention sweep, default @hourly
	Logger        zerolog.Logger
}

// Store persists run records in SQLite. It implements agent.RunRecorder.
type Store struct {
	db        *sql.DB
	retention time.Duration
	cron      *cron.Cron
	logger    zerolog.Logger
}

// Run is one recorded run with its tool sequence.
type Run struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Outcome     string    `json:"outcome"`
	Message     string    `json:"message,omitempty"`
	Model       string    `json:"model,omitempty"`
	Rounds      int       `json:"rounds"`
	DurationMs  int64     `json:"duration_ms"`
	Tools       []string  `json:"tools,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Open creates or opens the history database and starts the retention
// sweeper when a retention is configured.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("history database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	s := &Store{
		db:        db,
		retention: cfg.Retention,
		logger:    cfg.Logger.With().Str("component", "history").Logger(),
	}

	if cfg.Retention > 0 {
		schedule := cfg.SweepSchedule
		if schedule == "" {
			schedule = "@hourly"
		}
		c := cron.New()
		if _, err := c.AddFunc(schedule, s.sweep); err != nil {
			db.Close()
			return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
		}
		c.Start()
		s.cron = c
		s.logger.Info().Str("schedule", schedule).Dur("retention", cfg.Retention).Msg("History sweeper started")
	}

	return s, nil
}

// RecordRun stores one run and its tool sequence.
func (s *Store) RecordRun(ctx context.Context, record agent.RunRecord) error {
	id := record.ID
	if id == "" {
		id = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, description, outcome, message, model, rounds, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, record.Description, record.Outcome, record.Message, record.Model,
		record.Rounds, record.Duration.Milliseconds(), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, tool := range record.Tools {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tool_calls (run_id, seq, tool) VALUES (?, ?, ?)`,
			id, i, tool,
		); err != nil {
			return fmt.Errorf("failed to insert tool call: %w", err)
		}
	}

	return tx.Commit()
}

// RecentRuns returns the newest runs first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, description, outcome, message, model, rounds, duration_ms, created_at
		 FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Description, &run.Outcome, &run.Message,
			&run.Model, &run.Rounds, &run.DurationMs, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		tools, err := s.runTools(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Tools = tools
	}
	return runs, nil
}

func (s *Store) runTools(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tool FROM tool_calls WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool calls: %w", err)
	}
	defer rows.Close()

	tools := []string{}
	for rows.Next() {
		var tool string
		if err := rows.Scan(&tool); err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	return tools, rows.Err()
}

// sweep deletes runs older than the retention window.
func (s *Store) sweep() {
	cutoff := time.Now().UTC().Add(-s.retention)
	result, err := s.db.Exec(`DELETE FROM runs WHERE created_at < ?`, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("History sweep failed")
		return
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		s.logger.Info().Int64("runs", n).Msg("Swept expired run history")
	}
}

// Close stops the sweeper and closes the database.
func (s *Store) Close() error {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	return s.db.Close()
}
