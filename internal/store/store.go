// Package store handles SQLite persistence of run history.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/trialshape/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for run history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			dataset TEXT NOT NULL,
			aggregation TEXT NOT NULL,
			input_path TEXT NOT NULL,
			output_path TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			participants INTEGER NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ended_at ON runs(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_output_path ON runs(output_path);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun stores a finished run.
func (s *Store) InsertRun(ctx context.Context, run model.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run id is empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, dataset, aggregation, input_path, output_path, started_at, ended_at, participants, status, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Dataset,
		run.Aggregation,
		run.InputPath,
		run.OutputPath,
		run.StartedAt.Format(time.RFC3339Nano),
		run.EndedAt.Format(time.RFC3339Nano),
		run.Participants,
		run.Status,
		run.Error,
	)
	return err
}

// ListRuns returns runs matching the filter, oldest first.
func (s *Store) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.RunRecord, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Dataset != "" {
		clauses = append(clauses, "dataset = ?")
		args = append(args, filter.Dataset)
	}
	if filter.OutputPath != "" {
		clauses = append(clauses, "output_path = ?")
		args = append(args, filter.OutputPath)
	}
	if filter.Since != nil {
		clauses = append(clauses, "ended_at >= ?")
		args = append(args, filter.Since.Format(time.RFC3339Nano))
	}
	query := fmt.Sprintf(`SELECT id, dataset, aggregation, input_path, output_path, started_at, ended_at, participants, status, error
		FROM runs
		WHERE %s
		ORDER BY ended_at ASC, rowid ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var runs []model.RunRecord
	for rows.Next() {
		var run model.RunRecord
		var startedAt, endedAt string
		if err := rows.Scan(&run.ID, &run.Dataset, &run.Aggregation, &run.InputPath, &run.OutputPath,
			&startedAt, &endedAt, &run.Participants, &run.Status, &run.Error); err != nil {
			return nil, err
		}
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, err
		}
		if run.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if filter.Last > 0 && len(runs) > filter.Last {
		runs = runs[len(runs)-filter.Last:]
	}
	return runs, nil
}

// LastRun returns the most recent successful run for an output path. Failed
// runs never write their output, so they are skipped.
func (s *Store) LastRun(ctx context.Context, outputPath string) (model.RunRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, dataset, aggregation, input_path, output_path, started_at, ended_at, participants, status, error
		 FROM runs WHERE output_path = ? AND status = ?
		 ORDER BY ended_at DESC, rowid DESC LIMIT 1`, outputPath, model.RunStatusOK)
	var run model.RunRecord
	var startedAt, endedAt string
	err := row.Scan(&run.ID, &run.Dataset, &run.Aggregation, &run.InputPath, &run.OutputPath,
		&startedAt, &endedAt, &run.Participants, &run.Status, &run.Error)
	if err == sql.ErrNoRows {
		return model.RunRecord{}, false, nil
	}
	if err != nil {
		return model.RunRecord{}, false, err
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return model.RunRecord{}, false, err
	}
	if run.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
		return model.RunRecord{}, false, err
	}
	return run, true, nil
}
