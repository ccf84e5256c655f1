package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned for operations on an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeRunning     Outcome = "running"
	OutcomePassed      Outcome = "passed"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeKnownIssue  Outcome = "known_issue"
	OutcomeFailed      Outcome = "failed"
	OutcomeInterrupted Outcome = "interrupted"
)

// Run is one followed job.
type Run struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Outcome    Outcome   `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	Sections   int       `json:"sections"`
}

// Duration returns how long the run took, or zero while it is running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StartRun records the start of a run.
func (s *Store) StartRun(ctx context.Context, id, source string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, source, started_at, outcome)
		VALUES (?, ?, ?, ?)
	`, id, source, startedAt.UnixNano(), string(OutcomeRunning))
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun records how a run ended.
// Returns ErrRunNotFound if the run was never started.
func (s *Store) FinishRun(ctx context.Context, id string, outcome Outcome, reason string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET outcome = ?, reason = ?, finished_at = ?
		WHERE id = ?
	`, string(outcome), reason, finishedAt.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
// A limit of zero or less returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.source, r.started_at, r.finished_at, r.outcome, r.reason,
		       (SELECT COUNT(*) FROM sections s WHERE s.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC, r.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

// GetRun returns one run.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.source, r.started_at, r.finished_at, r.outcome, r.reason,
		       (SELECT COUNT(*) FROM sections s WHERE s.run_id = r.id)
		FROM runs r
		WHERE r.id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run      Run
		started  int64
		finished sql.NullInt64
		outcome  string
	)
	if err := row.Scan(&run.ID, &run.Source, &started, &finished, &outcome, &run.Reason, &run.Sections); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	run.StartedAt = time.Unix(0, started).UTC()
	if finished.Valid {
		run.FinishedAt = time.Unix(0, finished.Int64).UTC()
	}
	run.Outcome = Outcome(outcome)
	return run, nil
}
