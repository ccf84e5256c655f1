package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SectionRecord is one section opened during a run.
type SectionRecord struct {
	RunID      string    `json:"run_id"`
	Seq        int       `json:"seq"`
	SectionID  string    `json:"section_id"`
	Type       string    `json:"type"`
	Header     string    `json:"header"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Duration returns how long the section was open, or zero while it is open.
func (r SectionRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RecordSection inserts a section, or updates its finish time when a record
// with the same run and seq exists.
func (s *Store) RecordSection(ctx context.Context, rec SectionRecord) error {
	var finished sql.NullInt64
	if !rec.FinishedAt.IsZero() {
		finished = sql.NullInt64{Int64: rec.FinishedAt.UnixNano(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sections (run_id, seq, section_id, type, header, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO UPDATE SET finished_at = excluded.finished_at
	`,
		rec.RunID,
		rec.Seq,
		rec.SectionID,
		rec.Type,
		rec.Header,
		rec.StartedAt.UnixNano(),
		finished,
	)
	if err != nil {
		return fmt.Errorf("record section: %w", err)
	}
	return nil
}

// ReadSections returns the sections of a run in the order they were opened.
// Returns an empty slice (not nil) for a run without sections.
func (s *Store) ReadSections(ctx context.Context, runID string) ([]SectionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, section_id, type, header, started_at, finished_at
		FROM sections
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query sections: %w", err)
	}
	defer rows.Close()

	records := []SectionRecord{}
	for rows.Next() {
		var (
			rec      SectionRecord
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.SectionID, &rec.Type, &rec.Header, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		rec.StartedAt = time.Unix(0, started).UTC()
		if finished.Valid {
			rec.FinishedAt = time.Unix(0, finished.Int64).UTC()
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}

	return records, nil
}
