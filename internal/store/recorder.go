package store

import (
	"context"
	"log/slog"

	"github.com/roach88/lavalog/internal/follower"
	"github.com/roach88/lavalog/internal/section"
)

var _ follower.SectionObserver = (*Recorder)(nil)

// Recorder writes the sections of one run as the follower opens and closes
// them.
//
// Observer callbacks cannot fail, so the first write error is kept and
// reported by Err. Later sections are still attempted.
type Recorder struct {
	ctx    context.Context
	store  *Store
	runID  string
	logger *slog.Logger

	seq  int
	open map[*section.Section]SectionRecord
	err  error
}

// NewRecorder creates a recorder for runID. The run must have been started.
func NewRecorder(ctx context.Context, s *Store, runID string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		ctx:    ctx,
		store:  s,
		runID:  runID,
		logger: logger,
		open:   make(map[*section.Section]SectionRecord),
	}
}

// SectionStarted records a newly opened section.
func (r *Recorder) SectionStarted(s *section.Section) {
	r.seq++
	rec := SectionRecord{
		RunID:     r.runID,
		Seq:       r.seq,
		SectionID: s.ID,
		Type:      s.Type.String(),
		Header:    s.Header,
		StartedAt: s.StartTime(),
	}
	r.open[s] = rec
	r.write(rec)
}

// SectionFinished records the finish time of a section.
func (r *Recorder) SectionFinished(s *section.Section) {
	rec, ok := r.open[s]
	if !ok {
		// Starting sections handed to the follower were never announced.
		r.seq++
		rec = SectionRecord{
			RunID:     r.runID,
			Seq:       r.seq,
			SectionID: s.ID,
			Type:      s.Type.String(),
			Header:    s.Header,
			StartedAt: s.StartTime(),
		}
	}
	delete(r.open, s)

	rec.FinishedAt = s.EndTime()
	r.write(rec)
}

// Err returns the first write error.
func (r *Recorder) Err() error {
	return r.err
}

func (r *Recorder) write(rec SectionRecord) {
	if err := r.store.RecordSection(r.ctx, rec); err != nil {
		r.logger.Warn("failed to record section", "run", r.runID, "section", rec.SectionID, "error", err)
		if r.err == nil {
			r.err = err
		}
	}
}
