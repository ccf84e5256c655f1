package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/lavalog/internal/logline"
)

// ErrIdle is returned by Pump.Run when no healthy batch arrived within the
// idle timeout.
var ErrIdle = errors.New("no output from the device within the idle timeout")

// Follower is the part of *follower.Follower a Pump drives.
type Follower interface {
	Feed(lines []logline.LogLine) (bool, error)
	Flush() []string
	Close() []string
}

// Stats counts what a Pump has processed.
type Stats struct {
	Batches        int
	Lines          int
	HealthyBatches int
}

// Pump moves batches from a Queue into a Follower and writes the transcript
// to a sink.
//
// Run is the only goroutine touching the follower.
type Pump struct {
	queue    *Queue
	follower Follower
	sink     io.Writer
	logger   *slog.Logger
	idle     time.Duration

	stats Stats
}

// PumpOption configures a Pump.
type PumpOption func(*Pump)

// WithIdleTimeout stops the pump with ErrIdle when no healthy batch arrives
// for d. Zero disables the timeout.
func WithIdleTimeout(d time.Duration) PumpOption {
	return func(p *Pump) {
		p.idle = d
	}
}

// WithPumpLogger sets the diagnostic logger.
func WithPumpLogger(l *slog.Logger) PumpOption {
	return func(p *Pump) {
		p.logger = l
	}
}

// NewPump creates a pump writing transcript lines to sink.
func NewPump(q *Queue, f Follower, sink io.Writer, opts ...PumpOption) *Pump {
	p := &Pump{
		queue:    q,
		follower: f,
		sink:     sink,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes batches until the queue is drained, the context is
// cancelled, the idle timeout expires or the follower reports a fatal error.
//
// The follower is always closed before Run returns and its final lines are
// written to the sink. Output buffered before a fatal error is written too.
func (p *Pump) Run(ctx context.Context) (err error) {
	p.logger.Info("pump starting")

	defer func() {
		if werr := p.write(p.follower.Close()); werr != nil && err == nil {
			err = werr
		}
		p.logger.Info("pump stopped",
			"batches", p.stats.Batches,
			"lines", p.stats.Lines,
			"healthy_batches", p.stats.HealthyBatches,
		)
	}()

	var (
		timer *time.Timer
		idle  <-chan time.Time
	)
	if p.idle > 0 {
		timer = time.NewTimer(p.idle)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		if batch, ok := p.queue.TryDequeue(); ok {
			healthy, ferr := p.follower.Feed(batch)

			p.stats.Batches++
			p.stats.Lines += len(batch)
			if healthy {
				p.stats.HealthyBatches++
				if timer != nil {
					timer.Reset(p.idle)
				}
			}

			if werr := p.write(p.follower.Flush()); werr != nil {
				return werr
			}
			if ferr != nil {
				p.logger.Warn("pump stopping: fatal condition", "error", ferr)
				return ferr
			}
			continue
		}

		select {
		case <-ctx.Done():
			p.logger.Info("pump stopping: context cancelled")
			return ctx.Err()

		case <-idle:
			p.logger.Warn("pump stopping: idle timeout", "idle", p.idle)
			return ErrIdle

		case <-p.queue.Wait():
			// The signal may be stale; only a drained queue ends the loop.
			if p.queue.Drained() {
				// A producer stopped by cancellation closes the queue too.
				if err := ctx.Err(); err != nil {
					p.logger.Info("pump stopping: context cancelled")
					return err
				}
				p.logger.Info("pump stopping: queue drained")
				return nil
			}
		}
	}
}

// Stats returns the counters of the last Run. Only call it after Run
// returned.
func (p *Pump) Stats() Stats {
	return p.stats
}

func (p *Pump) write(lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(p.sink, line); err != nil {
			return fmt.Errorf("failed to write transcript: %w", err)
		}
	}
	return nil
}
