// Package tail follows a LAVA log file while the dispatcher is still writing
// it and turns every appended chunk of records into one feed batch.
package tail

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/lavalog/internal/feed"
	"github.com/roach88/lavalog/internal/logline"
)

// DefaultPollInterval is how often the file is read even without a write
// event. Some filesystems (NFS, overlay mounts) never deliver one.
const DefaultPollInterval = time.Second

// ErrFileRemoved is returned by Run when the followed file is removed or
// renamed.
var ErrFileRemoved = errors.New("followed file was removed")

// Tailer reads newly appended records from one file.
type Tailer struct {
	path    string
	queue   *feed.Queue
	logger  *slog.Logger
	poll    time.Duration
	fromEnd bool

	file    *os.File
	reader  *bufio.Reader
	partial string
	records int
	skipped int
}

// Option configures a Tailer.
type Option func(*Tailer)

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tailer) {
		t.logger = l
	}
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(t *Tailer) {
		t.poll = d
	}
}

// FromEnd skips the content present when Run starts.
func FromEnd() Option {
	return func(t *Tailer) {
		t.fromEnd = true
	}
}

// New creates a Tailer feeding q.
func New(path string, q *feed.Queue, opts ...Option) *Tailer {
	t := &Tailer{
		path:   path,
		queue:  q,
		logger: slog.Default(),
		poll:   DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run follows the file until ctx is cancelled or the file goes away.
// The queue is closed when Run returns, so a consumer drains what was read
// and stops.
func (t *Tailer) Run(ctx context.Context) error {
	defer t.queue.Close()

	if err := t.open(); err != nil {
		return err
	}
	defer t.file.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(t.path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", t.path, err)
	}

	t.logger.Info("tailing", "path", t.path, "from_end", t.fromEnd)

	if err := t.readAvailable(); err != nil {
		return err
	}

	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Pick up whatever was written just before the cancel.
			if err := t.readAvailable(); err != nil {
				return err
			}
			t.logger.Info("tail stopped", "records", t.records, "skipped", t.skipped)
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case ev.Has(fsnotify.Write):
				if err := t.readAvailable(); err != nil {
					return err
				}
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				t.logger.Warn("followed file went away", "path", t.path, "op", ev.Op.String())
				if err := t.readAvailable(); err != nil {
					return err
				}
				return ErrFileRemoved
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", t.path, err)

		case <-ticker.C:
			if err := t.readAvailable(); err != nil {
				return err
			}
		}
	}
}

// Skipped returns how many malformed lines were dropped.
func (t *Tailer) Skipped() int { return t.skipped }

// Records returns how many records were enqueued.
func (t *Tailer) Records() int { return t.records }

func (t *Tailer) open() error {
	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	if t.fromEnd {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return fmt.Errorf("failed to seek %s: %w", t.path, err)
		}
	}

	t.file = f
	t.reader = bufio.NewReader(f)
	return nil
}

// readAvailable reads every complete line up to EOF and enqueues the
// decoded records as one batch. A trailing partial line is kept for the
// next read.
func (t *Tailer) readAvailable() error {
	var batch []logline.LogLine

	for {
		chunk, err := t.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				t.partial += chunk
				break
			}
			return fmt.Errorf("failed to read %s: %w", t.path, err)
		}

		raw := strings.TrimSuffix(t.partial+chunk, "\n")
		t.partial = ""

		line, ok, perr := logline.ParseRecord([]byte(raw))
		if perr != nil {
			t.skipped++
			t.logger.Warn("skipping malformed record", "path", t.path, "error", perr)
			continue
		}
		if ok {
			batch = append(batch, line)
		}
	}

	if len(batch) == 0 {
		return nil
	}

	t.records += len(batch)
	if !t.queue.Enqueue(batch) {
		t.logger.Debug("queue closed, dropping batch", "records", len(batch))
	}
	return nil
}
