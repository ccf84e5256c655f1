package tail

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/lavalog/internal/feed"
	"github.com/roach88/lavalog/internal/logline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func appendTo(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

// collect drains q until want records were seen or the deadline passes.
func collect(t *testing.T, q *feed.Queue, want int) []logline.LogLine {
	t.Helper()

	var got []logline.LogLine
	deadline := time.After(5 * time.Second)
	for len(got) < want {
		if batch, ok := q.TryDequeue(); ok {
			got = append(got, batch...)
			continue
		}
		select {
		case <-q.Wait():
		case <-deadline:
			t.Fatalf("timed out with %d of %d records", len(got), want)
		}
	}
	return got
}

func start(t *testing.T, tl *Tailer) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tl.Run(ctx) }()

	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("tailer did not stop")
			return nil
		}
	}
}

func TestTailer_ReadsExistingAndAppended(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- {dt: 2024-05-02T10:01:02.345678, lvl: info, msg: booting}\n"), 0644))

	q := feed.NewQueue()
	tl := New(path, q, quiet(), WithPollInterval(10*time.Millisecond))
	stop := start(t, tl)

	first := collect(t, q, 1)
	assert.Equal(t, "booting", first[0].Text())

	appendTo(t, path, "- {dt: 2024-05-02T10:01:03.000000, lvl: target, msg: '<STARTTC> smoke'}\n")
	second := collect(t, q, 1)
	assert.Equal(t, logline.LevelTarget, second[0].Level)
	assert.Equal(t, "<STARTTC> smoke", second[0].Text())

	require.NoError(t, stop())
	assert.True(t, q.Drained(), "the queue is closed when the tailer stops")
	assert.Equal(t, 2, tl.Records())
}

func TestTailer_PartialLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	q := feed.NewQueue()
	tl := New(path, q, quiet(), WithPollInterval(10*time.Millisecond))
	stop := start(t, tl)

	appendTo(t, path, "- {lvl: target, msg: hal")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, q.Len(), "an incomplete line is not decoded")

	appendTo(t, path, "f done}\n")
	got := collect(t, q, 1)
	assert.Equal(t, "half done", got[0].Text())

	require.NoError(t, stop())
}

func TestTailer_SkipsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"- {lvl: target, msg: [unterminated\n"+
			"---\n"+
			"- {lvl: target, msg: fine}\n"), 0644))

	q := feed.NewQueue()
	tl := New(path, q, quiet(), WithPollInterval(10*time.Millisecond))
	stop := start(t, tl)

	got := collect(t, q, 1)
	assert.Equal(t, "fine", got[0].Text())

	require.NoError(t, stop())
	assert.Equal(t, 1, tl.Skipped())
}

func TestTailer_FromEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- {lvl: target, msg: old}\n"), 0644))

	q := feed.NewQueue()
	tl := New(path, q, quiet(), FromEnd(), WithPollInterval(10*time.Millisecond))
	stop := start(t, tl)

	time.Sleep(50 * time.Millisecond)
	appendTo(t, path, "- {lvl: target, msg: new}\n")

	got := collect(t, q, 1)
	assert.Equal(t, "new", got[0].Text())

	require.NoError(t, stop())
}

func TestTailer_MissingFile(t *testing.T) {
	q := feed.NewQueue()
	tl := New(filepath.Join(t.TempDir(), "missing.yaml"), q, quiet())

	err := tl.Run(context.Background())
	assert.ErrorContains(t, err, "failed to open log file")
	assert.True(t, q.Drained())
}
