package follower

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lavalog/internal/console"
	"github.com/roach88/lavalog/internal/logline"
	"github.com/roach88/lavalog/internal/section"
	"github.com/roach88/lavalog/internal/testutil"
)

const (
	openingHalf  = "\x1b[0Ksection_start:100:abc"
	continuation = "\x1b[0KMy Section"
)

func newTestFollower(t *testing.T, opts ...Option) (*Follower, *testutil.FakeClock, *bytes.Buffer) {
	t.Helper()

	clock := testutil.NewFakeClock(time.Time{})
	var out bytes.Buffer
	base := []Option{
		WithClock(clock),
		WithConsole(&out),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}

	f, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return f, clock, &out
}

func target(msg string) logline.LogLine { return logline.New(logline.LevelTarget, msg) }

func countContaining(lines []string, substr string) int {
	n := 0
	for _, l := range lines {
		if strings.Contains(l, substr) {
			n++
		}
	}
	return n
}

func TestNew_RejectsUnstartedSection(t *testing.T) {
	s := section.New("dut_boot", "Booting", section.TypeLavaBoot, true)

	_, err := New(WithStartingSection(s))
	assert.ErrorIs(t, err, ErrSectionNotStarted)
}

func TestNew_AcceptsStartedSection(t *testing.T) {
	clock := testutil.NewFakeClock(time.Time{})
	s := section.New("dut_boot", "Booting", section.TypeLavaBoot, true)
	s.Start(clock)

	f, err := New(WithStartingSection(s), WithClock(clock))
	require.NoError(t, err)
	assert.Equal(t, section.TypeLavaBoot, f.Phase())
	assert.Same(t, s, f.CurrentSection())
}

func TestNew_Defaults(t *testing.T) {
	f, err := New()
	require.NoError(t, err)
	assert.Equal(t, section.TypeUnknown, f.Phase())
	assert.Nil(t, f.CurrentSection())
}

func TestFeed_HealthyFlag(t *testing.T) {
	f, _, out := newTestFollower(t)

	healthy, err := f.Feed([]logline.LogLine{target("hello"), target("world")})
	require.NoError(t, err)
	assert.True(t, healthy)

	healthy, err = f.Feed([]logline.LogLine{
		logline.NewDump("[   12.345678] Unable to handle kernel paging request", "[   12.345679] Call trace:"),
		logline.New(logline.LevelDebug, "[   13.000001] kworker/0:1: oops"),
	})
	require.NoError(t, err)
	assert.False(t, healthy, "a batch of kernel dumps only is not a sign of life")

	healthy, err = f.Feed(nil)
	require.NoError(t, err)
	assert.False(t, healthy)

	// Kernel output bypasses the buffer
	assert.Equal(t, []string{"hello", "world"}, f.Flush())
	printed := out.String()
	assert.Contains(t, printed, console.Bold+"[   12.345678] Unable to handle kernel paging request"+console.Reset)
	assert.Contains(t, printed, console.Bold+"[   13.000001] kworker/0:1: oops"+console.Reset)
	assert.Equal(t, 3, strings.Count(printed, "\n"))
}

func TestFeed_KernelLinesSkipSectionDetection(t *testing.T) {
	f, _, _ := newTestFollower(t)

	healthy, err := f.Feed([]logline.LogLine{
		logline.NewDump("<STARTTC> hidden"),
	})
	require.NoError(t, err)
	assert.False(t, healthy)
	assert.Nil(t, f.CurrentSection())
	assert.Empty(t, f.Flush())
}

func TestFeed_ListMessageOnlyDumpAtDebug(t *testing.T) {
	f, _, out := newTestFollower(t)

	listAt := func(level logline.Level, lines ...string) logline.LogLine {
		return logline.LogLine{Level: level, Message: logline.List(lines...)}
	}

	healthy, err := f.Feed([]logline.LogLine{listAt(logline.LevelTarget, "first", "second")})
	require.NoError(t, err)
	assert.True(t, healthy)
	assert.Equal(t, []string{"first\nsecond"}, f.Flush())
	assert.Empty(t, out.String())

	healthy, err = f.Feed([]logline.LogLine{listAt(logline.LevelDebug, "first", "second")})
	require.NoError(t, err)
	assert.False(t, healthy)
	assert.Empty(t, f.Flush())
	assert.Equal(t, 2, strings.Count(out.String(), "\n"))
}

func TestFeed_UnknownLevelPassedThrough(t *testing.T) {
	var logs bytes.Buffer
	f, _, _ := newTestFollower(t, WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))))

	_, err := f.Feed([]logline.LogLine{logline.New(logline.Level("info"), "dispatcher note")})
	require.NoError(t, err)
	assert.Equal(t, []string{"dispatcher note"}, f.Flush())
	assert.Contains(t, logs.String(), "unformatted level")
	assert.Contains(t, logs.String(), "level=info")
}

func TestFeed_RedundantBoundaryIsIdempotent(t *testing.T) {
	f, _, _ := newTestFollower(t)

	// The same boundary as it reaches the log through stdout and kmsg.
	_, err := f.Feed([]logline.LogLine{
		target("<STARTTC> boot-1"),
		target("<LAVA_SIGNAL_STARTTC boot-1>"),
	})
	require.NoError(t, err)

	out := f.Flush()
	assert.Equal(t, 1, countContaining(out, "section_start:"))
	assert.Equal(t, 0, countContaining(out, "section_end:"))
	require.NotNil(t, f.CurrentSection())
	assert.Equal(t, "boot-1", f.CurrentSection().ID)
}

func TestFeed_SectionTransition(t *testing.T) {
	f, clock, _ := newTestFollower(t)

	_, err := f.Feed([]logline.LogLine{target("<STARTTC> a")})
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	_, err = f.Feed([]logline.LogLine{target("<STARTTC> b")})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"\x1b[0Ksection_start:1700000000:a\r\x1b[0K\x1b[1m\x1b[1;32;5;197mtest_case a - Timeout: 1h0m0s\x1b[0m",
		"<STARTTC> a",
		"\x1b[0Ksection_end:1700000030:a\r\x1b[0K",
		"\x1b[0Ksection_start:1700000030:b\r\x1b[0K\x1b[1m\x1b[1;32;5;197mtest_case b - Timeout: 1h0m0s\x1b[0m",
		"<STARTTC> b",
	}, f.Flush())
	assert.Equal(t, section.TypeTestCase, f.Phase())
}

func TestFeed_SplitMarkerMerged(t *testing.T) {
	f, _, _ := newTestFollower(t)

	_, err := f.Feed([]logline.LogLine{target(openingHalf), target(continuation)})
	require.NoError(t, err)

	assert.Equal(t, []string{openingHalf + "\r" + continuation}, f.Flush())
}

func TestFeed_SplitMarkerMergedAcrossBatches(t *testing.T) {
	f, _, _ := newTestFollower(t)

	_, err := f.Feed([]logline.LogLine{target(openingHalf)})
	require.NoError(t, err)
	assert.Empty(t, f.Flush(), "the opening half is held back")

	_, err = f.Feed([]logline.LogLine{target(continuation)})
	require.NoError(t, err)
	assert.Equal(t, []string{openingHalf + "\r" + continuation}, f.Flush())
}

func TestFeed_SplitMarkerRecovered(t *testing.T) {
	f, _, _ := newTestFollower(t)

	_, err := f.Feed([]logline.LogLine{target(openingHalf), target("unrelated output")})
	require.NoError(t, err)

	assert.Equal(t, []string{openingHalf, "unrelated output"}, f.Flush())
}

func TestFeed_SplitMarkerOnlyForTargetLines(t *testing.T) {
	f, _, _ := newTestFollower(t)

	_, err := f.Feed([]logline.LogLine{
		logline.New(logline.Level("info"), openingHalf),
		target(continuation),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{openingHalf, continuation}, f.Flush())
}

func TestFeed_SeverityFormatting(t *testing.T) {
	f, _, _ := newTestFollower(t)

	_, err := f.Feed([]logline.LogLine{
		logline.New(logline.LevelResults, "result line"),
		logline.New(logline.LevelFeedback, "feedback line"),
		logline.New(logline.LevelDebug, "debug line"),
		logline.New(logline.LevelWarning, "careful"),
		logline.New(logline.LevelError, "broken"),
		logline.New(logline.LevelInput, "uname -a"),
		target("Linux dut 6.8.0"),
		logline.New(logline.Level("info"), "lava-dispatcher"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		console.FgRed + "careful" + console.Reset,
		console.FgRed + "broken" + console.Reset,
		"$ uname -a",
		"Linux dut 6.8.0",
		"lava-dispatcher",
	}, f.Flush())
}

func TestFeed_SuppressedLinesStillOpenSections(t *testing.T) {
	f, _, _ := newTestFollower(t)

	_, err := f.Feed([]logline.LogLine{logline.New(logline.LevelDebug, "<STARTRUN> 1_mesa")})
	require.NoError(t, err)

	out := f.Flush()
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "section_start:1700000000:1_mesa")
	assert.Equal(t, section.TypeTestSuite, f.Phase())
}

func TestFlush_Idempotent(t *testing.T) {
	f, _, _ := newTestFollower(t)

	_, err := f.Feed([]logline.LogLine{target("line")})
	require.NoError(t, err)

	assert.NotEmpty(t, f.Flush())
	assert.Empty(t, f.Flush())
}

func TestWatchdog_TimesOutBeforeProcessing(t *testing.T) {
	budgets := section.Budgets{
		PerType:  map[section.Type]time.Duration{section.TypeTestCase: 60 * time.Second},
		Fallback: 10 * time.Minute,
	}
	f, clock, _ := newTestFollower(t, WithBudgets(budgets))

	_, err := f.Feed([]logline.LogLine{target("<STARTTC> slow-test")})
	require.NoError(t, err)
	f.Flush()

	clock.Advance(60 * time.Second)
	_, err = f.Feed(nil)
	require.NoError(t, err, "the budget is only exceeded strictly after it elapses")

	clock.Advance(time.Second)
	healthy, err := f.Feed([]logline.LogLine{target("never processed")})
	require.Error(t, err)
	assert.False(t, healthy)
	assert.True(t, IsTimeout(err))
	assert.False(t, IsKnownIssue(err))

	var fe *FatalError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 60*time.Second, fe.Budget)
	assert.Equal(t, "slow-test", fe.Section.ID)

	assert.Empty(t, f.Flush(), "no line of the batch is processed after a timeout")
}

func TestWatchdog_FallbackBudget(t *testing.T) {
	budgets := section.Budgets{Fallback: 5 * time.Second}
	f, clock, _ := newTestFollower(t, WithBudgets(budgets))

	_, err := f.Feed([]logline.LogLine{logline.New(logline.LevelDebug, "<STARTRUN> 1_mesa")})
	require.NoError(t, err)

	clock.Advance(6 * time.Second)
	_, err = f.Feed(nil)
	assert.True(t, IsTimeout(err))
}

func TestWatchdog_NoSectionNoTimeout(t *testing.T) {
	f, clock, _ := newTestFollower(t, WithBudgets(section.Budgets{Fallback: time.Second}))

	clock.Advance(time.Hour)
	_, err := f.Feed([]logline.LogLine{target("still alive")})
	assert.NoError(t, err)
}

func TestFeed_ForcedRebootKeepsBufferedOutput(t *testing.T) {
	f, _, _ := newTestFollower(t)

	healthy, err := f.Feed([]logline.LogLine{
		target("<STARTTC> piglit"),
		logline.New(logline.LevelFeedback, "Reboot requested by the test"),
	})
	require.Error(t, err)
	assert.True(t, healthy)
	assert.True(t, IsKnownIssue(err))
	assert.Contains(t, err.Error(), console.FgMagenta+"Forced reboot detected during test phase, failing the job..."+console.Reset)

	out := f.Flush()
	assert.Len(t, out, 2)
	assert.Equal(t, "<STARTTC> piglit", out[1])
}

func TestFeed_RebootOutsideTestCaseIgnored(t *testing.T) {
	f, _, _ := newTestFollower(t)

	_, err := f.Feed([]logline.LogLine{logline.New(logline.LevelFeedback, "Reboot requested")})
	assert.NoError(t, err)
}

func TestFeed_HintsSeeOriginalLines(t *testing.T) {
	f, _, _ := newTestFollower(t, WithNetworkIssueThreshold(1))

	_, err := f.Feed([]logline.LogLine{
		target("<STARTTC> net"),
		target("r8152 2-1.4:1.0 eth0: Tx status -71"),
		target("nfs: server 192.168.1.1 not responding, still trying"),
	})
	assert.True(t, IsKnownIssue(err))
}

func TestClose_FinishesSection(t *testing.T) {
	f, clock, _ := newTestFollower(t)

	_, err := f.Feed([]logline.LogLine{target("<STARTTC> last")})
	require.NoError(t, err)
	f.Flush()

	clock.Advance(5 * time.Second)
	assert.Equal(t, []string{"\x1b[0Ksection_end:1700000005:last\r\x1b[0K"}, f.Close())
	assert.Nil(t, f.CurrentSection())
	assert.Empty(t, f.Close(), "closing twice emits nothing more")
}

func TestClose_RecoversHeldMarker(t *testing.T) {
	f, _, _ := newTestFollower(t)

	_, err := f.Feed([]logline.LogLine{target(openingHalf)})
	require.NoError(t, err)

	assert.Equal(t, []string{openingHalf}, f.Close())
}

type recordingObserver struct {
	events []string
}

func (r *recordingObserver) SectionStarted(s *section.Section)  { r.events = append(r.events, "start "+s.ID) }
func (r *recordingObserver) SectionFinished(s *section.Section) { r.events = append(r.events, "end "+s.ID) }

func TestSectionObserver(t *testing.T) {
	obs := &recordingObserver{}
	f, _, _ := newTestFollower(t, WithSectionObserver(obs))

	_, err := f.Feed([]logline.LogLine{
		target("<STARTTC> a"),
		target("<STARTTC> a"),
		target("<ENDTC> a"),
	})
	require.NoError(t, err)
	f.Close()

	assert.Equal(t, []string{"start a", "end a", "start post-a", "end post-a"}, obs.events)
}
