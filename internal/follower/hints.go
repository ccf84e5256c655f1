package follower

import (
	"regexp"

	"github.com/roach88/lavalog/internal/logline"
	"github.com/roach88/lavalog/internal/section"
)

// DefaultNetworkIssueThreshold is the number of consecutive r8152 driver
// errors after which an NFS timeout is treated as a network failure.
const DefaultNetworkIssueThreshold = 10

// feedbackNoise is emitted by the dispatcher on every connection close and
// carries no signal.
const feedbackNoise = "Listened to connection for namespace 'dut' done"

var (
	r8152ErrorPattern     = regexp.MustCompile(`r8152 \S+ eth0: Tx status -71`)
	nfsNotRespondingRegex = regexp.MustCompile(`nfs: server \d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3} not responding, still trying`)
	rebootRequestedRegex  = regexp.MustCompile(`^Reboot requested`)
)

// Hints detects known infrastructure failures in the log stream.
//
// Counters live as long as the owning Follower and are only touched by the
// detection methods.
type Hints struct {
	phase     func() section.Type
	threshold int

	networkErrors int
	reboots       int
}

// NewHints creates a detector reading the current phase from phase.
// A threshold below 1 means DefaultNetworkIssueThreshold.
func NewHints(phase func() section.Type, threshold int) *Hints {
	if threshold < 1 {
		threshold = DefaultNetworkIssueThreshold
	}
	return &Hints{phase: phase, threshold: threshold}
}

// DetectFailure inspects every line and returns a known-issue FatalError for
// the first one that crosses a heuristic.
func (h *Hints) DetectFailure(lines []logline.LogLine) error {
	for _, line := range lines {
		if line.Text() == feedbackNoise {
			continue
		}
		if err := h.detectNetworkIssue(line); err != nil {
			return err
		}
		if err := h.detectForcedReboot(line); err != nil {
			return err
		}
	}
	return nil
}

// detectNetworkIssue counts r8152 Tx errors and fails on an NFS timeout that
// follows enough of them.
//
// Driver errors must be consecutive: any other line resets the counter after
// the NFS check has run on it, so errors never accumulate across a gap.
func (h *Hints) detectNetworkIssue(line logline.LogLine) error {
	phase := h.phase()
	if (phase == section.TypeLavaBoot || phase == section.TypeTestCase) &&
		(line.Level == logline.LevelFeedback || line.Level == logline.LevelTarget) {
		text := line.Text()
		if r8152ErrorPattern.MatchString(text) {
			h.networkErrors++
			return nil
		}

		if h.networkErrors >= h.threshold && nfsNotRespondingRegex.MatchString(text) {
			return NewKnownIssueError("Probable network issue failure encountered, retrying the job")
		}
	}

	h.networkErrors = 0
	return nil
}

// detectForcedReboot fails on any reboot request during a test case.
func (h *Hints) detectForcedReboot(line logline.LogLine) error {
	if h.phase() != section.TypeTestCase || line.Level != logline.LevelFeedback {
		return nil
	}
	if !rebootRequestedRegex.MatchString(line.Text()) {
		return nil
	}

	h.reboots++
	if h.reboots > 0 {
		return NewKnownIssueError("Forced reboot detected during test phase, failing the job...")
	}
	return nil
}

// NetworkErrors returns the consecutive r8152 error counter.
func (h *Hints) NetworkErrors() int { return h.networkErrors }

// Reboots returns the number of reboot requests seen during test cases.
func (h *Hints) Reboots() int { return h.reboots }
