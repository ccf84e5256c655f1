// Package harness runs follower scenarios: recorded batches of LAVA log
// lines, fed on a fake clock, checked step by step and against golden
// transcripts.
//
// A scenario describes what the dispatcher sends and when:
//
//	name: forced_reboot
//	description: A reboot request during a test case is a known issue
//	steps:
//	  - lines:
//	      - {lvl: target, msg: "<STARTTC> piglit"}
//	  - advance: 30s
//	    lines:
//	      - {lvl: feedback, msg: "Reboot requested by the test"}
//	    expect:
//	      error: known_issue
//	assertions:
//	  - type: section_starts
//	    sections: [piglit]
//
// Each step first advances the clock, then feeds its lines as one batch and
// drains the output. A fatal error ends the scenario; the follower is
// always closed afterwards and its final lines are part of the transcript.
//
// Golden files live in testdata/golden/<name>.golden. To regenerate them:
//
//	go test ./internal/harness -update
package harness
