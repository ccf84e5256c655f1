// Package follower turns the decoded log stream of a LAVA job into a CI
// transcript and decides, as early as possible, when the job must be aborted
// or retried.
//
// ARCHITECTURE:
//
// Single-Caller, Synchronous Pipeline:
// One Follower belongs to one job. Feed runs the whole pipeline for a batch
// before returning; there is no background work and no locking. Callers with
// several concurrent sources serialize them into one ordered feed first (see
// package feed).
//
// Feed Processing Flow:
//  1. Watchdog: the open section must still be within its budget
//  2. Per line: kernel dumps are printed immediately and skipped
//  3. Per line: section detection opens/closes GitLab sections
//  4. Per line: severity formatting, split-marker repair for target lines
//  5. Per batch: known-issue hints inspect every line, suppressed ones too
//
// Output is buffered and drained with Flush; Close finishes the open section
// and returns what is left.
//
// FATAL CONDITIONS:
//
// Feed returns a *FatalError when the job must stop. TIMEOUT means abort,
// KNOWN_ISSUE means the failure is a recognized infrastructure symptom and
// the job should be retried. Output buffered before the error is kept.
package follower
