// Package store provides SQLite-backed history of followed LAVA jobs.
//
// The store keeps one row per run and one row per section the follower
// opened during that run:
//   - Runs: source, start and finish time, outcome (passed, timeout,
//     known_issue, ...) and the reason for a failure
//   - Sections: id, type, header and the section's start and finish time
//
// Transcript text is never stored. The job log is the record of what was
// printed; the store answers "how long did boot take on the last ten runs".
//
// # Ordering
//
// Runs are listed newest first (started_at DESC, id DESC). Sections are
// returned in the order the follower opened them (seq ASC).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
