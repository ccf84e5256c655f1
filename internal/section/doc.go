// Package section models the logical regions of a LAVA job transcript.
//
// A Section is one collapsible GitLab region: it is opened when a Detector in
// the Registry recognizes a boundary line, and closed when a section with a
// different id supersedes it or when the follower is torn down. Starting and
// ending a section renders the GitLab marker line for it.
//
// Marker format (bytes must be preserved exactly):
//
//	ESC[0Ksection_start:<unix ts>:<id>[collapsed=true]\rESC[0K<header>
//	ESC[0Ksection_end:<unix ts>:<id>\rESC[0K
//
// Every Type has an elapsed-time budget (Budgets); the follower's watchdog
// fails the job when the open section exceeds it.
package section
