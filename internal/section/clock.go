package section

import "time"

// Clock provides wall-clock time for section timestamps and the watchdog.
//
// Production code uses SystemClock; tests inject a controllable clock so
// elapsed-time budgets can be exercised without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now returns the current local time.
func (SystemClock) Now() time.Time { return time.Now() }
