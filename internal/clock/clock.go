package clock

import "time"

// Clock abstracts the current-time source so date math in the calculator,
// state machine, and sweep is deterministic under test.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Fixed is a Clock pinned to a single instant.
type Fixed struct {
	At time.Time
}

// Now returns the pinned instant.
func (f Fixed) Now() time.Time { return f.At }
