package engine

import "time"

// Clock supplies pass start and finish times.
// testutil.DeterministicClock satisfies it for tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
