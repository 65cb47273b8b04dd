// Package clock abstracts time.Now so timestamp-dependent code can be
// driven by a fixed clock in tests. State files, memory items, audit
// snapshots, and relative-time display all read through it.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

var _ Clock = RealClock{}
