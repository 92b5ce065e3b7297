// Package clock abstracts time so that expiry logic can be tested
// against a deterministic clock.
package clock

import "time"

// Clock reads the current time.
type Clock interface {
	Now() time.Time
}

// System is the Clock backed by time.Now.
type System struct{}

// New returns a Clock that reads the current system time.
func New() System {
	return System{}
}

// Now returns the current system time.
func (System) Now() time.Time {
	return time.Now()
}
