// Package system provides the real clock used outside of tests.
package system

import "time"

// Clock implements crawler.Clock and crawler.Sleeper on top of the time package.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Sleep blocks for d. Non-positive durations return immediately.
func (Clock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}
