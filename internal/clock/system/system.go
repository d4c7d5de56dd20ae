// Package system provides the wall clock used to stamp archived articles.
package system

import "time"

// Clock implements crawler.Clock using time.Now, truncated to microseconds
// so stamps survive a round trip through either database.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
