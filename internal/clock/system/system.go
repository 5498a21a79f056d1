// Package system provides the wall clock used to stamp rows and name exports.
package system

import "time"

// Clock implements crawler.Clock in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to whole seconds, matching the
// precision of scraped_at.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
