// Package clock lets services and stores stamp records with an injectable time.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

// NewSystem returns the wall clock, in UTC.
func NewSystem() Clock {
	return utcClock{}
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// NewFixed returns a clock stopped at t.
func NewFixed(t time.Time) Clock {
	return stoppedClock(t.UTC())
}

type stoppedClock time.Time

func (c stoppedClock) Now() time.Time { return time.Time(c) }
