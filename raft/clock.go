package raft

import "time"

// Timer is a single pending callback. It is satisfied by *time.Timer
// without adaptation, since time.Timer already exposes Stop() bool and
// Reset(d time.Duration) bool with matching signatures.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

// Clock abstracts wall-clock scheduling so the timer registry can be
// driven deterministically in tests instead of through real sleeps.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// systemClock is the production Clock, a thin pass-through to the
// standard library.
type systemClock struct{}

// SystemClock is the default Clock used when Options.Clock is unset.
var SystemClock Clock = systemClock{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
