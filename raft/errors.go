package raft

import "github.com/pingcap/errors"

// ErrTimerExists is returned by the timer registry's set when a timer of
// the given name is already scheduled; callers must use active+adjust
// instead of scheduling a duplicate.
var ErrTimerExists = errors.New("raft: timer already scheduled")

// ErrTimerNotFound is returned by adjust when no timer of the given name
// is currently scheduled.
var ErrTimerNotFound = errors.New("raft: timer not found")

// ErrInvalidOptions is returned by Options.validate when a construction
// option is out of range (negative duration, min > max, threshold outside
// [0,1]).
var ErrInvalidOptions = errors.New("raft: invalid options")
