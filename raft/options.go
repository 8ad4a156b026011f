package raft

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pingcap/errors"

	"github.com/mcprohosting/raft/id"
	"github.com/mcprohosting/raft/membership"
)

// Default election and heartbeat timeout bounds (Raft §5.2 staggering).
const (
	DefaultElectionMin  = 150 * time.Millisecond
	DefaultElectionMax  = 300 * time.Millisecond
	DefaultHeartbeatMin = 50 * time.Millisecond
	DefaultHeartbeatMax = 70 * time.Millisecond
	DefaultThreshold    = 0.8
)

// Options configures a Node at construction time. Zero-valued fields take
// the package defaults; see NewOptions for a pre-defaulted value.
type Options struct {
	// ID is this node's stable identity. A random UUIDv4 is generated
	// when left empty.
	ID string

	ElectionMin, ElectionMax   time.Duration
	HeartbeatMin, HeartbeatMax time.Duration

	// Threshold is a proximity scalar in [0,1], reserved for future
	// RTT/election-timeout proximity warnings. It is not consulted by
	// any state rule in this core.
	Threshold float64

	// PreVote, when set, gates promote() behind a non-term-mutating
	// probe round before committing to a new term (see SPEC_FULL.md
	// §12). Default false reproduces the base spec's behavior exactly.
	PreVote bool

	// Membership reports the current peer set. A nil value defaults to
	// a single-member cluster containing only this node.
	Membership membership.Provider

	// Clock is the scheduling seam the timer registry is built on. A
	// nil value defaults to SystemClock.
	Clock Clock

	// Tracer, when set, wraps packet ingestion and promotion in spans.
	// A nil value disables tracing (opentracing.NoopTracer semantics).
	Tracer opentracing.Tracer
}

// NewOptions returns an Options value with every unset field defaulted,
// generating a random node identity.
func NewOptions() Options {
	return Options{
		ID:           id.New(),
		ElectionMin:  DefaultElectionMin,
		ElectionMax:  DefaultElectionMax,
		HeartbeatMin: DefaultHeartbeatMin,
		HeartbeatMax: DefaultHeartbeatMax,
		Threshold:    DefaultThreshold,
	}
}

// withDefaults fills in every zero-valued field, leaving explicit values
// untouched. It never mutates o in place.
func (o Options) withDefaults() Options {
	out := o
	if out.ID == "" {
		out.ID = id.New()
	}
	if out.ElectionMin == 0 {
		out.ElectionMin = DefaultElectionMin
	}
	if out.ElectionMax == 0 {
		out.ElectionMax = DefaultElectionMax
	}
	if out.HeartbeatMin == 0 {
		out.HeartbeatMin = DefaultHeartbeatMin
	}
	if out.HeartbeatMax == 0 {
		out.HeartbeatMax = DefaultHeartbeatMax
	}
	if out.Threshold == 0 {
		out.Threshold = DefaultThreshold
	}
	if out.Clock == nil {
		out.Clock = SystemClock
	}
	return out
}

func (o Options) validate() error {
	if o.ElectionMin < 0 || o.ElectionMax < 0 || o.HeartbeatMin < 0 || o.HeartbeatMax < 0 {
		return errors.Annotate(ErrInvalidOptions, "durations must be non-negative")
	}
	if o.ElectionMin > o.ElectionMax {
		return errors.Annotatef(ErrInvalidOptions, "election.min (%s) exceeds election.max (%s)", o.ElectionMin, o.ElectionMax)
	}
	if o.HeartbeatMin > o.HeartbeatMax {
		return errors.Annotatef(ErrInvalidOptions, "heartbeat.min (%s) exceeds heartbeat.max (%s)", o.HeartbeatMin, o.HeartbeatMax)
	}
	if o.Threshold < 0 || o.Threshold > 1 {
		return errors.Annotatef(ErrInvalidOptions, "threshold (%v) out of range [0,1]", o.Threshold)
	}
	return nil
}

func (o Options) electionBounds() bounds  { return bounds{o.ElectionMin, o.ElectionMax} }
func (o Options) heartbeatBounds() bounds { return bounds{o.HeartbeatMin, o.HeartbeatMax} }

// ParseDuration accepts either a numeric value (interpreted as
// milliseconds) or a human-readable duration string such as "150ms" or
// "150 ms", matching the source's duration parser (SPEC_FULL.md §9
// design note on timer units). Negative or non-finite values are
// rejected.
func ParseDuration(v interface{}) (time.Duration, error) {
	switch t := v.(type) {
	case time.Duration:
		if t < 0 {
			return 0, errors.Errorf("raft: negative duration %s", t)
		}
		return t, nil
	case int:
		return millis(int64(t))
	case int32:
		return millis(int64(t))
	case int64:
		return millis(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
			return 0, errors.Errorf("raft: invalid duration %v", t)
		}
		return millis(int64(t))
	case string:
		return parseDurationString(t)
	default:
		return 0, errors.Errorf("raft: unsupported duration value %v (%T)", v, v)
	}
}

func millis(ms int64) (time.Duration, error) {
	if ms < 0 {
		return 0, errors.Errorf("raft: negative duration %dms", ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseDurationString(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, errors.Errorf("raft: empty duration string")
	}
	// Accept the source's "150 ms" form by collapsing internal whitespace
	// before handing off to time.ParseDuration, which rejects the space.
	collapsed := strings.Join(strings.Fields(trimmed), "")
	if d, err := time.ParseDuration(collapsed); err == nil {
		if d < 0 {
			return 0, errors.Errorf("raft: negative duration %q", s)
		}
		return d, nil
	}
	// Bare numeric strings are milliseconds.
	if ms, err := strconv.ParseInt(collapsed, 10, 64); err == nil {
		return millis(ms)
	}
	return 0, errors.Errorf("raft: unrecognized duration %q", s)
}

func (o Options) String() string {
	return fmt.Sprintf("Options{id=%s election=[%s,%s] heartbeat=[%s,%s] threshold=%v}",
		o.ID, o.ElectionMin, o.ElectionMax, o.HeartbeatMin, o.HeartbeatMax, o.Threshold)
}
