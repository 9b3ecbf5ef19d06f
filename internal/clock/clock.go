package clock

import (
	"math"
	"strconv"
	"sync"
	"time"
)

// Timestamp is a wall-clock instant in seconds since the Unix epoch.
// It travels on the wire as a JSON number.
type Timestamp float64

// FromTime converts t to a Timestamp.
func FromTime(t time.Time) Timestamp {
	return Timestamp(float64(t.UnixNano()) / 1e9)
}

// Time converts the timestamp back to a time.Time.
func (ts Timestamp) Time() time.Time {
	sec, frac := math.Modf(float64(ts))
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Add returns the timestamp shifted by d.
func (ts Timestamp) Add(d time.Duration) Timestamp {
	return ts + Timestamp(d.Seconds())
}

// String returns the timestamp with microsecond precision.
func (ts Timestamp) String() string {
	return strconv.FormatFloat(float64(ts), 'f', 6, 64)
}

// CompareResult represents the result of comparing two timestamps.
type CompareResult int

const (
	// Before indicates this timestamp is strictly older than the other.
	Before CompareResult = iota
	// After indicates this timestamp is strictly newer than the other.
	After
	// Equal indicates both timestamps are the same instant.
	Equal
)

// String returns the string representation of CompareResult.
func (r CompareResult) String() string {
	switch r {
	case Before:
		return "BEFORE"
	case After:
		return "AFTER"
	case Equal:
		return "EQUAL"
	default:
		return "UNKNOWN"
	}
}

// Compare compares two timestamps.
func (ts Timestamp) Compare(other Timestamp) CompareResult {
	switch {
	case ts < other:
		return Before
	case ts > other:
		return After
	default:
		return Equal
	}
}

// Clock produces timestamps for new records.
type Clock interface {
	Now() Timestamp
}

// System reads the host clock.
type System struct{}

// Now returns the current host time.
func (System) Now() Timestamp {
	return FromTime(time.Now())
}

// Manual is a Clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now Timestamp
}

// NewManual creates a manual clock starting at start.
func NewManual(start Timestamp) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time.
func (m *Manual) Now() Timestamp {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d and returns the new time.
func (m *Manual) Advance(d time.Duration) Timestamp {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// Set jumps the clock to ts, which may be in the past.
func (m *Manual) Set(ts Timestamp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = ts
}
