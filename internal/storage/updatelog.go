package storage

import (
	"maps"
	"slices"
)

// UpdateLog is a grow-only set of human-readable event descriptions such as
// "Reserved Resource-1". Replicas converge by union.
type UpdateLog struct {
	entries map[string]struct{}
}

// NewUpdateLog returns an empty log.
func NewUpdateLog() *UpdateLog {
	return &UpdateLog{entries: make(map[string]struct{})}
}

// Append adds entry and reports whether it was new.
func (l *UpdateLog) Append(entry string) bool {
	if _, ok := l.entries[entry]; ok {
		return false
	}
	l.entries[entry] = struct{}{}
	return true
}

// Union adds every entry and returns how many were new.
func (l *UpdateLog) Union(entries []string) int {
	added := 0
	for _, e := range entries {
		if l.Append(e) {
			added++
		}
	}
	return added
}

// Entries returns the log in sorted order.
func (l *UpdateLog) Entries() []string {
	return slices.Sorted(maps.Keys(l.entries))
}

// Len returns the number of distinct entries.
func (l *UpdateLog) Len() int {
	return len(l.entries)
}
