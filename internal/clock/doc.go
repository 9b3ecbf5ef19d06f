// Package clock provides wall-clock timestamps for resource records.
// Records are stamped by the committing node's local clock; there is no
// logical clock, so ordering across nodes assumes roughly synchronized clocks.
package clock
