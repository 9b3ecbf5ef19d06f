package node

import (
	"peerreserve/internal/message"
	"peerreserve/internal/storage"
)

// recordsToWire converts local records to their wire form.
func recordsToWire(in map[string]*storage.Record) map[string]*message.Record {
	out := make(map[string]*message.Record, len(in))
	for id, r := range in {
		if r == nil {
			out[id] = nil
			continue
		}
		out[id] = &message.Record{Timestamp: r.Timestamp, Owner: r.Owner}
	}
	return out
}

// recordsFromWire converts wire records to local records.
func recordsFromWire(in map[string]*message.Record) map[string]*storage.Record {
	out := make(map[string]*storage.Record, len(in))
	for id, r := range in {
		if r == nil {
			out[id] = nil
			continue
		}
		out[id] = &storage.Record{Timestamp: r.Timestamp, Owner: r.Owner}
	}
	return out
}
