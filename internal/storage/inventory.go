package storage

import (
	"maps"
	"slices"

	"peerreserve/internal/clock"
	"peerreserve/internal/message"
)

// Record marks a resource as reserved by Owner at Timestamp.
type Record struct {
	Timestamp clock.Timestamp
	Owner     message.Address
}

// Clone returns a copy of r, or nil if r is nil.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// OwnedBy reports whether r is held by addr. A nil record is owned by nobody.
func (r *Record) OwnedBy(addr message.Address) bool {
	return r != nil && r.Owner == addr
}

// Entry is one resource and its record, nil when available.
type Entry struct {
	ID     string
	Record *Record
}

// Inventory maps resource IDs to their reservation record. A present ID with
// a nil record is available.
type Inventory struct {
	records map[string]*Record
}

// NewInventory returns an inventory with every id available.
func NewInventory(ids []string) *Inventory {
	inv := &Inventory{records: make(map[string]*Record, len(ids))}
	for _, id := range ids {
		inv.records[id] = nil
	}
	return inv
}

// Has reports whether id is known.
func (inv *Inventory) Has(id string) bool {
	_, ok := inv.records[id]
	return ok
}

// Get returns a copy of id's record. ok is false for unknown ids; a known but
// available id returns (nil, true).
func (inv *Inventory) Get(id string) (rec *Record, ok bool) {
	r, ok := inv.records[id]
	return r.Clone(), ok
}

// Set stores a copy of rec for id, adding id if it is not yet known.
// A nil rec marks id available.
func (inv *Inventory) Set(id string, rec *Record) {
	inv.records[id] = rec.Clone()
}

// IDs returns the known resource ids in sorted order.
func (inv *Inventory) IDs() []string {
	return slices.Sorted(maps.Keys(inv.records))
}

// Len returns the number of known resources.
func (inv *Inventory) Len() int {
	return len(inv.records)
}

// Entries returns every resource with a copy of its record, sorted by id.
func (inv *Inventory) Entries() []Entry {
	ids := inv.IDs()
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, Entry{ID: id, Record: inv.records[id].Clone()})
	}
	return out
}

// Snapshot returns a deep copy of the records.
func (inv *Inventory) Snapshot() map[string]*Record {
	out := make(map[string]*Record, len(inv.records))
	for id, r := range inv.records {
		out[id] = r.Clone()
	}
	return out
}
