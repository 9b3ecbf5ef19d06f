package repair

import (
	"slices"

	"peerreserve/internal/clock"
	"peerreserve/internal/storage"
)

// MergeResult describes what a merge changed locally.
type MergeResult struct {
	// Adopted lists the resource ids whose remote record replaced the
	// local one, sorted.
	Adopted []string
	// Added is the number of update log entries that were new.
	Added int
}

// Changed reports whether the merge modified anything.
func (r MergeResult) Changed() bool {
	return len(r.Adopted) > 0 || r.Added > 0
}

// ShouldAdopt reports whether the remote record for a resource replaces the
// local one. known is false when the resource is absent locally.
//
// A remote nil never overwrites a present local record; equal timestamps keep
// the local record.
func ShouldAdopt(local *storage.Record, known bool, remote *storage.Record) bool {
	switch {
	case !known:
		return true
	case local == nil:
		return remote != nil
	case remote == nil:
		return false
	default:
		return local.Timestamp.Compare(remote.Timestamp) == clock.Before
	}
}

// Merge folds a remote snapshot into inv and log.
func Merge(inv *storage.Inventory, log *storage.UpdateLog, remote map[string]*storage.Record, updates []string) MergeResult {
	var res MergeResult
	for id, rec := range remote {
		local, known := inv.Get(id)
		if !ShouldAdopt(local, known, rec) {
			continue
		}
		inv.Set(id, rec)
		res.Adopted = append(res.Adopted, id)
	}
	slices.Sort(res.Adopted)
	res.Added = log.Union(updates)
	return res
}
