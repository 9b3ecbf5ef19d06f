// Package storage holds a node's local view of the shared resources: the
// inventory of reservation records and the append-only update log.
//
// Neither type is safe for concurrent use; the owning node serializes access.
package storage
