// Package repair merges a peer's inventory snapshot into the local one.
// A record wins when it is newer by timestamp, so repeated or reordered
// snapshots converge to the same state on every node.
package repair
