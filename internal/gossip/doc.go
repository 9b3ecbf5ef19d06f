// Package gossip spreads a node's state by periodic push: after a random
// delay the node picks one known peer at random and sends it a full snapshot
// of its inventory and update log.
//
// Limitations:
// - No acknowledgements or retries; a lost round is repaired by later ones
// - Full-state payloads, trimmed only when they exceed a datagram
// - Unreachable peers keep being selected
package gossip
