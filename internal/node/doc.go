// Package node is a peer in the reservation network. A Node keeps the local
// inventory, update log and peer list, answers lock requests, merges gossip
// from other peers and negotiates reservations of its own.
package node
