// Package quorum tracks the replies to one lock negotiation and decides
// whether it reached unanimous approval. It also keeps the promises a node
// hands out when it approves a lock request in promise mode.
package quorum
