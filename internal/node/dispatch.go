package node

import (
	"slices"

	"peerreserve/internal/message"
	"peerreserve/internal/repair"
	"peerreserve/internal/storage"
)

// handleMessage routes one inbound datagram. It runs on the receive loop, so
// messages are handled in arrival order, one at a time.
func (n *Node) handleMessage(from message.Address, m message.Message) {
	switch msg := m.(type) {
	case message.InventoryUpdate:
		n.handleInventoryUpdate(from, msg)
	case message.LockRequest:
		n.handleLockRequest(from, msg)
	case message.LockResponse:
		n.handleLockResponse(from, msg)
	case message.Reservation:
		n.handleReservation(from, msg)
	case message.Unreserve:
		n.handleUnreserve(from, msg)
	case message.NodeList:
		n.handleNodeList(msg)
	default:
		n.log.Debug().Str("from", from.String()).Str("type", string(m.MessageType())).Msg("ignoring message")
	}
}

func (n *Node) handleInventoryUpdate(from message.Address, msg message.InventoryUpdate) {
	n.mu.Lock()
	res := repair.Merge(n.inventory, n.updates, recordsFromWire(msg.Inventory), msg.Updates)
	n.mu.Unlock()

	n.metrics.MergeAdopted(len(res.Adopted))
	if res.Changed() {
		n.log.Debug().
			Str("from", from.String()).
			Strs("adopted", res.Adopted).
			Int("new_updates", res.Added).
			Msg("merged snapshot")
	}
	n.notifyChanged()
}

// handleReservation records the sender as owner, stamped with the local
// clock. It is applied whatever the current record says.
func (n *Node) handleReservation(from message.Address, msg message.Reservation) {
	n.mu.Lock()
	n.inventory.Set(msg.BookID, &storage.Record{Timestamp: n.clock.Now(), Owner: from})
	n.mu.Unlock()

	if n.promises != nil {
		n.promises.Release(msg.BookID, from)
	}
	n.log.Info().Str("from", from.String()).Str("resource", msg.BookID).Msg("peer reserved resource")
	n.notifyChanged()
}

// handleUnreserve marks the resource available whatever the current record
// says.
func (n *Node) handleUnreserve(from message.Address, msg message.Unreserve) {
	n.mu.Lock()
	n.inventory.Set(msg.BookID, nil)
	n.mu.Unlock()

	if n.promises != nil {
		n.promises.Release(msg.BookID, from)
	}
	n.log.Info().Str("from", from.String()).Str("resource", msg.BookID).Msg("peer released resource")
	n.notifyChanged()
}

// handleNodeList replaces the peer list with the registry's, minus this node
// and duplicates.
func (n *Node) handleNodeList(msg message.NodeList) {
	n.mu.Lock()
	peers := make([]message.Address, 0, len(msg.Nodes))
	for _, addr := range msg.Nodes {
		if addr == n.self || slices.Contains(peers, addr) {
			continue
		}
		peers = append(peers, addr)
	}
	changed := !slices.Equal(peers, n.peers)
	n.peers = peers
	n.mu.Unlock()

	if changed {
		n.log.Info().Int("peers", len(peers)).Msg("peer list updated")
	}
}
