package message

import (
	"encoding/json"
	"fmt"

	"peerreserve/internal/clock"
)

// Type is the value of a datagram's "type" field.
type Type string

const (
	TypeJoin            Type = "join"
	TypeGetNodes        Type = "get_nodes"
	TypeNodeList        Type = "node_list"
	TypeInventoryUpdate Type = "inventory_update"
	TypeLockRequest     Type = "lock_request"
	TypeLockResponse    Type = "lock_response"
	TypeReservation     Type = "reservation"
	TypeUnreserve       Type = "unreserve"
)

// Message is implemented by every protocol message.
type Message interface {
	MessageType() Type
}

// Join registers the sender with the discovery registry.
type Join struct{}

// GetNodes asks the registry to push its peer list to every registered peer.
type GetNodes struct{}

// NodeList is the registry's full peer list, in join order.
type NodeList struct {
	Nodes []Address `json:"nodes"`
}

// InventoryUpdate is the gossip payload: a full inventory snapshot plus the
// sender's update log. A nil record means the resource is available.
type InventoryUpdate struct {
	Inventory map[string]*Record `json:"inventory"`
	Updates   []string           `json:"updates"`
}

// LockRequest asks a peer to approve reserving BookID.
type LockRequest struct {
	BookID string `json:"book_id"`
}

// LockResponse answers a LockRequest. Error is set when BookID is unknown.
type LockResponse struct {
	BookID   string `json:"book_id"`
	Approved bool   `json:"approved"`
	Error    string `json:"error,omitempty"`
}

// Reservation tells peers the sender now owns BookID.
type Reservation struct {
	BookID string `json:"book_id"`
}

// Unreserve tells peers BookID is available again.
type Unreserve struct {
	BookID string `json:"book_id"`
}

func (Join) MessageType() Type            { return TypeJoin }
func (GetNodes) MessageType() Type        { return TypeGetNodes }
func (NodeList) MessageType() Type        { return TypeNodeList }
func (InventoryUpdate) MessageType() Type { return TypeInventoryUpdate }
func (LockRequest) MessageType() Type     { return TypeLockRequest }
func (LockResponse) MessageType() Type    { return TypeLockResponse }
func (Reservation) MessageType() Type     { return TypeReservation }
func (Unreserve) MessageType() Type       { return TypeUnreserve }

// Record is the wire form of a reserved resource: [timestamp, "host:port"].
type Record struct {
	Timestamp clock.Timestamp
	Owner     Address
}

// MarshalJSON encodes the record as a [timestamp, owner] pair.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{float64(r.Timestamp), r.Owner.String()})
}

// UnmarshalJSON decodes a [timestamp, owner] pair.
func (r *Record) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("record must be a [timestamp, owner] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("record must be a [timestamp, owner] pair, got %d elements", len(pair))
	}
	var ts float64
	if err := json.Unmarshal(pair[0], &ts); err != nil {
		return fmt.Errorf("record timestamp: %w", err)
	}
	var owner string
	if err := json.Unmarshal(pair[1], &owner); err != nil {
		return fmt.Errorf("record owner: %w", err)
	}
	addr, err := ParseAddress(owner)
	if err != nil {
		return fmt.Errorf("record owner: %w", err)
	}
	r.Timestamp, r.Owner = clock.Timestamp(ts), addr
	return nil
}
