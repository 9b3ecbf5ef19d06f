package node

import (
	"errors"
	"fmt"

	"peerreserve/internal/message"
)

// ErrNotRunning is returned by operations that need the network before
// Start or after Stop.
var ErrNotRunning = errors.New("node is not running")

// ErrStopped is returned by Start on a node that was already stopped.
var ErrStopped = errors.New("node has been stopped")

// UnknownResourceError reports a resource id outside the local inventory.
type UnknownResourceError struct {
	ID string
}

func (e UnknownResourceError) Error() string {
	return fmt.Sprintf("resource %s does not exist in the inventory", e.ID)
}

// NotOwnerError reports an unreserve of a resource this node does not hold.
// Owner is zero when the resource is available.
type NotOwnerError struct {
	ID    string
	Owner message.Address
}

func (e NotOwnerError) Error() string {
	if e.Owner.IsZero() {
		return fmt.Sprintf("cannot unreserve %s: it is not reserved", e.ID)
	}
	return fmt.Sprintf("cannot unreserve %s: it is reserved by %s", e.ID, e.Owner)
}

// LockTimeoutError reports a reservation attempt that did not collect an
// approval from every addressed peer before the deadline.
type LockTimeoutError struct {
	ID         string
	Addressed  int
	Responses  int
	Rejections int
}

func (e LockTimeoutError) Error() string {
	return fmt.Sprintf("could not reserve %s: %d of %d peers approved (%d rejected, %d did not answer)",
		e.ID, e.Responses-e.Rejections, e.Addressed, e.Rejections, e.Addressed-e.Responses)
}

// PromisedError reports a reservation refused locally because this node
// already promised the resource to another peer.
type PromisedError struct {
	ID     string
	Holder message.Address
}

func (e PromisedError) Error() string {
	return fmt.Sprintf("could not reserve %s: lock promised to %s", e.ID, e.Holder)
}
