package quorum

import (
	"sync"
	"time"

	"peerreserve/internal/clock"
	"peerreserve/internal/message"
)

type promise struct {
	holder   message.Address
	deadline clock.Timestamp
}

// Promises records which requester a node approved for each resource until a
// deadline. A live promise blocks approvals to anyone else.
type Promises struct {
	mu   sync.Mutex
	ttl  time.Duration
	byID map[string]promise
}

// NewPromises returns an empty table whose promises last ttl.
func NewPromises(ttl time.Duration) *Promises {
	return &Promises{ttl: ttl, byID: make(map[string]promise)}
}

// Grant promises resource to requester unless a live promise to another node
// exists. Granting again to the same holder extends the deadline.
func (p *Promises) Grant(resource string, requester message.Address, now clock.Timestamp) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, ok := p.byID[resource]; ok && cur.holder != requester && now < cur.deadline {
		return false
	}
	p.byID[resource] = promise{holder: requester, deadline: now.Add(p.ttl)}
	return true
}

// Holder returns the holder of a live promise for resource.
func (p *Promises) Holder(resource string, now clock.Timestamp) (message.Address, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, ok := p.byID[resource]
	if !ok {
		return message.Address{}, false
	}
	if now >= cur.deadline {
		delete(p.byID, resource)
		return message.Address{}, false
	}
	return cur.holder, true
}

// Release drops the promise for resource if holder holds it.
func (p *Promises) Release(resource string, holder message.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, ok := p.byID[resource]; ok && cur.holder == holder {
		delete(p.byID, resource)
	}
}
