package quorum

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"

	"peerreserve/internal/message"
)

// Result summarizes a finished or abandoned attempt.
type Result struct {
	Resource  string
	Addressed int
	Responses int
	Approvals int
	// Annotations holds the error text peers attached to their reply, by
	// peer address.
	Annotations map[string]string
}

// Unanimous reports whether every addressed peer replied and approved.
// An attempt that addressed nobody is vacuously unanimous.
func (r Result) Unanimous() bool {
	return r.Responses == r.Addressed && r.Approvals == r.Addressed
}

// Rejections returns the number of replies that did not approve.
func (r Result) Rejections() int {
	return r.Responses - r.Approvals
}

// Missing returns the number of addressed peers that never replied.
func (r Result) Missing() int {
	return r.Addressed - r.Responses
}

// Attempt collects lock responses for one resource from a fixed set of peers.
// Only the first reply from each addressed peer counts.
type Attempt struct {
	resource string
	peers    []message.Address
	index    map[message.Address]uint
	started  time.Time

	mu          sync.Mutex
	responded   *bitset.BitSet
	approved    *bitset.BitSet
	annotations map[string]string
	done        chan struct{}
	closed      bool
}

// NewAttempt starts tracking replies for resource from peers. Duplicate
// peers are collapsed.
func NewAttempt(resource string, peers []message.Address) *Attempt {
	a := &Attempt{
		resource:    resource,
		index:       make(map[message.Address]uint, len(peers)),
		started:     time.Now(),
		annotations: make(map[string]string),
		done:        make(chan struct{}),
	}
	for _, p := range peers {
		if _, dup := a.index[p]; dup {
			continue
		}
		a.index[p] = uint(len(a.peers))
		a.peers = append(a.peers, p)
	}
	a.responded = bitset.New(uint(len(a.peers)))
	a.approved = bitset.New(uint(len(a.peers)))
	if len(a.peers) == 0 {
		a.closed = true
		close(a.done)
	}
	return a
}

// Resource returns the resource under negotiation.
func (a *Attempt) Resource() string {
	return a.resource
}

// Peers returns the addressed peers.
func (a *Attempt) Peers() []message.Address {
	out := make([]message.Address, len(a.peers))
	copy(out, a.peers)
	return out
}

// Started returns when the attempt was created.
func (a *Attempt) Started() time.Time {
	return a.started
}

// Record counts a reply. It returns false when the reply is ignored: the
// resource does not match, the sender was not addressed, or the sender
// already replied.
func (a *Attempt) Record(from message.Address, resource string, approved bool, annotation string) bool {
	if resource != a.resource {
		return false
	}
	i, ok := a.index[from]
	if !ok {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.responded.Test(i) {
		return false
	}
	a.responded.Set(i)
	if approved {
		a.approved.Set(i)
	}
	if annotation != "" {
		a.annotations[from.String()] = annotation
	}
	if !a.closed && a.responded.Count() == uint(len(a.peers)) {
		a.closed = true
		close(a.done)
	}
	return true
}

// Await blocks until every peer replied, timeout elapsed, or ctx is done.
// The result reflects the replies seen so far; err is non-nil only when ctx
// ended the wait.
func (a *Attempt) Await(ctx context.Context, timeout time.Duration) (Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-a.done:
	case <-timer.C:
	case <-ctx.Done():
		return a.Result(), ctx.Err()
	}
	return a.Result(), nil
}

// Result returns the current tally.
func (a *Attempt) Result() Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	annotations := make(map[string]string, len(a.annotations))
	for k, v := range a.annotations {
		annotations[k] = v
	}
	return Result{
		Resource:    a.resource,
		Addressed:   len(a.peers),
		Responses:   int(a.responded.Count()),
		Approvals:   int(a.approved.Count()),
		Annotations: annotations,
	}
}
