package node

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hashicorp/go-uuid"

	"peerreserve/internal/message"
	"peerreserve/internal/quorum"
	"peerreserve/internal/storage"
	"peerreserve/internal/telemetry"
)

// errResourceNotFound is the annotation sent with a rejection for an unknown id.
const errResourceNotFound = "resource not found"

func reservedEntry(id string) string   { return "Reserved " + id }
func unreservedEntry(id string) string { return "Unreserved " + id }

// Reserve negotiates exclusive ownership of id with every current peer and,
// once all of them approve, records this node as owner and tells the peers.
// With no peers the reservation succeeds at once. Failures are returned and
// reported to the observer; nothing is retried.
func (n *Node) Reserve(ctx context.Context, id string) error {
	n.attemptMu.Lock()
	defer n.attemptMu.Unlock()

	attemptID, err := uuid.GenerateUUID()
	if err != nil {
		err = fmt.Errorf("failed to generate attempt id: %w", err)
		n.notifyError(err)
		return err
	}
	log := n.log.With().Str("attempt_id", attemptID).Str("resource", id).Logger()

	n.mu.Lock()
	ep, self, life := n.ep, n.self, n.life
	if ep == nil {
		n.mu.Unlock()
		n.notifyError(ErrNotRunning)
		return ErrNotRunning
	}
	if !n.inventory.Has(id) {
		n.mu.Unlock()
		err := UnknownResourceError{ID: id}
		n.notifyError(err)
		return err
	}
	if n.promises != nil {
		if holder, ok := n.promises.Holder(id, n.clock.Now()); ok && holder != self {
			n.mu.Unlock()
			n.metrics.LockAttempt(telemetry.OutcomePromised, 0)
			err := PromisedError{ID: id, Holder: holder}
			log.Warn().Str("holder", holder.String()).Msg("reservation refused, lock promised to a peer")
			n.notifyError(err)
			return err
		}
	}
	attempt := quorum.NewAttempt(id, n.peers)
	n.pending = attempt
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		if n.pending == attempt {
			n.pending = nil
		}
		n.mu.Unlock()
	}()

	peers := attempt.Peers()
	log.Debug().Int("peers", len(peers)).Msg("requesting lock")
	if err := ep.Broadcast(peers, message.LockRequest{BookID: id}); err != nil {
		// Peers that were not reached count as missing responses.
		log.Warn().Err(err).Msg("failed to send some lock requests")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(life, cancel)()

	res, err := attempt.Await(ctx, n.cfg.LockTimeout)
	wait := time.Since(attempt.Started())
	if err != nil {
		n.metrics.LockAttempt(telemetry.OutcomeCancelled, wait)
		if life.Err() != nil {
			err = ErrNotRunning
		} else {
			err = fmt.Errorf("reserve %s: %w", id, err)
		}
		log.Info().Err(err).Msg("reservation abandoned")
		n.notifyError(err)
		return err
	}
	if !res.Unanimous() {
		outcome := telemetry.OutcomeTimeout
		if res.Rejections() > 0 {
			outcome = telemetry.OutcomeRejected
		}
		n.metrics.LockAttempt(outcome, wait)

		lockErr := LockTimeoutError{
			ID:         id,
			Addressed:  res.Addressed,
			Responses:  res.Responses,
			Rejections: res.Rejections(),
		}
		log.Warn().
			Int("addressed", res.Addressed).
			Int("responses", res.Responses).
			Int("approvals", res.Approvals).
			Int("missing", res.Missing()).
			Interface("annotations", res.Annotations).
			Msg("reservation failed")
		n.notifyError(lockErr)
		return lockErr
	}

	n.mu.Lock()
	if n.ep == nil {
		n.mu.Unlock()
		n.metrics.LockAttempt(telemetry.OutcomeCancelled, wait)
		n.notifyError(ErrNotRunning)
		return ErrNotRunning
	}
	n.inventory.Set(id, &storage.Record{Timestamp: n.clock.Now(), Owner: self})
	n.updates.Append(reservedEntry(id))
	peers = slices.Clone(n.peers)
	n.mu.Unlock()

	n.metrics.LockAttempt(telemetry.OutcomeConfirmed, wait)
	log.Info().Dur("wait", wait).Msg("reservation confirmed")

	if err := ep.Broadcast(peers, message.Reservation{BookID: id}); err != nil {
		log.Warn().Err(err).Msg("failed to notify some peers of reservation")
	}
	n.notifyChanged()
	return nil
}

// Unreserve releases id if this node owns it and tells every peer.
func (n *Node) Unreserve(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("unreserve %s: %w", id, err)
		n.notifyError(err)
		return err
	}

	n.mu.Lock()
	ep, self := n.ep, n.self
	if ep == nil {
		n.mu.Unlock()
		n.notifyError(ErrNotRunning)
		return ErrNotRunning
	}
	rec, ok := n.inventory.Get(id)
	if !ok {
		n.mu.Unlock()
		err := UnknownResourceError{ID: id}
		n.notifyError(err)
		return err
	}
	if !rec.OwnedBy(self) {
		n.mu.Unlock()
		err := NotOwnerError{ID: id}
		if rec != nil {
			err.Owner = rec.Owner
		}
		n.notifyError(err)
		return err
	}
	n.inventory.Set(id, nil)
	n.updates.Append(unreservedEntry(id))
	peers := slices.Clone(n.peers)
	n.mu.Unlock()

	n.log.Info().Str("resource", id).Msg("reservation released")
	if err := ep.Broadcast(peers, message.Unreserve{BookID: id}); err != nil {
		n.log.Warn().Err(err).Str("resource", id).Msg("failed to notify some peers of release")
	}
	n.notifyChanged()
	return nil
}

// handleLockRequest approves iff the resource is known and available at
// the time of the reply. In promise mode the approval is also a promise.
func (n *Node) handleLockRequest(from message.Address, req message.LockRequest) {
	n.mu.Lock()
	ep := n.ep
	if ep == nil {
		n.mu.Unlock()
		return
	}
	rec, known := n.inventory.Get(req.BookID)
	resp := message.LockResponse{BookID: req.BookID}
	switch {
	case !known:
		resp.Error = errResourceNotFound
	case rec != nil:
	case n.promises != nil:
		resp.Approved = n.promiseLocked(from, req.BookID)
	default:
		resp.Approved = true
	}
	n.mu.Unlock()

	n.log.Debug().
		Str("from", from.String()).
		Str("resource", req.BookID).
		Bool("approved", resp.Approved).
		Msg("answering lock request")
	if err := ep.Send(from, resp); err != nil {
		n.log.Warn().Err(err).Str("to", from.String()).Msg("failed to send lock response")
	}
}

// promiseLocked decides a promise-mode approval. A live promise to someone
// else wins; a concurrent local attempt on the same resource wins against
// requesters whose address sorts after ours. n.mu must be held.
func (n *Node) promiseLocked(from message.Address, id string) bool {
	now := n.clock.Now()
	if holder, ok := n.promises.Holder(id, now); ok && holder != from {
		return false
	}
	if p := n.pending; p != nil && p.Resource() == id && from.String() > n.self.String() {
		return false
	}
	return n.promises.Grant(id, from, now)
}

// handleLockResponse counts the reply toward the attempt in flight. Replies
// for another resource, from peers that were not asked, or with no attempt
// in flight are dropped.
func (n *Node) handleLockResponse(from message.Address, resp message.LockResponse) {
	n.mu.Lock()
	attempt := n.pending
	n.mu.Unlock()

	if attempt == nil || !attempt.Record(from, resp.BookID, resp.Approved, resp.Error) {
		n.log.Debug().Str("from", from.String()).Str("resource", resp.BookID).Msg("dropping stray lock response")
	}
}
