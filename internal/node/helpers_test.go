package node

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"peerreserve/internal/message"
	"peerreserve/internal/transport"
)

type inbound struct {
	from message.Address
	msg  message.Message
}

// fakePeer is a bare endpoint standing in for a registry or another node.
type fakePeer struct {
	ep    *transport.Endpoint
	inbox chan inbound

	mu    sync.Mutex
	reply func(from message.Address, m message.Message) message.Message
}

func newFakePeer(t *testing.T) *fakePeer {
	t.Helper()
	ep, err := transport.Listen(zerolog.New(zerolog.NewTestWriter(t)), "127.0.0.1:0", transport.Config{Component: "fake"})
	require.NoError(t, err)

	p := &fakePeer{ep: ep, inbox: make(chan inbound, 64)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ep.Serve(ctx, func(from message.Address, m message.Message) {
			p.mu.Lock()
			reply := p.reply
			p.mu.Unlock()
			if reply != nil {
				if out := reply(from, m); out != nil {
					_ = ep.Send(from, out)
				}
			}
			p.inbox <- inbound{from: from, msg: m}
		})
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return p
}

func (p *fakePeer) addr() message.Address {
	return p.ep.Addr()
}

func (p *fakePeer) onMessage(f func(from message.Address, m message.Message) message.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reply = f
}

// approveLocks makes the peer answer every lock request with approved.
func (p *fakePeer) approveLocks(approved bool) {
	p.onMessage(func(_ message.Address, m message.Message) message.Message {
		if req, ok := m.(message.LockRequest); ok {
			return message.LockResponse{BookID: req.BookID, Approved: approved}
		}
		return nil
	})
}

// expect returns the next message of type typ, skipping others.
func (p *fakePeer) expect(t *testing.T, typ message.Type) inbound {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case in := <-p.inbox:
			if in.msg.MessageType() == typ {
				return in
			}
		case <-deadline:
			t.Fatalf("%s: no %s received", p.addr(), typ)
			return inbound{}
		}
	}
}

type recordingObserver struct {
	mu      sync.Mutex
	changed int
	errors  []string
}

func (o *recordingObserver) OnInventoryChanged() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changed++
}

func (o *recordingObserver) OnError(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, msg)
}

func (o *recordingObserver) changes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.changed
}

func (o *recordingObserver) errs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.errors...)
}

type testNode struct {
	*Node
	registry *fakePeer
	observer *recordingObserver
}

func startNode(t *testing.T, opts ...func(*Config)) *testNode {
	t.Helper()
	registry := newFakePeer(t)
	observer := &recordingObserver{}
	cfg := Config{
		ListenAddr:        "127.0.0.1:0",
		Registry:          registry.addr(),
		Resources:         []string{"Resource-1", "Resource-2"},
		GossipMinInterval: time.Hour,
		GossipMaxInterval: time.Hour,
		LockTimeout:       300 * time.Millisecond,
		Observer:          observer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	n, err := New(zerolog.New(zerolog.NewTestWriter(t)), cfg)
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() {
		n.Stop()
		n.Wait()
	})
	return &testNode{Node: n, registry: registry, observer: observer}
}

// setPeers has the fake registry push a node list and waits for it to land.
func (tn *testNode) setPeers(t *testing.T, peers ...message.Address) {
	t.Helper()
	nodes := append([]message.Address{tn.Addr()}, peers...)
	require.NoError(t, tn.registry.ep.Send(tn.Addr(), message.NodeList{Nodes: nodes}))
	require.Eventually(t, func() bool {
		return slices.Equal(peers, tn.Peers())
	}, 2*time.Second, 5*time.Millisecond)
}

func (tn *testNode) record(id string) *recordView {
	for _, e := range tn.Inventory() {
		if e.ID == id {
			if e.Record == nil {
				return &recordView{known: true}
			}
			return &recordView{known: true, reserved: true, owner: e.Record.Owner}
		}
	}
	return &recordView{}
}

type recordView struct {
	known    bool
	reserved bool
	owner    message.Address
}
