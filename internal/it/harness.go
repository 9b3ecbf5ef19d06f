// Package it runs whole clusters in one process for end-to-end tests: a
// discovery registry plus nodes on loopback with ephemeral ports.
package it

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"peerreserve/internal/message"
	"peerreserve/internal/node"
	"peerreserve/internal/registry"
	"peerreserve/internal/storage"
)

// Cluster is a registry and the nodes started against it.
type Cluster struct {
	t        *testing.T
	log      zerolog.Logger
	ctx      context.Context
	Registry *registry.Registry
	Nodes    []*node.Node
}

// NewCluster starts a registry. Everything is stopped in t.Cleanup.
func NewCluster(t *testing.T) *Cluster {
	t.Helper()
	log := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.InfoLevel)

	reg, err := registry.New(log, registry.Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reg.Run(ctx) }()

	c := &Cluster{t: t, log: log, ctx: ctx, Registry: reg}
	t.Cleanup(func() {
		cancel()
		for _, n := range c.Nodes {
			n.Stop()
			n.Wait()
		}
		require.NoError(t, <-done)
	})
	return c
}

// AddNode starts a node with fast gossip and a short lock timeout; opts may
// override any field.
func (c *Cluster) AddNode(opts ...func(*node.Config)) *node.Node {
	c.t.Helper()
	cfg := node.Config{
		ListenAddr:        "127.0.0.1:0",
		Registry:          c.Registry.Addr(),
		Resources:         []string{"Resource-1", "Resource-2", "Resource-3", "Resource-4"},
		GossipMinInterval: 20 * time.Millisecond,
		GossipMaxInterval: 60 * time.Millisecond,
		LockTimeout:       time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	n, err := node.New(c.log, cfg)
	require.NoError(c.t, err)
	require.NoError(c.t, n.Start(c.ctx))
	c.Nodes = append(c.Nodes, n)
	return n
}

// WaitForPeers blocks until every node knows every other node.
func (c *Cluster) WaitForPeers() {
	c.t.Helper()
	require.Eventually(c.t, func() bool {
		for _, n := range c.Nodes {
			if len(n.Peers()) != len(c.Nodes)-1 {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond, "peer lists did not converge")
}

// Owner returns who n believes holds id, or the zero Address.
func Owner(n *node.Node, id string) message.Address {
	for _, e := range n.Inventory() {
		if e.ID == id && e.Record != nil {
			return e.Record.Owner
		}
	}
	return message.Address{}
}

// Record returns n's record for id, nil when available or unknown.
func Record(n *node.Node, id string) *storage.Record {
	for _, e := range n.Inventory() {
		if e.ID == id {
			return e.Record
		}
	}
	return nil
}

// WaitForOwner blocks until every node in nodes reports owner for id.
func (c *Cluster) WaitForOwner(id string, owner message.Address, nodes ...*node.Node) {
	c.t.Helper()
	if len(nodes) == 0 {
		nodes = c.Nodes
	}
	require.Eventually(c.t, func() bool {
		for _, n := range nodes {
			if Owner(n, id) != owner {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond, "owner of %s did not converge to %s", id, owner)
}
