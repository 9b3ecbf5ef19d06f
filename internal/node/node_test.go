package node

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerreserve/internal/message"
)

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(zerolog.Nop(), Config{LockMode: "pessimistic", LockTimeout: -1})
	require.Error(t, err)
	for _, want := range []string{
		"listen address is required",
		"registry address is required",
		"at least one resource is required",
		"lock timeout -1ns is negative",
		`unknown lock mode "pessimistic"`,
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	n, err := New(zerolog.Nop(), Config{
		ListenAddr: "127.0.0.1:0",
		Registry:   message.Address{Host: "127.0.0.1", Port: 4000},
		Resources:  []string{"Resource-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultLockTimeout, n.cfg.LockTimeout)
	assert.Equal(t, LockOptimistic, n.LockMode())
	assert.Nil(t, n.promises)
	assert.True(t, n.Addr().IsZero())
}

func TestNotRunning(t *testing.T) {
	t.Run("never started", func(t *testing.T) {
		n, err := New(zerolog.Nop(), Config{
			ListenAddr: "127.0.0.1:0",
			Registry:   message.Address{Host: "127.0.0.1", Port: 4000},
			Resources:  []string{"Resource-1"},
		})
		require.NoError(t, err)

		assert.ErrorIs(t, n.Reserve(context.Background(), "Resource-1"), ErrNotRunning)
		assert.ErrorIs(t, n.Unreserve(context.Background(), "Resource-1"), ErrNotRunning)
		assert.ErrorIs(t, n.RefreshPeers(), ErrNotRunning)
	})

	t.Run("stopped", func(t *testing.T) {
		tn := startNode(t)
		tn.Stop()
		tn.Wait()

		assert.ErrorIs(t, tn.Reserve(context.Background(), "Resource-1"), ErrNotRunning)
		assert.False(t, tn.record("Resource-1").reserved)
		assert.Empty(t, tn.Updates())
		assert.ErrorIs(t, tn.Unreserve(context.Background(), "Resource-1"), ErrNotRunning)
		assert.ErrorIs(t, tn.RefreshPeers(), ErrNotRunning)
		assert.ErrorIs(t, tn.Start(context.Background()), ErrStopped)
		assert.Zero(t, tn.observer.changes())
		assert.Equal(t, []string{ErrNotRunning.Error(), ErrNotRunning.Error()}, tn.observer.errs())
	})
}

func TestStopAbortsReservationInFlight(t *testing.T) {
	tn := startNode(t, func(c *Config) { c.LockTimeout = time.Minute })
	silent := newFakePeer(t)
	tn.setPeers(t, silent.addr())

	errc := make(chan error, 1)
	go func() { errc <- tn.Reserve(context.Background(), "Resource-1") }()
	silent.expect(t, message.TypeLockRequest)
	tn.Stop()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrNotRunning)
	case <-time.After(2 * time.Second):
		t.Fatal("reserve did not return after Stop")
	}
	assert.False(t, tn.record("Resource-1").reserved)
	assert.Empty(t, tn.Updates())
}

func TestStartJoinsThenRequestsNodes(t *testing.T) {
	tn := startNode(t)

	join := tn.registry.expect(t, message.TypeJoin)
	assert.Equal(t, tn.Addr(), join.from)
	tn.registry.expect(t, message.TypeGetNodes)

	require.NoError(t, tn.RefreshPeers())
	tn.registry.expect(t, message.TypeGetNodes)
}

func TestStartTwice(t *testing.T) {
	tn := startNode(t)
	assert.Error(t, tn.Start(context.Background()))
}

func TestInitialInventoryAllAvailable(t *testing.T) {
	tn := startNode(t)

	entries := tn.Inventory()
	require.Len(t, entries, 2)
	assert.Equal(t, "Resource-1", entries[0].ID)
	assert.Equal(t, "Resource-2", entries[1].ID)
	for _, e := range entries {
		assert.Nil(t, e.Record)
	}
	assert.Empty(t, tn.Updates())
	assert.Empty(t, tn.Peers())
}

func TestGossipSnapshot(t *testing.T) {
	tn := startNode(t)
	peer := newFakePeer(t)
	tn.setPeers(t, peer.addr())
	require.NoError(t, tn.Reserve(context.Background(), "Resource-1"))

	peers, update := tn.GossipSnapshot()
	assert.Equal(t, []message.Address{peer.addr()}, peers)
	require.Contains(t, update.Inventory, "Resource-1")
	require.NotNil(t, update.Inventory["Resource-1"])
	assert.Equal(t, tn.Addr(), update.Inventory["Resource-1"].Owner)
	assert.Nil(t, update.Inventory["Resource-2"])
	assert.Equal(t, []string{"Reserved Resource-1"}, update.Updates)
}
