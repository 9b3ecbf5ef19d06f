package gossip

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerreserve/internal/message"
)

type staticSource struct {
	peers  []message.Address
	update message.InventoryUpdate
}

func (s staticSource) GossipSnapshot() ([]message.Address, message.InventoryUpdate) {
	return s.peers, s.update
}

type sent struct {
	to   message.Address
	typ  message.Type
	data []byte
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recordingSender) SendEncoded(to message.Address, typ message.Type, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{to: to, typ: typ, data: data})
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func testPeers(n int) []message.Address {
	out := make([]message.Address, n)
	for i := range out {
		out[i] = message.Address{Host: "127.0.0.1", Port: 7000 + i}
	}
	return out
}

func TestRoundWithoutPeersSendsNothing(t *testing.T) {
	s := &recordingSender{}
	d := NewDisseminator(zerolog.New(zerolog.NewTestWriter(t)), staticSource{}, s, Config{})

	assert.False(t, d.Round())
	assert.Zero(t, s.count())
}

func TestRoundPushesSnapshotToOnePeer(t *testing.T) {
	owner := message.Address{Host: "127.0.0.1", Port: 9000}
	src := staticSource{
		peers: testPeers(3),
		update: message.InventoryUpdate{
			Inventory: map[string]*message.Record{"Resource-1": {Timestamp: 5, Owner: owner}, "Resource-2": nil},
			Updates:   []string{"Reserved Resource-1"},
		},
	}
	s := &recordingSender{}
	d := NewDisseminator(zerolog.New(zerolog.NewTestWriter(t)), src, s, Config{Rand: rand.New(rand.NewPCG(1, 1))})

	require.True(t, d.Round())
	require.Equal(t, 1, s.count())
	assert.Contains(t, src.peers, s.sent[0].to)
	assert.Equal(t, message.TypeInventoryUpdate, s.sent[0].typ)

	got, err := message.Decode(s.sent[0].data)
	require.NoError(t, err)
	assert.Equal(t, src.update, got)
}

func TestRoundPicksEveryPeerEventually(t *testing.T) {
	src := staticSource{peers: testPeers(4), update: message.InventoryUpdate{}}
	s := &recordingSender{}
	d := NewDisseminator(zerolog.New(zerolog.NewTestWriter(t)), src, s, Config{Rand: rand.New(rand.NewPCG(7, 7))})

	for i := 0; i < 200; i++ {
		d.Round()
	}
	seen := map[message.Address]bool{}
	for _, m := range s.sent {
		seen[m.to] = true
	}
	assert.Len(t, seen, 4)
}

func TestNextDelayWithinBounds(t *testing.T) {
	d := NewDisseminator(zerolog.Nop(), staticSource{}, &recordingSender{}, Config{
		MinInterval: 10 * time.Millisecond,
		MaxInterval: 20 * time.Millisecond,
		Rand:        rand.New(rand.NewPCG(3, 3)),
	})
	for i := 0; i < 1000; i++ {
		delay := d.nextDelay()
		assert.GreaterOrEqual(t, delay, 10*time.Millisecond)
		assert.LessOrEqual(t, delay, 20*time.Millisecond)
	}
}

func TestDefaults(t *testing.T) {
	d := NewDisseminator(zerolog.Nop(), staticSource{}, &recordingSender{}, Config{})
	assert.Equal(t, DefaultMinInterval, d.min)
	assert.Equal(t, DefaultMaxInterval, d.max)
}

func TestRunStopsOnCancel(t *testing.T) {
	src := staticSource{peers: testPeers(1), update: message.InventoryUpdate{}}
	s := &recordingSender{}
	d := NewDisseminator(zerolog.New(zerolog.NewTestWriter(t)), src, s, Config{
		MinInterval: time.Millisecond,
		MaxInterval: 2 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()

	assert.Eventually(t, func() bool { return s.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
