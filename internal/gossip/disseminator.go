package gossip

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"peerreserve/internal/message"
	"peerreserve/internal/telemetry"
)

const (
	DefaultMinInterval = 1 * time.Second
	DefaultMaxInterval = 15 * time.Second
)

// Source provides the peers to pick from and the snapshot to push.
type Source interface {
	GossipSnapshot() ([]message.Address, message.InventoryUpdate)
}

// Sender delivers an encoded datagram.
type Sender interface {
	SendEncoded(to message.Address, typ message.Type, data []byte) error
}

// Config configures a Disseminator. Zero intervals fall back to the defaults.
type Config struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	// Rand drives the delay and peer choice. Nil uses a randomly seeded source.
	Rand    *rand.Rand
	Metrics *telemetry.Metrics
}

// Disseminator runs the push gossip loop for one node.
type Disseminator struct {
	src     Source
	sender  Sender
	log     zerolog.Logger
	metrics *telemetry.Metrics
	min     time.Duration
	max     time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewDisseminator creates a disseminator that pushes src's snapshot through sender.
func NewDisseminator(log zerolog.Logger, src Source, sender Sender, cfg Config) *Disseminator {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultMaxInterval
	}
	if cfg.MaxInterval < cfg.MinInterval {
		cfg.MaxInterval = cfg.MinInterval
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Disseminator{
		src:     src,
		sender:  sender,
		log:     log.With().Str("component", "gossip").Logger(),
		metrics: cfg.Metrics,
		min:     cfg.MinInterval,
		max:     cfg.MaxInterval,
		rng:     cfg.Rand,
	}
}

// Run pushes one snapshot per random delay until ctx is done.
func (d *Disseminator) Run(ctx context.Context) {
	timer := time.NewTimer(d.nextDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			d.Round()
			timer.Reset(d.nextDelay())
		}
	}
}

// Round pushes the current snapshot to one random peer. It reports whether a
// datagram was sent.
func (d *Disseminator) Round() bool {
	peers, update := d.src.GossipSnapshot()
	if len(peers) == 0 {
		return false
	}
	target := peers[d.intN(len(peers))]

	data, dropped, err := message.FitInventoryUpdate(update, message.MaxDatagramSize)
	if err != nil {
		d.log.Error().Err(err).Int("resources", len(update.Inventory)).Msg("snapshot does not fit in a datagram")
		return false
	}
	if dropped > 0 {
		d.log.Debug().Int("dropped", dropped).Msg("trimmed update log to fit datagram")
	}

	if err := d.sender.SendEncoded(target, message.TypeInventoryUpdate, data); err != nil {
		d.log.Debug().Err(err).Str("peer", target.String()).Msg("gossip push failed")
		return false
	}
	d.metrics.GossipRound()
	d.log.Debug().Str("peer", target.String()).Msg("pushed snapshot")
	return true
}

// nextDelay is uniform in [min, max].
func (d *Disseminator) nextDelay() time.Duration {
	span := int64(d.max - d.min)
	if span <= 0 {
		return d.min
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.min + time.Duration(d.rng.Int64N(span+1))
}

func (d *Disseminator) intN(n int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.IntN(n)
}
