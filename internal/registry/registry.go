// Package registry implements the discovery rendezvous point. Peers send
// "join" once and "get_nodes" whenever they want a fresh peer list; every
// such message makes the registry push the whole list to everyone it knows.
package registry

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"peerreserve/internal/message"
	"peerreserve/internal/telemetry"
	"peerreserve/internal/transport"
)

const component = "registry"

// Config configures a Registry.
type Config struct {
	ListenAddr string
	Metrics    *telemetry.Metrics
}

// Registry records joined peers in join order. Duplicate joins are kept and
// peers are never removed.
type Registry struct {
	ep      *transport.Endpoint
	log     zerolog.Logger
	metrics *telemetry.Metrics

	// nodes is written only by the receive loop; mu lets Nodes read it
	// from other goroutines.
	mu    sync.RWMutex
	nodes []message.Address
}

// New binds the registry endpoint.
func New(log zerolog.Logger, cfg Config) (*Registry, error) {
	ep, err := transport.Listen(log, cfg.ListenAddr, transport.Config{Component: component, Metrics: cfg.Metrics})
	if err != nil {
		return nil, err
	}
	return &Registry{
		ep:      ep,
		log:     log.With().Str("component", component).Logger(),
		metrics: cfg.Metrics,
	}, nil
}

// Addr returns the bound address.
func (r *Registry) Addr() message.Address {
	return r.ep.Addr()
}

// Run serves until ctx is done. Messages are handled one at a time.
func (r *Registry) Run(ctx context.Context) error {
	r.log.Info().Str("addr", r.Addr().String()).Msg("discovery registry started")
	return r.ep.Serve(ctx, r.handle)
}

// Close releases the endpoint.
func (r *Registry) Close() error {
	return r.ep.Close()
}

func (r *Registry) handle(from message.Address, m message.Message) {
	switch m.(type) {
	case message.Join:
		r.Join(from)
	case message.GetNodes:
		r.GetNodes(from)
	default:
		r.log.Debug().Str("from", from.String()).Str("type", string(m.MessageType())).Msg("ignoring message")
	}
}

// Join appends addr and pushes the updated list to every registered peer.
func (r *Registry) Join(addr message.Address) {
	r.mu.Lock()
	r.nodes = append(r.nodes, addr)
	size := len(r.nodes)
	r.mu.Unlock()

	r.metrics.SetRegistrySize(size)
	r.log.Info().Str("node", addr.String()).Int("nodes", size).Msg("node joined")
	r.pushNodeList()
}

// GetNodes pushes the list to every registered peer, not only to the
// requester. An unregistered requester receives nothing.
func (r *Registry) GetNodes(from message.Address) {
	r.log.Debug().Str("from", from.String()).Msg("node list requested")
	r.pushNodeList()
}

// Nodes returns a copy of the registered addresses in join order.
func (r *Registry) Nodes() []message.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]message.Address, len(r.nodes))
	copy(out, r.nodes)
	return out
}

func (r *Registry) pushNodeList() {
	nodes := r.Nodes()
	if err := r.ep.Broadcast(nodes, message.NodeList{Nodes: nodes}); err != nil {
		r.log.Warn().Err(err).Msg("failed to push node list")
	}
}
