package node

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"peerreserve/internal/clock"
	"peerreserve/internal/gossip"
	"peerreserve/internal/message"
	"peerreserve/internal/quorum"
	"peerreserve/internal/storage"
	"peerreserve/internal/telemetry"
	"peerreserve/internal/transport"
)

const component = "node"

// DefaultLockTimeout bounds the wait for lock responses.
const DefaultLockTimeout = 5 * time.Second

// LockMode selects how a node answers lock requests.
type LockMode string

const (
	// LockOptimistic approves any request for an available resource. Two
	// overlapping requesters can both win.
	LockOptimistic LockMode = "optimistic"
	// LockPromise additionally promises the resource to the first approved
	// requester for a while and rejects everyone else meanwhile.
	LockPromise LockMode = "promise"
)

// Config configures a Node.
type Config struct {
	// ListenAddr is the UDP address to bind, e.g. "0.0.0.0:5005" or
	// "127.0.0.1:0".
	ListenAddr string
	// Advertise is the address peers know this node by. Zero uses the bound
	// address.
	Advertise message.Address
	// Registry is the discovery registry address.
	Registry message.Address
	// Resources is the fixed catalog.
	Resources []string

	GossipMinInterval time.Duration
	GossipMaxInterval time.Duration
	LockTimeout       time.Duration
	LockMode          LockMode

	Clock    clock.Clock
	Metrics  *telemetry.Metrics
	Observer Observer
}

func (c *Config) validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.Registry.IsZero() {
		errs = append(errs, errors.New("registry address is required"))
	}
	if len(c.Resources) == 0 {
		errs = append(errs, errors.New("at least one resource is required"))
	}
	if c.LockTimeout < 0 {
		errs = append(errs, fmt.Errorf("lock timeout %s is negative", c.LockTimeout))
	}
	if c.GossipMinInterval < 0 || c.GossipMaxInterval < 0 {
		errs = append(errs, errors.New("gossip intervals must not be negative"))
	}
	if c.GossipMaxInterval > 0 && c.GossipMaxInterval < c.GossipMinInterval {
		errs = append(errs, fmt.Errorf("gossip max interval %s is below min interval %s", c.GossipMaxInterval, c.GossipMinInterval))
	}
	switch c.LockMode {
	case "", LockOptimistic, LockPromise:
	default:
		errs = append(errs, fmt.Errorf("unknown lock mode %q", c.LockMode))
	}
	return errors.Join(errs...)
}

// Node is one peer. All of its state is guarded by a single mutex.
type Node struct {
	cfg      Config
	log      zerolog.Logger
	clock    clock.Clock
	metrics  *telemetry.Metrics
	promises *quorum.Promises
	observer atomic.Pointer[observerBox]

	// attemptMu keeps one reservation attempt in flight at a time.
	attemptMu sync.Mutex

	mu        sync.Mutex
	ep        *transport.Endpoint
	self      message.Address
	inventory *storage.Inventory
	updates   *storage.UpdateLog
	peers     []message.Address
	pending   *quorum.Attempt
	// life is done once the node stops; stopped makes that final.
	life    context.Context
	cancel  context.CancelFunc
	stopped bool

	wg sync.WaitGroup
}

// New creates a node with every resource available. It does not touch the
// network until Start.
func New(log zerolog.Logger, cfg Config) (*Node, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid node config: %w", err)
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.LockMode == "" {
		cfg.LockMode = LockOptimistic
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}

	n := &Node{
		cfg:       cfg,
		log:       log.With().Str("component", component).Logger(),
		clock:     cfg.Clock,
		metrics:   cfg.Metrics,
		inventory: storage.NewInventory(cfg.Resources),
		updates:   storage.NewUpdateLog(),
	}
	if cfg.LockMode == LockPromise {
		n.promises = quorum.NewPromises(2 * cfg.LockTimeout)
	}
	n.SetObserver(cfg.Observer)
	return n, nil
}

// SetObserver replaces the observer. Nil disables notifications.
func (n *Node) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	n.observer.Store(&observerBox{o})
}

func (n *Node) notifyChanged() {
	n.observer.Load().OnInventoryChanged()
}

func (n *Node) notifyError(err error) {
	n.observer.Load().OnError(err.Error())
}

// Start binds the endpoint, starts the receive and gossip loops, and
// announces the node to the registry. Cancelling ctx stops the node.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return ErrStopped
	}
	if n.ep != nil {
		n.mu.Unlock()
		return errors.New("node already started")
	}
	ep, err := transport.Listen(n.log, n.cfg.ListenAddr, transport.Config{Component: component, Metrics: n.metrics})
	if err != nil {
		n.mu.Unlock()
		return err
	}
	self := n.cfg.Advertise
	if self.IsZero() {
		self = ep.Addr()
	}
	ctx, cancel := context.WithCancel(ctx)
	n.ep, n.self, n.life, n.cancel = ep, self, ctx, cancel
	n.mu.Unlock()

	gossiper := gossip.NewDisseminator(n.log, n, ep, gossip.Config{
		MinInterval: n.cfg.GossipMinInterval,
		MaxInterval: n.cfg.GossipMaxInterval,
		Metrics:     n.metrics,
	})

	n.wg.Add(2)
	go func() {
		defer n.wg.Done()
		if err := ep.Serve(ctx, n.handleMessage); err != nil {
			n.log.Error().Err(err).Msg("receive loop stopped")
		}
	}()
	go func() {
		defer n.wg.Done()
		gossiper.Run(ctx)
	}()

	n.log.Info().Str("self", self.String()).Str("registry", n.cfg.Registry.String()).Str("mode", string(n.cfg.LockMode)).Msg("node started")

	if err := ep.Send(n.cfg.Registry, message.Join{}); err != nil {
		n.Stop()
		return fmt.Errorf("failed to join registry: %w", err)
	}
	if err := n.RefreshPeers(); err != nil {
		n.Stop()
		return err
	}
	return nil
}

// Stop cancels the node's goroutines, aborts a reservation in flight and
// closes its endpoint. A stopped node cannot be started again.
func (n *Node) Stop() {
	n.mu.Lock()
	cancel, ep := n.cancel, n.ep
	n.ep, n.cancel, n.stopped = nil, nil, true
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ep != nil {
		_ = ep.Close()
	}
}

// Wait blocks until the goroutines started by Start have returned.
func (n *Node) Wait() {
	n.wg.Wait()
}

// RefreshPeers asks the registry to push a fresh peer list.
func (n *Node) RefreshPeers() error {
	ep := n.endpoint()
	if ep == nil {
		return ErrNotRunning
	}
	if err := ep.Send(n.cfg.Registry, message.GetNodes{}); err != nil {
		return fmt.Errorf("failed to request node list: %w", err)
	}
	return nil
}

func (n *Node) endpoint() *transport.Endpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ep
}

// Addr returns the address peers know this node by. It is zero before Start.
func (n *Node) Addr() message.Address {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.self
}

// LockMode returns the configured lock mode.
func (n *Node) LockMode() LockMode {
	return n.cfg.LockMode
}

// Inventory returns every resource and its record, sorted by id.
func (n *Node) Inventory() []storage.Entry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.inventory.Entries()
}

// Peers returns the current peer list.
func (n *Node) Peers() []message.Address {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.peers)
}

// Updates returns the update log, sorted.
func (n *Node) Updates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.updates.Entries()
}

// GossipSnapshot returns the peers and a full snapshot for one gossip round.
func (n *Node) GossipSnapshot() ([]message.Address, message.InventoryUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.peers), message.InventoryUpdate{
		Inventory: recordsToWire(n.inventory.Snapshot()),
		Updates:   n.updates.Entries(),
	}
}
