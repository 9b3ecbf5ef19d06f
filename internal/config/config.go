// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/vrischmann/envconfig"

	"peerreserve/internal/message"
	"peerreserve/internal/node"
)

// DefaultNodePort is used for the default listen address.
const DefaultNodePort = 5005

// Node is the configuration of a peer node process.
type Node struct {
	// ListenAddr defaults to the detected local IP on DefaultNodePort.
	ListenAddr string `envconfig:"NODE_LISTEN_ADDR,optional"`
	// AdvertiseAddr is the address peers see; defaults to ListenAddr, with
	// an unspecified host replaced by the local IP.
	AdvertiseAddr string `envconfig:"NODE_ADVERTISE_ADDR,optional"`
	RegistryAddr  string `envconfig:"REGISTRY_ADDR"`

	// Resources overrides the generated catalog when set.
	Resources      []string `envconfig:"NODE_RESOURCES,optional"`
	ResourceCount  int      `envconfig:"NODE_RESOURCE_COUNT,default=4"`
	ResourcePrefix string   `envconfig:"NODE_RESOURCE_PREFIX,default=Resource-"`

	GossipMinInterval time.Duration `envconfig:"GOSSIP_MIN_INTERVAL,default=1s"`
	GossipMaxInterval time.Duration `envconfig:"GOSSIP_MAX_INTERVAL,default=15s"`
	LockTimeout       time.Duration `envconfig:"LOCK_TIMEOUT,default=5s"`
	LockMode          string        `envconfig:"NODE_LOCK_MODE,default=optimistic"`

	ControlAddr string `envconfig:"CONTROL_ADDR,default=127.0.0.1:7000"`
	MetricsAddr string `envconfig:"METRICS_ADDR,optional"`
	LoggerLevel string `envconfig:"LOGGER_LEVEL,default=warn"`
}

// Registry is the configuration of the discovery registry process.
type Registry struct {
	ListenAddr  string `envconfig:"REGISTRY_LISTEN_ADDR,default=:4000"`
	MetricsAddr string `envconfig:"METRICS_ADDR,optional"`
	LoggerLevel string `envconfig:"LOGGER_LEVEL,default=warn"`
}

// LoadDotEnv loads variables from the given .env files, or ".env" when none
// are given. Missing files are skipped and variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadNode reads and validates the node configuration.
func LoadNode() (Node, error) {
	var cfg Node
	if err := envconfig.Init(&cfg); err != nil {
		return Node{}, fmt.Errorf("failed to read node config: %w", err)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = net.JoinHostPort(LocalIP(), strconv.Itoa(DefaultNodePort))
	}
	if err := cfg.Validate(); err != nil {
		return Node{}, err
	}
	return cfg, nil
}

// LoadRegistry reads and validates the registry configuration.
func LoadRegistry() (Registry, error) {
	var cfg Registry
	if err := envconfig.Init(&cfg); err != nil {
		return Registry{}, fmt.Errorf("failed to read registry config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Registry{}, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c Node) Validate() error {
	var errs []error
	if _, err := message.ParseAddress(c.ListenAddr); err != nil {
		errs = append(errs, fmt.Errorf("NODE_LISTEN_ADDR: %w", err))
	}
	if c.AdvertiseAddr != "" {
		if _, err := message.ParseAddress(c.AdvertiseAddr); err != nil {
			errs = append(errs, fmt.Errorf("NODE_ADVERTISE_ADDR: %w", err))
		}
	}
	if _, err := message.ParseAddress(c.RegistryAddr); err != nil {
		errs = append(errs, fmt.Errorf("REGISTRY_ADDR: %w", err))
	}
	if len(c.Resources) == 0 && c.ResourceCount <= 0 {
		errs = append(errs, fmt.Errorf("NODE_RESOURCE_COUNT must be positive, got %d", c.ResourceCount))
	}
	if c.GossipMinInterval <= 0 {
		errs = append(errs, fmt.Errorf("GOSSIP_MIN_INTERVAL must be positive, got %s", c.GossipMinInterval))
	}
	if c.GossipMaxInterval < c.GossipMinInterval {
		errs = append(errs, fmt.Errorf("GOSSIP_MAX_INTERVAL %s is below GOSSIP_MIN_INTERVAL %s", c.GossipMaxInterval, c.GossipMinInterval))
	}
	if c.LockTimeout <= 0 {
		errs = append(errs, fmt.Errorf("LOCK_TIMEOUT must be positive, got %s", c.LockTimeout))
	}
	switch node.LockMode(c.LockMode) {
	case node.LockOptimistic, node.LockPromise:
	default:
		errs = append(errs, fmt.Errorf("NODE_LOCK_MODE must be optimistic or promise, got %q", c.LockMode))
	}
	if !validLevel(c.LoggerLevel) {
		errs = append(errs, fmt.Errorf("LOGGER_LEVEL must be error, warn, info or debug, got %q", c.LoggerLevel))
	}
	return errors.Join(errs...)
}

// Validate reports every problem at once.
func (c Registry) Validate() error {
	var errs []error
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		errs = append(errs, fmt.Errorf("REGISTRY_LISTEN_ADDR: %w", err))
	}
	if !validLevel(c.LoggerLevel) {
		errs = append(errs, fmt.Errorf("LOGGER_LEVEL must be error, warn, info or debug, got %q", c.LoggerLevel))
	}
	return errors.Join(errs...)
}

// Catalog returns the resource ids: Resources when set, otherwise
// ResourcePrefix followed by 1..ResourceCount.
func (c Node) Catalog() []string {
	if len(c.Resources) > 0 {
		out := make([]string, 0, len(c.Resources))
		for _, r := range c.Resources {
			if r = strings.TrimSpace(r); r != "" {
				out = append(out, r)
			}
		}
		return out
	}
	out := make([]string, c.ResourceCount)
	for i := range out {
		out[i] = c.ResourcePrefix + strconv.Itoa(i+1)
	}
	return out
}

// Advertise returns the address peers should use for this node.
func (c Node) Advertise() (message.Address, error) {
	raw := c.AdvertiseAddr
	if raw == "" {
		raw = c.ListenAddr
	}
	addr, err := message.ParseAddress(raw)
	if err != nil {
		return message.Address{}, err
	}
	if ip := net.ParseIP(addr.Host); addr.Host == "" || (ip != nil && ip.IsUnspecified()) {
		addr.Host = LocalIP()
	}
	return addr, nil
}

// NodeConfig builds the node.Config for this configuration.
func (c Node) NodeConfig() (node.Config, error) {
	registry, err := message.ParseAddress(c.RegistryAddr)
	if err != nil {
		return node.Config{}, fmt.Errorf("REGISTRY_ADDR: %w", err)
	}
	advertise, err := c.Advertise()
	if err != nil {
		return node.Config{}, fmt.Errorf("advertise address: %w", err)
	}
	return node.Config{
		ListenAddr:        c.ListenAddr,
		Advertise:         advertise,
		Registry:          registry,
		Resources:         c.Catalog(),
		GossipMinInterval: c.GossipMinInterval,
		GossipMaxInterval: c.GossipMaxInterval,
		LockTimeout:       c.LockTimeout,
		LockMode:          node.LockMode(c.LockMode),
	}, nil
}

// LocalIP returns the address of the interface used for outbound traffic,
// or 127.0.0.1 when there is none. No packet is sent.
func LocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}

func validLevel(level string) bool {
	switch strings.ToLower(level) {
	case "error", "warn", "info", "debug":
		return true
	}
	return false
}

// LoggerLevel maps LOGGER_LEVEL values to zerolog levels, defaulting to warn.
func LoggerLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	}
	return zerolog.WarnLevel
}
