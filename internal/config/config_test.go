package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerreserve/internal/message"
	"peerreserve/internal/node"
)

func validNode() Node {
	return Node{
		ListenAddr:        "127.0.0.1:5005",
		RegistryAddr:      "127.0.0.1:4000",
		ResourceCount:     4,
		ResourcePrefix:    "Resource-",
		GossipMinInterval: time.Second,
		GossipMaxInterval: 15 * time.Second,
		LockTimeout:       5 * time.Second,
		LockMode:          "optimistic",
		ControlAddr:       "127.0.0.1:7000",
		LoggerLevel:       "warn",
	}
}

func TestLoadNodeDefaults(t *testing.T) {
	t.Setenv("REGISTRY_ADDR", "127.0.0.1:4000")
	t.Setenv("NODE_LISTEN_ADDR", "127.0.0.1:5005")

	cfg, err := LoadNode()
	require.NoError(t, err)
	assert.Equal(t, validNode(), cfg)
	assert.Equal(t, []string{"Resource-1", "Resource-2", "Resource-3", "Resource-4"}, cfg.Catalog())
}

func TestLoadNodeOverrides(t *testing.T) {
	t.Setenv("REGISTRY_ADDR", "10.0.0.1:4000")
	t.Setenv("NODE_LISTEN_ADDR", "0.0.0.0:6000")
	t.Setenv("NODE_ADVERTISE_ADDR", "10.0.0.2:6000")
	t.Setenv("NODE_RESOURCES", "Book-A,Book-B")
	t.Setenv("GOSSIP_MIN_INTERVAL", "100ms")
	t.Setenv("GOSSIP_MAX_INTERVAL", "200ms")
	t.Setenv("LOCK_TIMEOUT", "1s")
	t.Setenv("NODE_LOCK_MODE", "promise")
	t.Setenv("LOGGER_LEVEL", "debug")

	cfg, err := LoadNode()
	require.NoError(t, err)
	assert.Equal(t, []string{"Book-A", "Book-B"}, cfg.Catalog())

	nc, err := cfg.NodeConfig()
	require.NoError(t, err)
	assert.Equal(t, node.Config{
		ListenAddr:        "0.0.0.0:6000",
		Advertise:         message.Address{Host: "10.0.0.2", Port: 6000},
		Registry:          message.Address{Host: "10.0.0.1", Port: 4000},
		Resources:         []string{"Book-A", "Book-B"},
		GossipMinInterval: 100 * time.Millisecond,
		GossipMaxInterval: 200 * time.Millisecond,
		LockTimeout:       time.Second,
		LockMode:          node.LockPromise,
	}, nc)
}

func TestLoadNodeRequiresRegistry(t *testing.T) {
	t.Setenv("NODE_LISTEN_ADDR", "127.0.0.1:5005")
	t.Setenv("REGISTRY_ADDR", "")
	os.Unsetenv("REGISTRY_ADDR")

	_, err := LoadNode()
	assert.Error(t, err)
}

func TestNodeValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Node)
		wantErr string
	}{
		{"valid", func(*Node) {}, ""},
		{"bad listen", func(c *Node) { c.ListenAddr = "nope" }, "NODE_LISTEN_ADDR"},
		{"bad advertise", func(c *Node) { c.AdvertiseAddr = "10.0.0.1" }, "NODE_ADVERTISE_ADDR"},
		{"bad registry", func(c *Node) { c.RegistryAddr = "" }, "REGISTRY_ADDR"},
		{"no resources", func(c *Node) { c.ResourceCount = 0 }, "NODE_RESOURCE_COUNT"},
		{"explicit resources", func(c *Node) { c.ResourceCount = 0; c.Resources = []string{"A"} }, ""},
		{"inverted gossip", func(c *Node) { c.GossipMaxInterval = time.Millisecond }, "GOSSIP_MAX_INTERVAL"},
		{"zero lock timeout", func(c *Node) { c.LockTimeout = 0 }, "LOCK_TIMEOUT"},
		{"bad mode", func(c *Node) { c.LockMode = "strict" }, "NODE_LOCK_MODE"},
		{"bad level", func(c *Node) { c.LoggerLevel = "trace" }, "LOGGER_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validNode()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNodeValidateJoinsErrors(t *testing.T) {
	cfg := validNode()
	cfg.ListenAddr = "nope"
	cfg.LockMode = "strict"

	err := cfg.Validate()
	assert.ErrorContains(t, err, "NODE_LISTEN_ADDR")
	assert.ErrorContains(t, err, "NODE_LOCK_MODE")
}

func TestCatalogTrimsBlanks(t *testing.T) {
	cfg := validNode()
	cfg.Resources = []string{" A ", "", "B"}
	assert.Equal(t, []string{"A", "B"}, cfg.Catalog())
}

func TestAdvertise(t *testing.T) {
	cfg := validNode()
	addr, err := cfg.Advertise()
	require.NoError(t, err)
	assert.Equal(t, message.Address{Host: "127.0.0.1", Port: 5005}, addr)

	cfg.ListenAddr = "0.0.0.0:5005"
	addr, err = cfg.Advertise()
	require.NoError(t, err)
	assert.Equal(t, LocalIP(), addr.Host)
	assert.Equal(t, 5005, addr.Port)
}

func TestLoadRegistry(t *testing.T) {
	cfg, err := LoadRegistry()
	require.NoError(t, err)
	assert.Equal(t, ":4000", cfg.ListenAddr)

	t.Setenv("REGISTRY_LISTEN_ADDR", "4000")
	_, err = LoadRegistry()
	assert.ErrorContains(t, err, "REGISTRY_LISTEN_ADDR")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.env")
	require.NoError(t, os.WriteFile(path, []byte("REGISTRY_ADDR=10.1.1.1:4000\nLOCK_TIMEOUT=2s\n"), 0o600))

	t.Setenv("LOCK_TIMEOUT", "3s")
	t.Setenv("REGISTRY_ADDR", "")
	os.Unsetenv("REGISTRY_ADDR")

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "10.1.1.1:4000", os.Getenv("REGISTRY_ADDR"))
	assert.Equal(t, "3s", os.Getenv("LOCK_TIMEOUT"), "existing variables win")
}

func TestLoggerLevel(t *testing.T) {
	assert.Equal(t, zerolog.ErrorLevel, LoggerLevel("error"))
	assert.Equal(t, zerolog.WarnLevel, LoggerLevel("WARN"))
	assert.Equal(t, zerolog.InfoLevel, LoggerLevel("info"))
	assert.Equal(t, zerolog.DebugLevel, LoggerLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, LoggerLevel("loud"))
}

func TestLocalIP(t *testing.T) {
	assert.NotEmpty(t, LocalIP())
}
