package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MessageReceived("node", "join")
		m.MalformedReceived("node")
		m.MessageSent("node", "join")
		m.SendFailed("node", "join")
		m.GossipRound()
		m.MergeAdopted(3)
		m.LockAttempt(OutcomeConfirmed, time.Second)
		m.SetRegistrySize(2)
	})
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsExposed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.MessageReceived("node", "lock_request")
	m.MessageReceived("node", "lock_request")
	m.MergeAdopted(2)
	m.MergeAdopted(0)
	m.LockAttempt(OutcomeRejected, 10*time.Millisecond)
	m.SetRegistrySize(4)
	m.GossipRound()

	body := scrape(t, Handler(reg))
	assert.Contains(t, body, `peerreserve_datagrams_received_total{component="node",type="lock_request"} 2`)
	assert.Contains(t, body, "peerreserve_merge_adopted_records_total 2")
	assert.Contains(t, body, `peerreserve_lock_attempts_total{outcome="rejected"} 1`)
	assert.Contains(t, body, "peerreserve_registry_nodes 4")
	assert.Contains(t, body, "peerreserve_gossip_rounds_total 1")
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(Handler(prometheus.NewRegistry()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
