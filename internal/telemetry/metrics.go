// Package telemetry exposes Prometheus metrics for registries and nodes.
// A nil *Metrics is valid and records nothing.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "peerreserve"

// Lock attempt outcomes.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeRejected  = "rejected"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
	OutcomePromised  = "promised"
)

type Metrics struct {
	received     *prometheus.CounterVec
	malformed    *prometheus.CounterVec
	sent         *prometheus.CounterVec
	sendErrors   *prometheus.CounterVec
	gossipRounds prometheus.Counter
	adopted      prometheus.Counter
	lockAttempts *prometheus.CounterVec
	lockWait     prometheus.Histogram
	registrySize prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_received_total",
			Help:      "Datagrams decoded, by component and message type.",
		}, []string{"component", "type"}),
		malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_malformed_total",
			Help:      "Datagrams dropped because they could not be decoded.",
		}, []string{"component"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_sent_total",
			Help:      "Datagrams sent, by component and message type.",
		}, []string{"component", "type"}),
		sendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Datagrams that failed to encode or send.",
		}, []string{"component", "type"}),
		gossipRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gossip_rounds_total",
			Help:      "Gossip rounds that pushed a snapshot to a peer.",
		}),
		adopted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_adopted_records_total",
			Help:      "Remote records adopted while merging snapshots.",
		}),
		lockAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_attempts_total",
			Help:      "Reservation lock attempts, by outcome.",
		}, []string{"outcome"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for lock responses.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		registrySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_nodes",
			Help:      "Entries in the discovery registry, duplicates included.",
		}),
	}
	reg.MustRegister(
		m.received, m.malformed, m.sent, m.sendErrors,
		m.gossipRounds, m.adopted, m.lockAttempts, m.lockWait, m.registrySize,
	)
	return m
}

func (m *Metrics) MessageReceived(component, typ string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(component, typ).Inc()
}

func (m *Metrics) MalformedReceived(component string) {
	if m == nil {
		return
	}
	m.malformed.WithLabelValues(component).Inc()
}

func (m *Metrics) MessageSent(component, typ string) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(component, typ).Inc()
}

func (m *Metrics) SendFailed(component, typ string) {
	if m == nil {
		return
	}
	m.sendErrors.WithLabelValues(component, typ).Inc()
}

func (m *Metrics) GossipRound() {
	if m == nil {
		return
	}
	m.gossipRounds.Inc()
}

func (m *Metrics) MergeAdopted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.adopted.Add(float64(n))
}

// LockAttempt records the outcome of one reservation attempt and how long it
// waited for responses.
func (m *Metrics) LockAttempt(outcome string, wait time.Duration) {
	if m == nil {
		return
	}
	m.lockAttempts.WithLabelValues(outcome).Inc()
	m.lockWait.Observe(wait.Seconds())
}

func (m *Metrics) SetRegistrySize(n int) {
	if m == nil {
		return
	}
	m.registrySize.Set(float64(n))
}

// Handler serves /metrics from g and a /healthz probe.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// ListenAndServe serves Handler(g) on addr until ctx is done.
func ListenAndServe(ctx context.Context, log zerolog.Logger, addr string, g prometheus.Gatherer) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(g),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
