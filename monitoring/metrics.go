package monitoring

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/keyoracle/keyoracle/dispatcher"
	"github.com/keyoracle/keyoracle/session"
	"github.com/keyoracle/keyoracle/signer"
	"github.com/keyoracle/keyoracle/walletunlocker"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keyoracle"

// Outcome labels of the request counter.
const (
	OutcomeOK       = "ok"
	OutcomeDeclined = "declined"
	OutcomePolicy   = "policy"
	OutcomeLocked   = "locked"
	OutcomeAuth     = "auth"
	OutcomeError    = "error"
)

// Config is the metrics exporter configuration.
type Config struct {
	// Listen is the address the /metrics endpoint is served on.
	Listen string

	// Version and Commit are exported as labels of the version gauge.
	Version string
	Commit  string

	// Unlocked reports the session state. It is optional.
	Unlocked func() bool

	// Clock drives the uptime gauge. It defaults to the wall clock.
	Clock clock.Clock
}

// Metrics collects request statistics and serves them to Prometheus. It
// implements dispatcher.Observer.
type Metrics struct {
	cfg *Config

	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec

	mu  sync.Mutex
	srv *http.Server
}

// A compile time check to ensure Metrics implements the dispatcher.Observer
// interface.
var _ dispatcher.Observer = (*Metrics)(nil)

// New creates the metrics and registers them with a private registry.
func New(cfg *Config) *Metrics {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	m := &Metrics{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Number of finished requests.",
			},
			[]string{"kind", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help: "Time from dispatch to response, " +
					"including user prompts.",
				Buckets: prometheus.ExponentialBuckets(
					0.01, 4, 8,
				),
			},
			[]string{"kind"},
		),
	}

	versionGauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "version",
			Help:      "Version of the running oracle.",
		},
		[]string{"version", "commit"},
	)
	versionGauge.WithLabelValues(cfg.Version, cfg.Commit).Set(1)

	startTime := cfg.Clock.Now()
	uptime := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Uptime of the oracle in seconds.",
		},
		func() float64 {
			return cfg.Clock.Now().Sub(startTime).Seconds()
		},
	)

	m.registry.MustRegister(m.requests, m.duration, versionGauge, uptime)

	// Export zero series for every kind so rates exist before the first
	// request.
	for _, kind := range dispatcher.Kinds {
		m.requests.WithLabelValues(string(kind), OutcomeOK)
		m.duration.WithLabelValues(string(kind))
	}

	if cfg.Unlocked != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_unlocked",
				Help:      "Whether the session holds a secret.",
			},
			func() float64 {
				if cfg.Unlocked() {
					return 1
				}
				return 0
			},
		))
	}

	return m
}

// RequestDone implements dispatcher.Observer.
func (m *Metrics) RequestDone(kind dispatcher.Kind, err error,
	elapsed time.Duration) {

	m.requests.WithLabelValues(string(kind), Outcome(err)).Inc()
	m.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// Outcome classifies a request error into a counter label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK

	case errors.Is(err, signer.ErrDeclined):
		return OutcomeDeclined

	case errors.Is(err, signer.ErrPolicyViolation):
		return OutcomePolicy

	case errors.Is(err, session.ErrNotUnlocked):
		return OutcomeLocked

	case errors.Is(err, walletunlocker.ErrAuthFailed):
		return OutcomeAuth

	default:
		return OutcomeError
	}
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Start launches the exporter on the configured address.
func (m *Metrics) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.srv != nil {
		return nil
	}

	listener, err := net.Listen("tcp", m.cfg.Listen)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	m.srv = srv

	go func() {
		err := srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Prometheus exporter stopped: %v", err)
		}
	}()

	log.Infof("Prometheus exporter started on %v/metrics",
		listener.Addr())

	return nil
}

// Stop shuts the exporter down.
func (m *Metrics) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := m.srv.Shutdown(ctx)
	m.srv = nil

	return err
}
