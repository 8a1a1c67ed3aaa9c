// Package metrics exposes emitter and chronicler activity as Prometheus
// metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GabrielNunesIT/emitterkit/internal/emitter"
	"github.com/GabrielNunesIT/emitterkit/internal/lifecycle"
)

const namespace = "emitterkit"

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	dataEvents    *prometheus.CounterVec // By emitter and type
	statusChanges *prometheus.CounterVec // By emitter and type
	connected     *prometheus.GaugeVec   // 1 when connected
	faulted       *prometheus.GaugeVec   // 1 while the built-in-test flag is set
	records       *prometheus.CounterVec // By chronicler and result (saved/failed)
	dropped       prometheus.Counter
}

// New creates the metrics on a private registry that also carries the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		dataEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "emitter",
			Name:      "data_events_total",
			Help:      "Total number of data events emitted",
		}, []string{"emitter", "type"}),

		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "emitter",
			Name:      "status_changes_total",
			Help:      "Total number of connection or fault transitions",
		}, []string{"emitter", "type"}),

		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "emitter",
			Name:      "connected",
			Help:      "Whether the emitter is connected",
		}, []string{"emitter", "type"}),

		faulted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "emitter",
			Name:      "faulted",
			Help:      "Whether the emitter built-in-test flag is set",
		}, []string{"emitter", "type"}),

		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chronicler",
			Name:      "records_total",
			Help:      "Total number of records handed to chroniclers",
		}, []string{"chronicler", "result"}), // result: saved, failed

		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "dropped_events_total",
			Help:      "Total number of events dropped on a full buffer",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.dataEvents,
		m.statusChanges,
		m.connected,
		m.faulted,
		m.records,
		m.dropped,
	)
	return m
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Observe attaches listeners to e. Disposing the result detaches them and
// removes the emitter's series.
func (m *Metrics) Observe(e emitter.Emitter) lifecycle.Disposable {
	id, typ := e.ID(), e.Type()

	status, err := e.ProbeStatus(context.Background())
	if err == nil {
		m.connected.WithLabelValues(id, typ).Set(boolGauge(status.Connected))
		m.faulted.WithLabelValues(id, typ).Set(boolGauge(status.BIT))
	}

	data := e.OnData(emitter.DataListenerFunc(func(emitter.DataEvent) {
		m.dataEvents.WithLabelValues(id, typ).Inc()
	}))
	st := e.OnStatus(emitter.StatusListenerFunc(func(evt emitter.StatusEvent) {
		m.statusChanges.WithLabelValues(id, typ).Inc()
		m.connected.WithLabelValues(id, typ).Set(boolGauge(evt.Connected))
		m.faulted.WithLabelValues(id, typ).Set(boolGauge(evt.BIT))
	}))

	// Members dispose in reverse, so series are removed after the listeners.
	var group lifecycle.Group
	group.Add(lifecycle.DisposableFunc(func() {
		for _, vec := range []*prometheus.CounterVec{m.dataEvents, m.statusChanges} {
			vec.DeleteLabelValues(id, typ)
		}
		m.connected.DeleteLabelValues(id, typ)
		m.faulted.DeleteLabelValues(id, typ)
	}))
	group.Add(data)
	group.Add(st)
	return &group
}

// RecordSaved counts a SaveRecord outcome.
func (m *Metrics) RecordSaved(chroniclerID string, err error) {
	result := "saved"
	if err != nil {
		result = "failed"
	}
	m.records.WithLabelValues(chroniclerID, result).Inc()
}

// Dropped counts an event dropped by the pipeline.
func (m *Metrics) Dropped() {
	m.dropped.Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Server serves the metrics handler and a health endpoint.
type Server struct {
	server *http.Server
	logger logger.ILogger
}

// NewServer creates a metrics server listening on address.
func NewServer(address, path string, m *Metrics, log logger.ILogger) *Server {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              address,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: log.SubLogger("MetricsServer"),
	}
}

// Start serves in the background until Stop.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		s.logger.Infof("serving metrics on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("metrics server failed: %v", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down metrics server: %w", err)
	}
	return nil
}
