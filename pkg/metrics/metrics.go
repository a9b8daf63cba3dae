// Package metrics exposes sampler counters through Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds the sampler's counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Ticks             prometheus.Counter
	Samples           prometheus.Counter
	LinesDiscarded    prometheus.Counter
	ContainersSkipped *prometheus.CounterVec
	DiscoveryFailures prometheus.Counter
	Containers        prometheus.Gauge
	Identities        prometheus.Gauge
	TickDuration      prometheus.Histogram
}

// New registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memtop_ticks_total",
			Help: "Sampling ticks completed.",
		}),
		Samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memtop_samples_total",
			Help: "Process samples aggregated and persisted.",
		}),
		LinesDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memtop_lines_discarded_total",
			Help: "ps output lines dropped as unparsable or zero RSS.",
		}),
		ContainersSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memtop_containers_skipped_total",
			Help: "Containers skipped for a tick, by reason.",
		}, []string{"reason"}),
		DiscoveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memtop_discovery_failures_total",
			Help: "Ticks where the container list could not be read.",
		}),
		Containers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memtop_containers",
			Help: "Containers seen in the latest tick.",
		}),
		Identities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memtop_process_identities",
			Help: "Distinct process identities aggregated so far.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "memtop_tick_duration_seconds",
			Help:    "Wall time spent collecting one tick.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	m.registry.MustRegister(m.Ticks, m.Samples, m.LinesDiscarded, m.ContainersSkipped,
		m.DiscoveryFailures, m.Containers, m.Identities, m.TickDuration)
	return m
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTick records one completed tick.
func (m *Metrics) ObserveTick(containers, samples, discarded, identities int, took time.Duration) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.Samples.Add(float64(samples))
	m.LinesDiscarded.Add(float64(discarded))
	m.Containers.Set(float64(containers))
	m.Identities.Set(float64(identities))
	m.TickDuration.Observe(took.Seconds())
}

// SkipContainer counts a container left out of a tick.
func (m *Metrics) SkipContainer(reason string) {
	if m == nil {
		return
	}
	m.ContainersSkipped.WithLabelValues(reason).Inc()
}

// DiscoveryFailed counts a tick that could not list containers.
func (m *Metrics) DiscoveryFailed() {
	if m == nil {
		return
	}
	m.DiscoveryFailures.Inc()
}

// Totals is a point-in-time read of the cumulative counters.
type Totals struct {
	Ticks             int
	Samples           int
	LinesDiscarded    int
	ContainersSkipped int
	DiscoveryFailures int
}

// Totals reads the counters back; skipped containers are summed over all reasons.
func (m *Metrics) Totals() Totals {
	if m == nil {
		return Totals{}
	}
	return Totals{
		Ticks:             counterSum(m.Ticks),
		Samples:           counterSum(m.Samples),
		LinesDiscarded:    counterSum(m.LinesDiscarded),
		ContainersSkipped: counterSum(m.ContainersSkipped),
		DiscoveryFailures: counterSum(m.DiscoveryFailures),
	}
}

func counterSum(c prometheus.Collector) int {
	ch := make(chan prometheus.Metric)
	go func() {
		c.Collect(ch)
		close(ch)
	}()
	var total float64
	for metric := range ch {
		var pb dto.Metric
		if err := metric.Write(&pb); err == nil {
			total += pb.GetCounter().GetValue()
		}
	}
	return int(total)
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
