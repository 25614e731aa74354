// Package metrics exposes Prometheus collectors for simulation runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/victoralfred/credit_sim/internal/domain/credit"
)

const namespace = "creditsim"

// Collector records run lifecycle and throughput
type Collector struct {
	gatherer      prometheus.Gatherer
	runs          *prometheus.CounterVec
	paths         prometheus.Counter
	duration      prometheus.Histogram
	active        prometheus.Gauge
	horizonVaR99  *prometheus.GaugeVec
	horizonLossEL *prometheus.GaugeVec
}

// NewCollector registers the collectors on reg
func NewCollector(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		gatherer: reg,
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Simulation runs by terminal status",
			},
			[]string{"status"},
		),
		paths: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "paths_simulated_total",
				Help:      "Monte Carlo paths simulated and recorded",
			},
		),
		duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall-clock time of simulation runs",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
		),
		active: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Simulation runs currently executing",
			},
		),
		horizonVaR99: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_var99",
				Help:      "VaR99 of the most recent completed run",
			},
			[]string{"horizon"},
		),
		horizonLossEL: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_expected_loss",
				Help:      "Portfolio expected loss of the most recent completed run",
			},
			[]string{"horizon"},
		),
	}
}

// ObservePaths counts completed paths
func (c *Collector) ObservePaths(n int) {
	c.paths.Add(float64(n))
}

// RunStarted marks a run as executing
func (c *Collector) RunStarted() {
	c.active.Inc()
}

// RunFinished records the terminal status and duration of a run
func (c *Collector) RunFinished(status credit.RunStatus, elapsed time.Duration) {
	c.active.Dec()
	c.runs.WithLabelValues(string(status)).Inc()
	c.duration.Observe(elapsed.Seconds())
}

// RecordHorizons publishes headline figures of a completed run, keyed by tenor label
func (c *Collector) RecordHorizons(tenors []string, horizons []credit.HorizonMetrics) {
	for i, m := range horizons {
		if i >= len(tenors) {
			break
		}
		c.horizonVaR99.WithLabelValues(tenors[i]).Set(m.LossVaR99)
		c.horizonLossEL.WithLabelValues(tenors[i]).Set(m.PortfolioEL)
	}
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
