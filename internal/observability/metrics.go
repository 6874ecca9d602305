package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// detection engine and the collector.
type Metrics struct {
	StationsChecked  prometheus.Counter
	AnomaliesFound   *prometheus.CounterVec // labels: variable, classification
	DetectorFailures *prometheus.CounterVec // labels: method
	Verifications    *prometheus.CounterVec // labels: status
	RunDuration      prometheus.Histogram
	StationDuration  prometheus.Histogram
	RunRunning       prometheus.Gauge

	// Collector metrics.
	CollectorFetches     *prometheus.CounterVec // labels: outcome={success,error}
	ObservationsUpserted prometheus.Counter
	CollectorRunning     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus
// registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.StationsChecked,
		m.AnomaliesFound,
		m.DetectorFailures,
		m.Verifications,
		m.RunDuration,
		m.StationDuration,
		m.RunRunning,
		m.CollectorFetches,
		m.ObservationsUpserted,
		m.CollectorRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		StationsChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "station_sentinel",
			Name:      "stations_checked_total",
			Help:      "Total stations processed by detection runs.",
		}),
		AnomaliesFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_sentinel",
			Name:      "anomalies_found_total",
			Help:      "Flagged points by variable and classification.",
		}, []string{"variable", "classification"}),
		DetectorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_sentinel",
			Name:      "detector_failures_total",
			Help:      "Strategy runs discarded due to a failure marker.",
		}, []string{"method"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_sentinel",
			Name:      "verifications_total",
			Help:      "Trend verification attempts by outcome status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "station_sentinel",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete detection batch.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		StationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "station_sentinel",
			Name:      "station_duration_seconds",
			Help:      "Per-station detection duration including verification.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		RunRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "station_sentinel",
			Name:      "run_running",
			Help:      "1 while a detection batch is active.",
		}),
		CollectorFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_sentinel",
			Name:      "collector_fetches_total",
			Help:      "Feed fetch attempts by outcome.",
		}, []string{"outcome"}),
		ObservationsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "station_sentinel",
			Name:      "observations_upserted_total",
			Help:      "Observation rows written by the collector.",
		}),
		CollectorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "station_sentinel",
			Name:      "collector_running",
			Help:      "1 while the collection loop is active.",
		}),
	}
}
