package metrics

import "github.com/prometheus/client_golang/prometheus"

// Fusion holds the pipeline telemetry counters. Constructed once in
// main and injected into the fusion service — no process-wide mutable
// singletons, and prometheus counters increment with lock-free atomics,
// which is what concurrent requests need.
type Fusion struct {
	Executions *prometheus.CounterVec
	Collapses  prometheus.Counter
	Duration   *prometheus.HistogramVec
	Candidates prometheus.Histogram
}

// NewFusion creates and registers the fusion metrics.
func NewFusion(reg prometheus.Registerer) *Fusion {
	f := &Fusion{
		Executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hybridrank",
				Name:      "fusion_executions_total",
				Help:      "Total number of fusion pipeline executions",
			},
			[]string{"normalization", "combination"},
		),
		Collapses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hybridrank",
				Name:      "collapse_executions_total",
				Help:      "Total number of collapse executions",
			},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hybridrank",
				Name:      "fusion_duration_seconds",
				Help:      "Fusion pipeline duration in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"combination"},
		),
		Candidates: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "hybridrank",
				Name:      "fusion_candidates",
				Help:      "Candidate documents considered per fusion execution",
				Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
			},
		),
	}
	if reg != nil {
		reg.MustRegister(f.Executions, f.Collapses, f.Duration, f.Candidates)
	}
	return f
}

// CacheTotal creates and registers the fused-response cache hit/miss
// counter (label "result": hit/miss).
func CacheTotal(reg prometheus.Registerer) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hybridrank",
			Name:      "fusion_cache_total",
			Help:      "Fused-response cache hits and misses",
		},
		[]string{"result"},
	)
	if reg != nil {
		reg.MustRegister(c)
	}
	return c
}
