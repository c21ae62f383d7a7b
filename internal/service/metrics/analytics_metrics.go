package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	AnalyticsLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vprop",
			Subsystem: "analytics",
			Name:      "latency_seconds",
			Help:      "Latency of analytics report assembly",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"view"},
	)

	AnalyticsErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vprop",
			Subsystem: "analytics",
			Name:      "errors_total",
			Help:      "Errors by analytics view",
		},
		[]string{"view"},
	)

	AnalyticsCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vprop",
			Subsystem: "analytics",
			Name:      "cache_hits_total",
			Help:      "Snapshot cache hits and misses by view",
		},
		[]string{"view", "result"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(AnalyticsLatency, AnalyticsErrors, AnalyticsCacheHits)
	})
}
