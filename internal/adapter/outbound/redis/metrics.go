package redis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "platemate",
		Subsystem: "redis_pool",
		Name:      "connections",
		Help:      "Pooled connections by state.",
	}, []string{"state"})

	poolAcquireSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "platemate",
		Subsystem: "redis_pool",
		Name:      "acquire_seconds",
		Help:      "Time spent acquiring a connection from the pool.",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	})

	cacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "platemate",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Cache operations by result (hit, miss, error, rejected).",
	}, []string{"result"})

	cacheCompressionRatio = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "platemate",
		Subsystem: "cache",
		Name:      "compression_ratio",
		Help:      "Achieved compression ratio (compressed/original) for large payloads.",
		Buckets:   []float64{.1, .2, .3, .4, .5, .6, .7, .8, .9, 1},
	})
)
