package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the governor. Optional; a nil Metrics
// disables collection.
type Metrics struct {
	RPCCallsTotal    *prometheus.CounterVec
	RPCRetriesTotal  *prometheus.CounterVec
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers governor metrics
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}

	return &Metrics{
		RPCCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Total number of outbound chain RPC calls",
		}, []string{"op"}),
		RPCRetriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "retries_total",
			Help:      "Total number of rate-limit retries",
		}, []string{"op"}),
		CacheHitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "cache_hits_total",
			Help:      "Total number of reads served from the result cache",
		}, []string{"key"}),
		CacheMissesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "cache_misses_total",
			Help:      "Total number of reads that went to the upstream",
		}, []string{"key"}),
	}
}
