package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the hub. Optional; a nil Metrics
// disables collection.
type Metrics struct {
	Subscribers             *prometheus.GaugeVec
	SubscriptionsTotal      prometheus.Counter
	EventsBroadcastTotal    prometheus.Counter
	DeliveriesTotal         prometheus.Counter
	DroppedSubscribersTotal prometheus.Counter
}

// NewMetrics creates and registers hub metrics
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}

	return &Metrics{
		Subscribers: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "subscribers",
			Help:      "Current number of connected subscribers",
		}, []string{"transport"}),
		SubscriptionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "subscriptions_total",
			Help:      "Total number of subscriber connections",
		}),
		EventsBroadcastTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "events_broadcast_total",
			Help:      "Total number of block events broadcast",
		}),
		DeliveriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "deliveries_total",
			Help:      "Total number of per-subscriber event deliveries",
		}),
		DroppedSubscribersTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "dropped_subscribers_total",
			Help:      "Total number of subscribers removed after a failed write",
		}),
	}
}
