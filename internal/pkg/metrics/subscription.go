package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type SubscriptionMetrics struct {
	State                 *prometheus.GaugeVec
	ResubscribesTotal     *prometheus.CounterVec
	DispatchedBlocksTotal *prometheus.CounterVec
	SkippedBlocksTotal    *prometheus.CounterVec
	ConversionErrorsTotal *prometheus.CounterVec
	ListenerErrorsTotal   *prometheus.CounterVec
	DispatchLatencyMS     *prometheus.HistogramVec
}

var (
	subscriptionOnce sync.Once
	subscription     *SubscriptionMetrics
)

func Subscription() *SubscriptionMetrics {
	subscriptionOnce.Do(func() {
		r := Registerer()
		subscription = &SubscriptionMetrics{
			State: promauto.With(r).NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "block_subscription_state",
					Help: "subscription state per node (0=unsubscribed,1=subscribing,2=active,3=recovering)",
				},
				[]string{"node"},
			),
			ResubscribesTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "block_subscription_resubscribes_total",
					Help: "resubscribe attempts by node and outcome",
				},
				[]string{"node", "outcome"},
			),
			DispatchedBlocksTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "block_subscription_dispatched_blocks_total",
					Help: "domain blocks handed to listeners",
				},
				[]string{"node"},
			),
			SkippedBlocksTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "block_subscription_skipped_blocks_total",
					Help: "empty block envelopes ignored",
				},
				[]string{"node"},
			),
			ConversionErrorsTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "block_subscription_conversion_errors_total",
					Help: "raw blocks that failed normalization",
				},
				[]string{"node"},
			),
			ListenerErrorsTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "block_subscription_listener_errors_total",
					Help: "listener failures while processing a block",
				},
				[]string{"node"},
			),
			DispatchLatencyMS: promauto.With(r).NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "block_subscription_dispatch_latency_ms",
					Help:    "time from raw block receipt until every listener returned (ms)",
					Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000},
				},
				[]string{"node"},
			),
		}
	})
	return subscription
}
