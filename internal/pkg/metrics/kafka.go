package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type KafkaMetrics struct {
	PublishAttemptsTotal prometheus.Counter
	PublishedBlocksTotal *prometheus.CounterVec
	PublishErrorsTotal   *prometheus.CounterVec
	PublishLatencyMS     prometheus.Histogram
}

var (
	kafkaOnce sync.Once
	kafka     *KafkaMetrics
)

func Kafka() *KafkaMetrics {
	kafkaOnce.Do(func() {
		r := Registerer()
		kafka = &KafkaMetrics{
			PublishAttemptsTotal: promauto.With(r).NewCounter(prometheus.CounterOpts{
				Name: "kafka_block_publish_attempts_total",
				Help: "kafka block publish attempts (success + error)",
			}),
			PublishedBlocksTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{Name: "kafka_blocks_published_total", Help: "blocks published to kafka by node"},
				[]string{"node"},
			),
			PublishErrorsTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{Name: "kafka_block_publish_errors_total", Help: "kafka publish errors by type"},
				[]string{"type"},
			),
			PublishLatencyMS: promauto.With(r).NewHistogram(prometheus.HistogramOpts{
				Name:    "kafka_block_publish_latency_ms",
				Help:    "kafka publish latency per attempt (ms)",
				Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000},
			}),
		}
	})
	return kafka
}
