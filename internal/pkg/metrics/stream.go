package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type StreamMetrics struct {
	StreamedBlocksTotal *prometheus.CounterVec
	ActiveStreams       prometheus.Gauge
	FetchErrorsTotal    *prometheus.CounterVec
	FetchLatencyMS      *prometheus.HistogramVec
}

var (
	streamOnce sync.Once
	stream     *StreamMetrics
)

func Stream() *StreamMetrics {
	streamOnce.Do(func() {
		r := Registerer()
		stream = &StreamMetrics{
			StreamedBlocksTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "stream_blocks_total",
					Help: "raw blocks emitted by node block streams",
				},
				[]string{"mode"},
			),
			ActiveStreams: promauto.With(r).NewGauge(prometheus.GaugeOpts{
				Name: "stream_active",
				Help: "number of running node block streams",
			}),
			FetchErrorsTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "stream_fetch_errors_total",
					Help: "node block stream fetch errors by mode and code",
				},
				[]string{"mode", "code"},
			),
			FetchLatencyMS: promauto.With(r).NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "stream_fetch_latency_ms",
					Help:    "node block stream fetch latency (ms)",
					Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000},
				},
				[]string{"mode"},
			),
		}
	})
	return stream
}
