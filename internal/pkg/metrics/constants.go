package metrics

// Component label values used by app-level metrics.
const (
	ComponentKafka      = "kafka"
	ComponentRedis      = "redis"
	ComponentBolt       = "bolt"
	ComponentStream     = "stream"
	ComponentSubscriber = "subscriber"
)
