package store

// RedisConfig contains connection options shared by every Redis-backed
// component. The struct is validated via go-playground/validator tags.
type RedisConfig struct {
	Host               string `validate:"required,hostname|ip"`
	Port               string `validate:"required,numeric"`
	Password           string
	DB                 int `validate:"gte=0"`
	UseTLS             bool
	PoolSize           int `validate:"gte=0"`
	MaxRetries         int `validate:"gte=0"`
	DialTimeoutSeconds int `validate:"gte=0"`
}

// CheckpointConfig tunes how checkpoints are read back as start positions.
type CheckpointConfig struct {
	// KeyPrefix namespaces the Redis checkpoint keys (<prefix>:<node>).
	KeyPrefix string `validate:"required"`
	// RewindBlocks moves the start position back so the last few blocks are
	// delivered again after a restart.
	RewindBlocks  uint64
	ReadTimeoutMS int `validate:"gte=0"`
}

type BoltConfig struct {
	Path          string `validate:"required"`
	Bucket        string
	OpenTimeoutMS int `validate:"gte=0"`
	RewindBlocks  uint64
}

// StreamPublisherConfig controls the Redis stream blocks are appended to.
type StreamPublisherConfig struct {
	// StreamKey is the Redis stream where blocks are published.
	StreamKey string `validate:"required"`
	// DedupPrefix is the prefix used for the idempotency SET key (e.g., "block").
	DedupPrefix string `validate:"required"`
	// BlockTTLSeconds is the TTL for the dedup key.
	BlockTTLSeconds int `validate:"required,gte=1"`
}
