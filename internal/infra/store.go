package infra

import (
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/adapter/store"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/port"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/apperr"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/applog"
)

const (
	CheckpointBackendRedis = "redis"
	CheckpointBackendBolt  = "bolt"
)

func loadRedisConfig() store.RedisConfig {
	return store.RedisConfig{
		Host:               viper.GetString("redis.host"),
		Port:               viper.GetString("redis.port"),
		Password:           viper.GetString("redis.password"),
		DB:                 viper.GetInt("redis.db"),
		UseTLS:             viper.GetBool("redis.use_tls"),
		PoolSize:           viper.GetInt("redis.pool_size"),
		MaxRetries:         viper.GetInt("redis.max_retries"),
		DialTimeoutSeconds: viper.GetInt("redis.dial_timeout_seconds"),
	}
}

// InitRedisClient creates the Redis client shared by every Redis-backed component.
func InitRedisClient(v *validator.Validate) (*redis.Client, error) {
	cfg := loadRedisConfig()
	return store.NewRedisClient(&cfg, v)
}

// InitCheckpointStore builds the backend selected by checkpoint.backend. The
// returned close func releases resources owned by the store itself.
func InitCheckpointStore(log applog.AppLogger, v *validator.Validate, rdb func() (*redis.Client, error)) (port.CheckpointStore, func() error, error) {
	rewindBlocks := uint64(viper.GetInt64("checkpoint.rewind_blocks"))

	switch backend := viper.GetString("checkpoint.backend"); backend {
	case CheckpointBackendRedis:
		client, err := rdb()
		if err != nil {
			return nil, nil, err
		}
		cfg := store.CheckpointConfig{
			KeyPrefix:     viper.GetString("checkpoint.key_prefix"),
			RewindBlocks:  rewindBlocks,
			ReadTimeoutMS: viper.GetInt("checkpoint.read_timeout_ms"),
		}
		s, err := store.NewRedisCheckpointStore(log, client, &cfg, v)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil

	case CheckpointBackendBolt:
		cfg := store.BoltConfig{
			Path:          viper.GetString("checkpoint.bolt.path"),
			Bucket:        viper.GetString("checkpoint.bolt.bucket"),
			OpenTimeoutMS: viper.GetInt("checkpoint.bolt.open_timeout_ms"),
			RewindBlocks:  rewindBlocks,
		}
		s, err := store.NewBoltCheckpointStore(log, &cfg, v)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	default:
		return nil, nil, apperr.NewInvalidArgErr("unknown checkpoint backend "+backend, nil)
	}
}

// InitStreamPublisher wires the Redis stream block listener.
func InitStreamPublisher(log applog.AppLogger, v *validator.Validate, client *redis.Client) (*store.BlockStreamPublisher, error) {
	cfg := store.StreamPublisherConfig{
		StreamKey:       viper.GetString("redis_stream.key"),
		DedupPrefix:     viper.GetString("redis_stream.dedup_prefix"),
		BlockTTLSeconds: viper.GetInt("redis_stream.block_ttl_seconds"),
	}
	return store.NewBlockStreamPublisher(log, client, &cfg, v)
}
