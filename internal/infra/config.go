package infra

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/apperr"
)

const EnvPrefix = "BLOCKSUB"

// LoadConfig reads path into the global viper instance. Environment variables
// prefixed with BLOCKSUB_ override file values (log.level -> BLOCKSUB_LOG_LEVEL).
func LoadConfig(path string) error {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path == "" {
		return nil
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return apperr.NewInvalidArgErr("failed to read config file "+path, err)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("service.name", "blocksub-ethereum-service")
	viper.SetDefault("service.shutdown_timeout_seconds", 10)
	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("pprof.enabled", false)
	viper.SetDefault("pprof.addr", "127.0.0.1:6060")

	viper.SetDefault("subscription.resubscribe.initial_delay_ms", 1000)
	viper.SetDefault("subscription.resubscribe.multiplier", 1.0)

	viper.SetDefault("checkpoint.backend", CheckpointBackendBolt)
	viper.SetDefault("checkpoint.key_prefix", "blocksub:checkpoint")
	viper.SetDefault("checkpoint.bolt.path", "data/checkpoints.db")
	viper.SetDefault("checkpoint.bolt.bucket", "checkpoints")

	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis_stream.enabled", false)
	viper.SetDefault("redis_stream.dedup_prefix", "block")
	viper.SetDefault("redis_stream.block_ttl_seconds", 3600)
	viper.SetDefault("kafka.enabled", false)
}
