package store

import (
	"crypto/tls"
	"net"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/apperr"
)

// NewRedisClient validates cfg and builds a go-redis client, optionally with TLS.
func NewRedisClient(cfg *RedisConfig, v *validator.Validate) (*redis.Client, error) {
	if err := v.Struct(cfg); err != nil {
		return nil, apperr.NewInvalidArgErr("invalid redis config", err)
	}

	opts := &redis.Options{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: time.Duration(cfg.DialTimeoutSeconds) * time.Second,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts), nil
}

// clusterHashTag returns the {tag} of key, or key itself, so related keys can
// be pinned to the same cluster slot.
func clusterHashTag(key string) string {
	start := strings.IndexByte(key, '{')
	if start >= 0 {
		end := strings.IndexByte(key[start+1:], '}')
		if end >= 0 {
			tag := key[start+1 : start+1+end]
			if tag != "" {
				return tag
			}
		}
	}
	return key
}

func rewind(number, by uint64) uint64 {
	if by >= number {
		return 0
	}
	return number - by
}
