package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/port"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/apperr"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/applog"
	imetrics "github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/metrics"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/pattern"
)

// advanceCheckpoint sets KEYS[1] to ARGV[1] unless it already holds an equal
// or higher block number. Returns 1 when the checkpoint moved.
var advanceCheckpoint = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
local target = tonumber(ARGV[1])
if current and tonumber(current) >= target then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

const defaultCheckpointReadTimeout = 2 * time.Second

// RedisCheckpointStore keeps the last delivered block number per node in Redis.
//
// Reads fail safe: any Redis error is reported as "no checkpoint" so a node
// falls back to following the head instead of failing to subscribe.
type RedisCheckpointStore struct {
	rdb         redis.Cmdable
	log         applog.AppLogger
	cfg         CheckpointConfig
	readTimeout time.Duration
}

func NewRedisCheckpointStore(log applog.AppLogger, rdb redis.Cmdable, cfg *CheckpointConfig, v *validator.Validate) (*RedisCheckpointStore, error) {
	if rdb == nil {
		return nil, apperr.NewInvalidArgErr("redis client is required", nil)
	}
	if err := v.Struct(cfg); err != nil {
		log.Error("invalid checkpoint config", "err", err)
		return nil, apperr.NewInvalidArgErr("invalid checkpoint config", err)
	}

	readTimeout := defaultCheckpointReadTimeout
	if cfg.ReadTimeoutMS > 0 {
		readTimeout = time.Duration(cfg.ReadTimeoutMS) * time.Millisecond
	}
	return &RedisCheckpointStore{rdb: rdb, log: log, cfg: *cfg, readTimeout: readTimeout}, nil
}

func (s *RedisCheckpointStore) key(nodeName string) string {
	return fmt.Sprintf("%s:%s", s.cfg.KeyPrefix, nodeName)
}

func (s *RedisCheckpointStore) GetStartPosition(nodeName string) (uint64, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.readTimeout)
	defer cancel()

	n, err := s.rdb.Get(ctx, s.key(nodeName)).Uint64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, false
	case err != nil:
		s.log.Warn("Failed to read checkpoint, following head instead", "node", nodeName, "err", err)
		imetrics.App().WarningsTotal.WithLabelValues(imetrics.ComponentRedis, "checkpoint_read").Inc()
		return 0, false
	}
	return rewind(n, s.cfg.RewindBlocks), true
}

// SaveCheckpoint records number as the node's checkpoint. Older numbers than
// the stored one are ignored.
func (s *RedisCheckpointStore) SaveCheckpoint(ctx context.Context, nodeName string, number uint64) error {
	key := s.key(nodeName)
	arg := strconv.FormatUint(number, 10)

	var moved bool
	err := pattern.Retry(
		ctx,
		func(attempt int) error {
			res, err := advanceCheckpoint.Run(ctx, s.rdb, []string{key}, arg).Int()
			if err != nil {
				s.log.Warn("Redis checkpoint update failed", "node", nodeName, "attempt", attempt, "err", err)
				return err
			}
			moved = res == 1
			return nil
		},
		pattern.WithMaxAttempts(3),
		pattern.WithInitialDelay(100*time.Millisecond),
		pattern.WithMaxDelay(500*time.Millisecond),
	)
	if err != nil {
		imetrics.App().ErrorsTotal.WithLabelValues(imetrics.ComponentRedis, "checkpoint_write").Inc()
		return apperr.NewCheckpointErr(fmt.Sprintf("failed to save checkpoint %d for node %s", number, nodeName), err)
	}

	if moved {
		s.log.Trace("Checkpoint advanced", "node", nodeName, "number", number)
	}
	return nil
}

var _ port.CheckpointStore = (*RedisCheckpointStore)(nil)
