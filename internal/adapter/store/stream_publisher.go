package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/entity"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/port"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/usecase"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/apperr"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/applog"
	imetrics "github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/metrics"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/pattern"
)

// addBlock claims the dedup key KEYS[1] for ARGV[1] ms and, when the claim is
// new, appends the field/value pairs ARGV[2..] to the stream KEYS[2].
var addBlock = redis.NewScript(`
if not redis.call('SET', KEYS[1], '1', 'NX', 'PX', ARGV[1]) then
  return {0, 'EXISTS'}
end
local fields = {}
for i = 2, #ARGV do
  fields[#fields + 1] = ARGV[i]
end
local ok, id = pcall(redis.call, 'XADD', KEYS[2], '*', unpack(fields))
if not ok then
  redis.call('DEL', KEYS[1])
  return {0, 'XADD_ERR'}
end
return {1, id}
`)

// BlockStreamPublisher appends every delivered block to a Redis stream once.
// Idempotency comes from a SET NX key that lives in the same cluster slot as
// the stream, so both writes happen atomically in one script.
type BlockStreamPublisher struct {
	rdb       redis.Cmdable
	log       applog.AppLogger
	validator *validator.Validate
	cfg       StreamPublisherConfig
}

func NewBlockStreamPublisher(log applog.AppLogger, rdb redis.Cmdable, cfg *StreamPublisherConfig, v *validator.Validate) (*BlockStreamPublisher, error) {
	if rdb == nil {
		return nil, apperr.NewInvalidArgErr("redis client is required", nil)
	}
	if err := v.Struct(cfg); err != nil {
		log.Error("invalid redis stream config", "err", err)
		return nil, apperr.NewInvalidArgErr("invalid redis stream config", err)
	}
	return &BlockStreamPublisher{rdb: rdb, log: log, validator: v, cfg: *cfg}, nil
}

// Publish appends block to the stream and returns true when the entry is new,
// false when the same block hash was already appended within the TTL.
func (p *BlockStreamPublisher) Publish(ctx context.Context, block *entity.Block) (bool, error) {
	if block == nil {
		return false, apperr.NewBlockPublishErr("block is nil", nil)
	}
	if err := p.validator.Struct(block); err != nil {
		return false, apperr.NewBlockPublishErr("invalid block", err)
	}

	payload, err := usecase.MarshalBlockJSON(block)
	if err != nil {
		return false, apperr.NewBlockPublishErr("failed to marshal block payload", err)
	}

	tag := clusterHashTag(p.cfg.StreamKey)
	setKey := fmt.Sprintf("{%s}:%s:%s", tag, p.cfg.DedupPrefix, block.Hash.Hex())
	ttlMs := strconv.FormatInt(int64(p.cfg.BlockTTLSeconds)*1000, 10)
	args := []any{
		ttlMs,
		"node", block.NodeName,
		"hash", block.Hash.Hex(),
		"number", strconv.FormatUint(block.Number(), 10),
		"payload", string(payload),
		"received_at_ms", strconv.FormatInt(time.Now().UnixMilli(), 10),
	}

	var stored bool
	var lastReason string
	err = pattern.Retry(
		ctx,
		func(attempt int) error {
			res, err := addBlock.Run(ctx, p.rdb, []string{setKey, p.cfg.StreamKey}, args...).Slice()
			if err != nil {
				p.log.Warn("Redis add block script failed", "attempt", attempt, "err", err)
				lastReason = "script"
				return err
			}
			if len(res) < 1 {
				lastReason = "script_resp"
				return apperr.NewBlockPublishErr("unexpected script response", nil)
			}
			status, ok := res[0].(int64)
			if !ok {
				lastReason = "script_resp"
				return apperr.NewBlockPublishErr("unexpected script status type", fmt.Errorf("type=%T", res[0]))
			}
			if status == 1 {
				stored = true
				return nil
			}

			reason := ""
			if len(res) > 1 {
				reason, _ = res[1].(string)
			}
			switch strings.ToUpper(reason) {
			case "EXISTS":
				p.log.Trace("Block already in stream; skipping", "hash", block.Hash.Hex(), "number", block.Number())
				return nil
			case "XADD_ERR":
				p.log.Warn("Redis XADD failed while adding block", "hash", block.Hash.Hex(), "number", block.Number())
				lastReason = "xadd_err"
				return apperr.NewBlockPublishErr("redis XADD failed", nil)
			default:
				lastReason = "unknown"
				return apperr.NewBlockPublishErr("redis add block failed with unknown reason", nil)
			}
		},
		pattern.WithMaxAttempts(3),
		pattern.WithInitialDelay(200*time.Millisecond),
		pattern.WithMaxDelay(1*time.Second),
	)
	if err != nil {
		if lastReason == "" {
			lastReason = "unknown"
		}
		imetrics.App().ErrorsTotal.WithLabelValues(imetrics.ComponentRedis, lastReason).Inc()
		return false, apperr.NewBlockPublishErr("failed to append block to redis stream", err)
	}
	return stored, nil
}

func (p *BlockStreamPublisher) OnBlock(ctx context.Context, block *entity.Block) error {
	_, err := p.Publish(ctx, block)
	return err
}

var _ port.BlockListener = (*BlockStreamPublisher)(nil)
