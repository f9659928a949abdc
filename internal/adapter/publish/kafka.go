package publish

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/entity"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/port"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/usecase"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/apperr"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/applog"
	imetrics "github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/metrics"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/pattern"
)

const (
	defaultRetryAttempts       = 5
	defaultRetryInitialBackoff = 200 * time.Millisecond
	defaultRetryMaxBackoff     = 2 * time.Second
	defaultRetryJitter         = 0.2
	defaultWriteTimeout        = 10 * time.Second

	HeaderBlockNumber = "block-number"
	HeaderBlockHash   = "block-hash"
	HeaderNode        = "node"
)

// kgoClient is the part of *kgo.Client the publisher needs.
type kgoClient interface {
	BeginTransaction() error
	EndTransaction(ctx context.Context, commit kgo.TransactionEndTry) error
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

var newKgoClient = func(opts ...kgo.Opt) (kgoClient, error) {
	return kgo.NewClient(opts...)
}

// KafkaPublisher is a block listener that writes each delivered block to a
// Kafka topic, keyed by block hash so reorged duplicates land on the same
// partition.
type KafkaPublisher struct {
	log          applog.AppLogger
	client       kgoClient
	cfg          Config
	writeTimeout time.Duration
	retryOpts    []pattern.RetryOption

	// txMu serializes transactions; a kgo client holds at most one open
	// transaction and every node's stream publishes through this listener.
	txMu sync.Mutex
}

// NewKafkaPublisher builds a Kafka-backed publisher with validated configuration and retry settings.
func NewKafkaPublisher(log applog.AppLogger, cfg Config, v *validator.Validate) (*KafkaPublisher, error) {
	if err := v.Struct(cfg); err != nil {
		return nil, apperr.NewInvalidArgErr("invalid kafka publisher config", err)
	}

	maxAttempts := cfg.MaxRetryAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultRetryAttempts
	}
	initialBackoff := millisecondsOrDefault(cfg.RetryInitialBackoffMS, defaultRetryInitialBackoff)
	maxBackoff := millisecondsOrDefault(cfg.RetryMaxBackoffMS, defaultRetryMaxBackoff)
	if maxBackoff < initialBackoff {
		maxBackoff = initialBackoff
	}
	jitter := cfg.RetryJitter
	if jitter <= 0 {
		jitter = defaultRetryJitter
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.DefaultProduceTopic(cfg.Topic),
	}
	if cfg.TransactionalID != "" {
		opts = append(opts, kgo.TransactionalID(cfg.TransactionalID))
	}
	client, err := newKgoClient(opts...)
	if err != nil {
		return nil, apperr.NewInvalidArgErr("failed to init kafka client", err)
	}

	kp := &KafkaPublisher{
		log:          log,
		client:       client,
		cfg:          cfg,
		writeTimeout: secondsOrDefault(cfg.WriteTimeoutSeconds, defaultWriteTimeout),
	}
	kp.retryOpts = []pattern.RetryOption{
		pattern.WithMaxAttempts(maxAttempts),
		pattern.WithInitialDelay(initialBackoff),
		pattern.WithMaxDelay(maxBackoff),
		pattern.WithJitter(jitter),
		pattern.WithShouldRetry(kp.shouldRetry),
	}
	return kp, nil
}

func (kp *KafkaPublisher) OnBlock(ctx context.Context, block *entity.Block) error {
	return kp.PublishBlock(ctx, block)
}

// PublishBlock serializes block and produces it synchronously, retrying
// transient broker errors.
func (kp *KafkaPublisher) PublishBlock(ctx context.Context, block *entity.Block) error {
	if block == nil {
		return apperr.NewInvalidArgErr("block is required", nil)
	}

	payload, err := usecase.MarshalBlockJSON(block)
	if err != nil {
		kp.log.Error("Failed to marshal block payload", "node", block.NodeName, "err", err)
		imetrics.Kafka().PublishErrorsTotal.WithLabelValues("marshal").Inc()
		return apperr.NewBlockPublishErr("failed to marshal block payload", err)
	}

	rec := kp.buildRecord(block, payload)
	err = pattern.Retry(ctx, func(attempt int) error {
		imetrics.Kafka().PublishAttemptsTotal.Inc()
		started := time.Now()
		writeErr := kp.produce(ctx, rec)
		imetrics.Kafka().PublishLatencyMS.Observe(float64(time.Since(started).Milliseconds()))

		if writeErr != nil {
			if kp.shouldRetry(writeErr) {
				imetrics.Kafka().PublishErrorsTotal.WithLabelValues("retriable").Inc()
				kp.log.Warn("Kafka publish attempt failed", "attempt", attempt, "node", block.NodeName, "hash", block.Hash.Hex(), "topic", kp.cfg.Topic, "err", writeErr)
			} else {
				imetrics.Kafka().PublishErrorsTotal.WithLabelValues("fatal").Inc()
				kp.log.Error("Kafka publish failed (non-retriable)", "node", block.NodeName, "hash", block.Hash.Hex(), "topic", kp.cfg.Topic, "err", writeErr)
			}
		}
		return writeErr
	}, kp.retryOpts...)
	if err != nil {
		imetrics.App().ErrorsTotal.WithLabelValues(imetrics.ComponentKafka, "publish").Inc()
		return apperr.NewBlockPublishErr("failed to publish block to kafka", err)
	}

	imetrics.Kafka().PublishedBlocksTotal.WithLabelValues(block.NodeName).Inc()
	kp.log.Trace("Published block to Kafka", "topic", kp.cfg.Topic, "node", block.NodeName, "hash", block.Hash.Hex(), "number", block.Number())
	return nil
}

// produce writes rec once, inside a short transaction when configured.
func (kp *KafkaPublisher) produce(ctx context.Context, rec *kgo.Record) error {
	transactional := kp.cfg.TransactionalID != ""
	if transactional {
		kp.txMu.Lock()
		defer kp.txMu.Unlock()
		if err := kp.client.BeginTransaction(); err != nil {
			return err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, kp.writeTimeout)
	defer cancel()
	writeErr := kp.client.ProduceSync(attemptCtx, rec).FirstErr()

	if transactional {
		if writeErr == nil {
			if err := kp.client.EndTransaction(context.Background(), kgo.TryCommit); err != nil {
				writeErr = err
			}
		} else {
			_ = kp.client.EndTransaction(context.Background(), kgo.TryAbort)
		}
	}
	return writeErr
}

func (kp *KafkaPublisher) buildRecord(block *entity.Block, payload []byte) *kgo.Record {
	return &kgo.Record{
		Topic: kp.cfg.Topic,
		Key:   append([]byte(nil), block.Hash.Bytes()...),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: HeaderBlockNumber, Value: []byte(strconv.FormatUint(block.Number(), 10))},
			{Key: HeaderBlockHash, Value: []byte(block.Hash.Hex())},
			{Key: HeaderNode, Value: []byte(block.NodeName)},
		},
	}
}

func (kp *KafkaPublisher) shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	if kerr.IsRetriable(err) {
		return true
	}
	// the topic may be provisioned shortly after startup
	return errors.Is(err, kerr.UnknownTopicOrPartition)
}

// Close releases the underlying Kafka client.
func (kp *KafkaPublisher) Close() {
	kp.client.Close()
}

func millisecondsOrDefault(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func secondsOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

var _ port.BlockListener = (*KafkaPublisher)(nil)
