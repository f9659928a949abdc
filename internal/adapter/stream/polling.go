package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/entity"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/port"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/apperr"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/applog"
	imetrics "github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/metrics"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/pattern"
)

const (
	modeReplay = "replay"
	modeFollow = "follow"

	defaultPollInterval = time.Second
	defaultFetchTimeout = 10 * time.Second
)

// PollingBlockStream turns a node's JSON-RPC API into a push based raw block
// stream. Every opened stream runs on its own goroutine with its own client,
// tracked by the wait group handed to the constructor.
type PollingBlockStream struct {
	log           applog.AppLogger
	wg            *sync.WaitGroup
	config        *Config
	pollInterval  time.Duration
	fetchTimeout  time.Duration
	newClient     func(context.Context) (rpcClient, error)
	dialRetryOpts []pattern.RetryOption
}

func NewPollingBlockStream(log applog.AppLogger, wg *sync.WaitGroup, cfg *Config, v *validator.Validate) (*PollingBlockStream, error) {
	if err := v.Struct(cfg); err != nil {
		log.Error("invalid config", "err", err)
		return nil, apperr.NewBlockStreamErr("invalid config", err)
	}

	s := &PollingBlockStream{
		log:          log,
		wg:           wg,
		config:       cfg,
		pollInterval: durationOr(cfg.PollIntervalMS, defaultPollInterval),
		fetchTimeout: durationOr(cfg.FetchTimeoutMS, defaultFetchTimeout),
	}
	s.newClient = func(ctx context.Context) (rpcClient, error) {
		return rpc.DialContext(ctx, cfg.URL)
	}
	s.dialRetryOpts = dialRetryOptionsFromConfig(cfg)

	return s, nil
}

func durationOr(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func dialRetryOptionsFromConfig(cfg *Config) []pattern.RetryOption {
	var opts []pattern.RetryOption
	if cfg.DialMaxRetryAttempts > 0 {
		opts = append(opts, pattern.WithMaxAttempts(cfg.DialMaxRetryAttempts))
	} else {
		opts = append(opts, pattern.WithInfiniteAttempts())
	}
	if cfg.DialRetryInitialBackoffMS > 0 {
		opts = append(opts, pattern.WithInitialDelay(time.Duration(cfg.DialRetryInitialBackoffMS)*time.Millisecond))
	}
	if cfg.DialRetryMaxBackoffMS > 0 {
		opts = append(opts, pattern.WithMaxDelay(time.Duration(cfg.DialRetryMaxBackoffMS)*time.Millisecond))
	}
	if cfg.DialRetryJitter > 0 {
		opts = append(opts, pattern.WithJitter(cfg.DialRetryJitter))
	}
	return opts
}

// ReplayPastAndFutureBlocks emits every block from start up to the head and
// keeps following the chain afterwards.
func (s *PollingBlockStream) ReplayPastAndFutureBlocks(start uint64, fullTransactions bool, onBlock port.RawBlockHandler, onError port.StreamErrorHandler) (port.Subscription, error) {
	return s.open(modeReplay, &start, fullTransactions, onBlock, onError)
}

// FutureBlocks follows the chain starting at the head observed when the
// stream connects.
func (s *PollingBlockStream) FutureBlocks(fullTransactions bool, onBlock port.RawBlockHandler, onError port.StreamErrorHandler) (port.Subscription, error) {
	return s.open(modeFollow, nil, fullTransactions, onBlock, onError)
}

func (s *PollingBlockStream) open(mode string, start *uint64, full bool, onBlock port.RawBlockHandler, onError port.StreamErrorHandler) (port.Subscription, error) {
	if onBlock == nil || onError == nil {
		return nil, apperr.NewInvalidArgErr("block and error handlers are required", nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &streamSubscription{id: uuid.NewString(), cancel: cancel}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		imetrics.Stream().ActiveStreams.Inc()
		defer imetrics.Stream().ActiveStreams.Dec()

		err := s.run(ctx, sub.id, mode, start, full, onBlock)
		if err == nil || sub.Disposed() || ctx.Err() != nil {
			s.log.Trace("Block stream stopped", "stream", sub.id, "mode", mode)
			return
		}
		s.log.Warn("Block stream terminated", "stream", sub.id, "mode", mode, "err", err)
		imetrics.App().WarningsTotal.WithLabelValues(imetrics.ComponentStream, mode).Inc()
		onError(err)
	}()

	return sub, nil
}

// run drives one stream until ctx is cancelled (nil) or a fetch or the
// handler fails (non-nil).
func (s *PollingBlockStream) run(ctx context.Context, id, mode string, start *uint64, full bool, onBlock port.RawBlockHandler) error {
	client, err := s.connectClient(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return apperr.NewBlockStreamErr("failed to connect to node", err)
	}
	defer client.Close()

	var next uint64
	if start != nil {
		next = *start
	} else {
		head, err := s.blockNumber(ctx, client, mode)
		if err != nil {
			return stopOrErr(ctx, err)
		}
		next = head
	}
	s.log.Debug("Block stream started", "stream", id, "mode", mode, "from", next)

	for {
		head, err := s.blockNumber(ctx, client, mode)
		if err != nil {
			return stopOrErr(ctx, err)
		}

		for next <= head {
			raw, err := s.fetchBlock(ctx, client, mode, next, full)
			if err != nil {
				return stopOrErr(ctx, err)
			}
			if err := onBlock(ctx, raw); err != nil {
				return stopOrErr(ctx, apperr.NewBlockStreamErr(fmt.Sprintf("handler rejected block %d", next), err))
			}
			if raw.Empty() {
				// the node announced the height but cannot serve it yet
				break
			}
			imetrics.Stream().StreamedBlocksTotal.WithLabelValues(mode).Inc()
			next++
		}

		if err := pattern.Sleep(ctx, s.pollInterval); err != nil {
			return nil
		}
	}
}

func stopOrErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *PollingBlockStream) blockNumber(ctx context.Context, client rpcClient, mode string) (uint64, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	var head hexutil.Uint64
	if err := client.CallContext(fetchCtx, &head, "eth_blockNumber"); err != nil {
		imetrics.Stream().FetchErrorsTotal.WithLabelValues(mode, classifyStreamError(err)).Inc()
		return 0, apperr.NewBlockStreamErr("failed to read chain head", err)
	}
	return uint64(head), nil
}

func (s *PollingBlockStream) fetchBlock(ctx context.Context, client rpcClient, mode string, number uint64, full bool) (*entity.RawBlock, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	started := time.Now()
	var result json.RawMessage
	err := client.CallContext(fetchCtx, &result, "eth_getBlockByNumber", hexutil.EncodeUint64(number), full)
	imetrics.Stream().FetchLatencyMS.WithLabelValues(mode).Observe(float64(time.Since(started).Milliseconds()))
	if err != nil {
		imetrics.Stream().FetchErrorsTotal.WithLabelValues(mode, classifyStreamError(err)).Inc()
		return nil, apperr.NewBlockStreamErr(fmt.Sprintf("failed to fetch block %d", number), err)
	}
	return &entity.RawBlock{Number: number, Result: result}, nil
}

func (s *PollingBlockStream) connectClient(ctx context.Context) (rpcClient, error) {
	var client rpcClient
	opts := []pattern.RetryOption{
		pattern.WithInfiniteAttempts(),
		pattern.WithInitialDelay(500 * time.Millisecond),
		pattern.WithMaxDelay(10 * time.Second),
		pattern.WithMultiplier(2.0),
		pattern.WithJitter(0.2),
	}
	opts = append(opts, s.dialRetryOpts...)

	err := pattern.Retry(
		ctx,
		func(attempt int) error {
			c, err := s.newClient(ctx)
			if err != nil {
				s.log.Warn("Node dial failed", "url", s.config.URL, "attempt", attempt, "err", err)
				imetrics.App().WarningsTotal.WithLabelValues(imetrics.ComponentStream, "dial").Inc()
				return err
			}
			client = c
			return nil
		},
		opts...,
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func classifyStreamError(err error) string {
	var netErr net.Error
	var rpcErr rpc.Error

	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &rpcErr):
		return "rpc"
	case errors.As(err, &netErr):
		return "network"
	default:
		return "other"
	}
}

type rpcClient interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	Close()
}

// streamSubscription is the handle of one running stream goroutine.
type streamSubscription struct {
	id       string
	cancel   context.CancelFunc
	disposed atomic.Bool
}

func (s *streamSubscription) ID() string { return s.id }

func (s *streamSubscription) Dispose() {
	if s.disposed.CompareAndSwap(false, true) {
		s.cancel()
	}
}

func (s *streamSubscription) Disposed() bool { return s.disposed.Load() }

var _ port.BlockStream = (*PollingBlockStream)(nil)
