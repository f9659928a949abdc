package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/entity"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/port"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/apperr"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/applog"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/metrics"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/pattern"
)

// ErrSubscriptionClosed is returned to a stream whose handle is no longer the
// active one, telling it to stop.
var ErrSubscriptionClosed = errors.New("block subscription closed")

type State int32

const (
	StateUnsubscribed State = iota
	StateSubscribing
	StateActive
	StateRecovering
)

func (s State) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// Strategy is the node specific part of a block subscription: how the raw
// stream is opened and how raw blocks are normalized.
type Strategy interface {
	// Subscribe opens a raw block stream that reports to sink. It must not
	// block on the network.
	Subscribe(sink Sink) (port.Subscription, error)
	ConvertToDomainBlock(raw *entity.RawBlock) Conversion
}

// Sink is what a strategy's stream reports to. Every sink is bound to the
// subscription it was opened for; once that subscription is replaced or
// cancelled the sink rejects blocks and ignores errors.
type Sink interface {
	StartPosition() (uint64, bool)
	Dispatch(ctx context.Context, raw *entity.RawBlock) error
	OnError(err error)
}

// BlockSubscriber holds the behavior shared by every node strategy: start
// position lookup, dispatch to listeners, resubscribe on failure and
// unsubscribe. At most one stream handle is active at any time.
type BlockSubscriber struct {
	log         applog.AppLogger
	cfg         SubscriberConfig
	retry       pattern.RetryConfig
	strategy    Strategy
	checkpoints port.CheckpointProvider
	executor    port.AsyncExecutor
	listeners   port.ListenerSet
	failures    atomic.Int32

	mu             sync.Mutex
	state          State
	generation     uint64
	active         port.Subscription
	rng            *rand.Rand
	recoveryGen    uint64
	cancelRecovery context.CancelFunc
}

func NewBlockSubscriber(
	log applog.AppLogger,
	cfg *SubscriberConfig,
	v *validator.Validate,
	strategy Strategy,
	checkpoints port.CheckpointProvider,
	executor port.AsyncExecutor,
	listeners port.ListenerSet,
) (*BlockSubscriber, error) {
	if log == nil || cfg == nil || v == nil {
		return nil, apperr.NewInvalidArgErr("logger, config and validator are required", nil)
	}
	if strategy == nil || checkpoints == nil || executor == nil || listeners == nil {
		return nil, apperr.NewInvalidArgErr("strategy, checkpoint provider, executor and listeners are required", nil)
	}
	if err := v.Struct(cfg); err != nil {
		return nil, apperr.NewInvalidArgErr("invalid subscriber config", err)
	}

	s := &BlockSubscriber{
		log:         log,
		cfg:         *cfg,
		retry:       cfg.Resubscribe.retryConfig(),
		strategy:    strategy,
		checkpoints: checkpoints,
		executor:    executor,
		listeners:   listeners,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	metrics.Subscription().State.WithLabelValues(cfg.NodeName).Set(float64(StateUnsubscribed))
	return s, nil
}

func (s *BlockSubscriber) NodeName() string { return s.cfg.NodeName }

func (s *BlockSubscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active returns the handle of the currently running stream, or nil.
func (s *BlockSubscriber) Active() port.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// GetStartPosition returns the block a new stream should replay from, if
// the node has a recorded checkpoint.
func (s *BlockSubscriber) GetStartPosition() (uint64, bool) {
	start, ok := s.checkpoints.GetStartPosition(s.cfg.NodeName)
	if ok {
		s.log.Debug("Resolved start position", "node", s.cfg.NodeName, "start", start)
	} else {
		s.log.Debug("No start position recorded, following chain head", "node", s.cfg.NodeName)
	}
	return start, ok
}

// Subscribe opens the stream and returns its handle. It fails when the
// subscriber is already running; call Unsubscribe first.
func (s *BlockSubscriber) Subscribe() (port.Subscription, error) {
	s.mu.Lock()
	if s.state != StateUnsubscribed {
		state := s.state
		s.mu.Unlock()
		return nil, apperr.NewBlockSubscribeErr(fmt.Sprintf("node %s is already subscribed (%s)", s.cfg.NodeName, state), nil)
	}
	s.generation++
	gen := s.generation
	s.failures.Store(0)
	s.setState(StateSubscribing)
	s.mu.Unlock()

	s.log.Info("Subscribing to blocks", "node", s.cfg.NodeName)
	sub, err := s.open(gen)
	if errors.Is(err, ErrSubscriptionClosed) {
		s.log.Warn("Block stream replaced before it became active", "node", s.cfg.NodeName, "state", s.State())
		return nil, err
	}
	if err != nil {
		s.mu.Lock()
		if s.generation == gen {
			s.setState(StateUnsubscribed)
		}
		s.mu.Unlock()
		s.log.Error("Failed to subscribe to blocks", "node", s.cfg.NodeName, "err", err)
		return nil, err
	}
	return sub, nil
}

// Unsubscribe disposes the active stream and cancels any pending
// resubscribe. It is idempotent; a resubscribe still in flight disposes
// its own handle instead of installing it.
func (s *BlockSubscriber) Unsubscribe() {
	s.mu.Lock()
	if s.state == StateUnsubscribed {
		s.mu.Unlock()
		return
	}
	s.generation++
	active := s.active
	s.active = nil
	cancel := s.cancelRecovery
	s.cancelRecovery = nil
	s.setState(StateUnsubscribed)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if active != nil {
		active.Dispose()
	}
	s.log.Info("Unsubscribed from blocks", "node", s.cfg.NodeName)
}

// open asks the strategy for a stream bound to gen and installs it. When gen
// was superseded meanwhile the new handle is disposed and the returned error
// wraps ErrSubscriptionClosed.
func (s *BlockSubscriber) open(gen uint64) (port.Subscription, error) {
	sub, err := s.strategy.Subscribe(&generationSink{subscriber: s, generation: gen})
	if err != nil {
		return nil, apperr.NewBlockSubscribeErr("failed to open block stream", err)
	}
	if sub == nil {
		return nil, apperr.NewBlockSubscribeErr("strategy returned no subscription", nil)
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		sub.Dispose()
		s.log.Debug("Disposed superseded block stream", "node", s.cfg.NodeName, "subscription", sub.ID())
		return nil, apperr.NewBlockSubscribeErr("block stream superseded before it became active", ErrSubscriptionClosed)
	}
	s.active = sub
	s.setState(StateActive)
	s.mu.Unlock()

	s.log.Info("Block stream active", "node", s.cfg.NodeName, "subscription", sub.ID())
	return sub, nil
}

func (s *BlockSubscriber) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen && s.state != StateUnsubscribed
}

func (s *BlockSubscriber) dispatch(ctx context.Context, gen uint64, raw *entity.RawBlock) error {
	if !s.current(gen) {
		return ErrSubscriptionClosed
	}

	started := time.Now()
	m := metrics.Subscription()
	node := s.cfg.NodeName

	conv := s.strategy.ConvertToDomainBlock(raw)
	switch conv.Kind {
	case ConversionSkipped:
		m.SkippedBlocksTotal.WithLabelValues(node).Inc()
		s.log.Debug("Ignoring empty block envelope", "node", node, "number", rawNumber(raw))
		return nil
	case ConversionFailed:
		m.ConversionErrorsTotal.WithLabelValues(node).Inc()
		metrics.App().ErrorsTotal.WithLabelValues(metrics.ComponentSubscriber, "convert").Inc()
		return conv.Err
	}

	block := conv.Block
	s.listeners.ForEach(func(l port.BlockListener) {
		if err := l.OnBlock(ctx, block); err != nil {
			m.ListenerErrorsTotal.WithLabelValues(node).Inc()
			s.log.Error("An error occurred when processing block",
				"node", node, "number", block.Number(), "hash", block.Hash.Hex(), "err", err)
		}
	})

	s.failures.Store(0)
	m.DispatchedBlocksTotal.WithLabelValues(node).Inc()
	m.DispatchLatencyMS.WithLabelValues(node).Observe(float64(time.Since(started).Milliseconds()))
	s.log.Trace("Dispatched block", "node", node, "number", block.Number(), "hash", block.Hash.Hex())
	return nil
}

// onError replaces a failed stream. Only the first error of the active
// generation triggers recovery; later and stale reports are dropped.
func (s *BlockSubscriber) onError(gen uint64, err error) {
	s.mu.Lock()
	if s.generation != gen || s.state == StateUnsubscribed {
		s.mu.Unlock()
		s.log.Debug("Ignoring error from superseded block stream", "node", s.cfg.NodeName, "err", err)
		return
	}
	failed := s.active
	s.active = nil
	s.generation++
	next := s.generation
	attempt := int(s.failures.Add(1))
	delay := s.retry.Backoff(attempt, s.rng)
	if s.cancelRecovery != nil {
		s.cancelRecovery()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelRecovery = cancel
	s.recoveryGen = next
	s.setState(StateRecovering)
	s.mu.Unlock()

	s.log.Error("Block stream failed, resubscribing",
		"node", s.cfg.NodeName, "attempt", attempt, "delay", delay, "err", err)
	metrics.App().ErrorsTotal.WithLabelValues(metrics.ComponentSubscriber, "stream").Inc()
	if failed != nil {
		failed.Dispose()
	}

	s.executor.Run(func() { s.resubscribe(ctx, next, attempt, delay) })
}

func (s *BlockSubscriber) resubscribe(ctx context.Context, gen uint64, attempt int, delay time.Duration) {
	defer s.finishRecovery(gen)
	m := metrics.Subscription()
	node := s.cfg.NodeName

	if s.retry.Exhausted(attempt) {
		s.mu.Lock()
		if s.generation == gen {
			s.generation++
			s.setState(StateUnsubscribed)
		}
		s.mu.Unlock()
		m.ResubscribesTotal.WithLabelValues(node, "exhausted").Inc()
		s.log.Error("Giving up on block subscription after repeated failures", "node", node, "failures", attempt)
		return
	}

	if err := pattern.Sleep(ctx, delay); err != nil {
		m.ResubscribesTotal.WithLabelValues(node, "cancelled").Inc()
		return
	}

	err := pattern.Retry(ctx, func(try int) error {
		if !s.transition(gen, StateSubscribing) {
			return ErrSubscriptionClosed
		}
		if try > 1 {
			s.log.Warn("Retrying block resubscribe", "node", node, "try", try)
		}
		_, err := s.open(gen)
		if err != nil && !errors.Is(err, ErrSubscriptionClosed) {
			s.transition(gen, StateRecovering)
		}
		return err
	},
		pattern.WithInfiniteAttempts(),
		pattern.WithInitialDelay(s.retry.InitialDelay),
		pattern.WithMaxDelay(s.retry.MaxDelay),
		pattern.WithMultiplier(s.retry.Multiplier),
		pattern.WithJitter(s.retry.Jitter),
		pattern.WithShouldRetry(func(err error) bool { return !errors.Is(err, ErrSubscriptionClosed) }),
	)
	switch {
	case err == nil && s.current(gen):
		m.ResubscribesTotal.WithLabelValues(node, "success").Inc()
		s.log.Info("Resubscribed to blocks", "node", node, "attempt", attempt)
	default:
		m.ResubscribesTotal.WithLabelValues(node, "cancelled").Inc()
		s.log.Debug("Resubscribe abandoned", "node", node, "err", err)
	}
}

// transition moves to state while gen is still the live generation.
func (s *BlockSubscriber) transition(gen uint64, state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.state == StateUnsubscribed {
		return false
	}
	s.setState(state)
	return true
}

func (s *BlockSubscriber) finishRecovery(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recoveryGen == gen && s.cancelRecovery != nil {
		s.cancelRecovery()
		s.cancelRecovery = nil
	}
}

// setState must be called with mu held.
func (s *BlockSubscriber) setState(state State) {
	s.state = state
	metrics.Subscription().State.WithLabelValues(s.cfg.NodeName).Set(float64(state))
}

func rawNumber(raw *entity.RawBlock) uint64 {
	if raw == nil {
		return 0
	}
	return raw.Number
}

type generationSink struct {
	subscriber *BlockSubscriber
	generation uint64
}

func (g *generationSink) StartPosition() (uint64, bool) {
	return g.subscriber.GetStartPosition()
}

func (g *generationSink) Dispatch(ctx context.Context, raw *entity.RawBlock) error {
	return g.subscriber.dispatch(ctx, g.generation, raw)
}

func (g *generationSink) OnError(err error) {
	g.subscriber.onError(g.generation, err)
}

var _ port.BlockSubscriptionStrategy = (*BlockSubscriber)(nil)
