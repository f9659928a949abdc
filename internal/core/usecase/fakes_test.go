package usecase

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/entity"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/port"
)

type stubLogger struct{}

func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}

type fakeSubscription struct {
	id       string
	disposed atomic.Bool
}

func (f *fakeSubscription) ID() string     { return f.id }
func (f *fakeSubscription) Dispose()       { f.disposed.Store(true) }
func (f *fakeSubscription) Disposed() bool { return f.disposed.Load() }

// fakeStrategy records every stream it opens. When gate is set, Subscribe
// signals entered and blocks until gate is closed.
type fakeStrategy struct {
	mu      sync.Mutex
	sinks   []Sink
	subs    []*fakeSubscription
	err     error
	entered chan struct{}
	gate    chan struct{}
	convert func(raw *entity.RawBlock) Conversion
	// onOpen runs after a stream is created, before Subscribe returns it.
	onOpen func(sink Sink)
}

func (f *fakeStrategy) Subscribe(sink Sink) (port.Subscription, error) {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return nil, err
	}
	sub := &fakeSubscription{id: fmt.Sprintf("sub-%d", len(f.subs)+1)}
	f.sinks = append(f.sinks, sink)
	f.subs = append(f.subs, sub)
	onOpen := f.onOpen
	f.mu.Unlock()

	if onOpen != nil {
		onOpen(sink)
	}
	return sub, nil
}

func (f *fakeStrategy) ConvertToDomainBlock(raw *entity.RawBlock) Conversion {
	if f.convert != nil {
		return f.convert(raw)
	}
	if raw.Empty() {
		return Skipped()
	}
	return Converted(testBlock(raw.Number))
}

func (f *fakeStrategy) sink(i int) Sink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinks[i]
}

func (f *fakeStrategy) sub(i int) *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[i]
}

func (f *fakeStrategy) opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type fakeCheckpoints struct {
	start uint64
	ok    bool
}

func (f fakeCheckpoints) GetStartPosition(string) (uint64, bool) { return f.start, f.ok }

// manualExecutor queues tasks until the test runs them.
type manualExecutor struct {
	mu    sync.Mutex
	tasks []func()
}

func (e *manualExecutor) Run(fn func()) {
	e.mu.Lock()
	e.tasks = append(e.tasks, fn)
	e.mu.Unlock()
}

func (e *manualExecutor) pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

func (e *manualExecutor) take() func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.tasks) == 0 {
		return nil
	}
	fn := e.tasks[0]
	e.tasks = e.tasks[1:]
	return fn
}

func (e *manualExecutor) runAll() {
	for fn := e.take(); fn != nil; fn = e.take() {
		fn()
	}
}

// callLog collects listener invocations across listeners in call order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) listener(name string, err error) port.BlockListener {
	return port.BlockListenerFunc(func(_ context.Context, b *entity.Block) error {
		c.mu.Lock()
		c.calls = append(c.calls, fmt.Sprintf("%s:%d", name, b.Number()))
		c.mu.Unlock()
		return err
	})
}

func (c *callLog) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func testBlock(number uint64) *entity.Block {
	return &entity.Block{
		NodeName: "node-a",
		Hash:     common.BigToHash(new(big.Int).SetUint64(number + 1000)),
		Header:   entity.Header{Number: number, ParentHash: common.BigToHash(new(big.Int).SetUint64(number + 999))},
	}
}

func rawBlock(number uint64) *entity.RawBlock {
	return &entity.RawBlock{Number: number, Result: []byte(fmt.Sprintf(`{"number":"0x%x"}`, number))}
}

type harness struct {
	subscriber *BlockSubscriber
	strategy   *fakeStrategy
	executor   *manualExecutor
	calls      *callLog
	registry   *ListenerRegistry
}

func newHarness(t require.TestingT, resubscribe ResubscribeConfig) *harness {
	h := &harness{
		strategy: &fakeStrategy{},
		executor: &manualExecutor{},
		calls:    &callLog{},
		registry: NewListenerRegistry(),
	}
	if resubscribe.InitialDelayMS == 0 {
		resubscribe.InitialDelayMS = 1
	}
	s, err := NewBlockSubscriber(stubLogger{}, &SubscriberConfig{NodeName: "node-a", Resubscribe: resubscribe},
		validator.New(), h.strategy, fakeCheckpoints{start: 42, ok: true}, h.executor, h.registry)
	require.NoError(t, err)
	h.subscriber = s
	return h
}
