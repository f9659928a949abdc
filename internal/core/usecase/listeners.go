package usecase

import (
	"context"
	"slices"
	"sync"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/entity"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/port"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/apperr"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/applog"
)

// ListenerRegistry is an ordered listener collection that may be extended
// while subscriptions are dispatching. Iteration works on a snapshot.
type ListenerRegistry struct {
	mu        sync.RWMutex
	listeners []port.BlockListener
}

func NewListenerRegistry(listeners ...port.BlockListener) *ListenerRegistry {
	r := &ListenerRegistry{}
	for _, l := range listeners {
		r.Register(l)
	}
	return r
}

func (r *ListenerRegistry) Register(l port.BlockListener) {
	if l == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

func (r *ListenerRegistry) ForEach(fn func(port.BlockListener)) {
	r.mu.RLock()
	snapshot := slices.Clone(r.listeners)
	r.mu.RUnlock()

	for _, l := range snapshot {
		fn(l)
	}
}

func (r *ListenerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// CheckpointListener records each delivered block as the node's new start
// position. Register it after the listeners that do the actual work.
type CheckpointListener struct {
	store port.CheckpointStore
}

func NewCheckpointListener(store port.CheckpointStore) (*CheckpointListener, error) {
	if store == nil {
		return nil, apperr.NewInvalidArgErr("checkpoint store is required", nil)
	}
	return &CheckpointListener{store: store}, nil
}

func (c *CheckpointListener) OnBlock(ctx context.Context, block *entity.Block) error {
	return c.store.SaveCheckpoint(ctx, block.NodeName, block.Number())
}

type LoggingListener struct {
	log applog.AppLogger
}

func NewLoggingListener(log applog.AppLogger) *LoggingListener {
	return &LoggingListener{log: log}
}

func (l *LoggingListener) OnBlock(_ context.Context, block *entity.Block) error {
	l.log.Debug("Received block",
		"node", block.NodeName,
		"number", block.Number(),
		"hash", block.Hash.Hex(),
		"txs", len(block.Transactions),
	)
	return nil
}

var (
	_ port.ListenerSet   = (*ListenerRegistry)(nil)
	_ port.BlockListener = (*CheckpointListener)(nil)
	_ port.BlockListener = (*LoggingListener)(nil)
)
