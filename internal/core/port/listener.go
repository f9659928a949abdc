package port

import (
	"context"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/entity"
)

// BlockListener is notified once per delivered domain block.
type BlockListener interface {
	OnBlock(ctx context.Context, block *entity.Block) error
}

// BlockListenerFunc adapts a function to BlockListener.
type BlockListenerFunc func(ctx context.Context, block *entity.Block) error

func (f BlockListenerFunc) OnBlock(ctx context.Context, block *entity.Block) error {
	return f(ctx, block)
}

// ListenerSet is an externally owned, ordered collection of listeners.
type ListenerSet interface {
	ForEach(fn func(BlockListener))
}
