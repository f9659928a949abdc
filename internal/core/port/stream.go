package port

import (
	"context"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/entity"
)

// RawBlockHandler consumes each raw block a stream emits, in stream order.
// A returned error terminates the stream and is reported to its error handler.
type RawBlockHandler func(ctx context.Context, raw *entity.RawBlock) error

// StreamErrorHandler is invoked at most once, when a stream terminates
// abnormally and was not disposed first.
type StreamErrorHandler func(err error)

// Subscription is a cancellable handle to one running raw block stream.
type Subscription interface {
	ID() string
	// Dispose stops the stream. It is idempotent and safe to call from the
	// stream's own callbacks.
	Dispose()
	Disposed() bool
}

// BlockStream is a node client capability producing an unbounded, push-based
// sequence of raw blocks. Opening a stream never blocks on the network.
type BlockStream interface {
	// ReplayPastAndFutureBlocks emits every block from start (inclusive) up to
	// the head, then keeps following new blocks.
	ReplayPastAndFutureBlocks(start uint64, fullTransactions bool, onBlock RawBlockHandler, onError StreamErrorHandler) (Subscription, error)
	// FutureBlocks follows the chain from the current head onwards.
	FutureBlocks(fullTransactions bool, onBlock RawBlockHandler, onError StreamErrorHandler) (Subscription, error)
}
