package port

import "context"

// CheckpointProvider supplies the last processed block number of a node.
// Absence is a normal answer meaning "start from the live head"; providers
// fail safe to absence instead of returning errors.
type CheckpointProvider interface {
	GetStartPosition(nodeName string) (uint64, bool)
}

// CheckpointStore is a CheckpointProvider that can also be advanced.
type CheckpointStore interface {
	CheckpointProvider
	SaveCheckpoint(ctx context.Context, nodeName string, number uint64) error
}
