package interfaces

import (
	"context"
)

// ProcessGroup coordinates the fixed set of ranks taking part in a
// benchmark. Rank 0 is the control rank; the remaining ranks follow
// its broadcasts. Implementations cover a single process, an in-memory
// group for tests, and a socket rendezvous for multi-process runs.
type ProcessGroup interface {
	// Rank returns this process's position in the group, starting at 0.
	Rank() int

	// Size returns the number of ranks in the group.
	Size() int

	// Broadcast sends value from the root rank to every rank and
	// returns the value observed on this rank. All ranks must call it.
	Broadcast(ctx context.Context, value int64, root int) (int64, error)

	// Barrier blocks until every rank in the group has entered it.
	Barrier(ctx context.Context) error

	// Close releases the group's connections. After Close, collective
	// calls on any rank fail.
	Close() error
}
