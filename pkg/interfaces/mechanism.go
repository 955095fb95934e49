package interfaces

import (
	"context"
)

// CheckpointMechanism writes one rank's share of model state to
// storage. Every rank holds its own mechanism; the coordinator decides
// when each rank checkpoints.
type CheckpointMechanism interface {
	// Checkpoint writes the state files for one (epoch, step) pair.
	Checkpoint(ctx context.Context, epoch, step int) error

	// Finalize releases resources held by the mechanism. Called once,
	// after the last checkpoint.
	Finalize() error
}
