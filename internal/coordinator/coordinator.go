// Package coordinator synchronizes one checkpoint across every rank
// of a process group. Rank 0 is the control rank: it receives the
// external trigger, broadcasts the step, and is the only rank that
// measures and reports timing. The other ranks loop on the broadcast,
// checkpoint in lockstep and report nothing.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ckptbench/internal/model"
	"ckptbench/pkg/interfaces"
	"ckptbench/pkg/logger"
)

// checkpointEpoch is the epoch every benchmark checkpoint is written
// under. The benchmark simulates repeated checkpoints of one epoch,
// stepping the step counter only.
const checkpointEpoch = 1

// ShutdownStep is the broadcast value that tells follower ranks to
// leave their loop. Real steps are always positive.
const ShutdownStep int64 = -1

// Coordinator runs synchronized checkpoints over a process group.
// All ranks construct one; rank 0 serves DoCheckpoint while the rest
// sit in RunFollower.
type Coordinator struct {
	group     interfaces.ProcessGroup
	mechanism interfaces.CheckpointMechanism
	profile   model.Profile

	mu        sync.Mutex
	times     []float64
	finalized bool
}

// New wires a coordinator to its group and checkpoint mechanism.
func New(group interfaces.ProcessGroup, mechanism interfaces.CheckpointMechanism, profile model.Profile) *Coordinator {
	return &Coordinator{
		group:     group,
		mechanism: mechanism,
		profile:   profile,
	}
}

// Setup blocks until every rank has constructed its coordinator, so
// no trigger can arrive before the whole group is ready. All ranks
// must call it.
func (c *Coordinator) Setup(ctx context.Context) error {
	logger.Infof("rank %d/%d ready (model=%s)", c.group.Rank(), c.group.Size(), c.profile.Name)
	return c.group.Barrier(ctx)
}

// DoCheckpoint runs one synchronized checkpoint and returns the
// result measured on the control rank. Requests are served one at a
// time; overlapping checkpoints would break the barrier discipline.
//
// The measured time spans from just before this rank's checkpoint
// call to just after the post-checkpoint barrier, so it includes the
// slowest rank's completion.
func (c *Coordinator) DoCheckpoint(ctx context.Context, req model.CheckpointRequest) (model.CheckpointResult, error) {
	if c.group.Rank() != 0 {
		return model.CheckpointResult{}, fmt.Errorf("checkpoint can only be triggered on the control rank, this is rank %d", c.group.Rank())
	}
	if req.Step < 1 {
		return model.CheckpointResult{}, fmt.Errorf("step must be positive, got %d", req.Step)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finalized {
		return model.CheckpointResult{}, fmt.Errorf("coordinator is finalized")
	}

	if _, err := c.group.Broadcast(ctx, int64(req.Step), 0); err != nil {
		return model.CheckpointResult{}, fmt.Errorf("broadcast step %d: %w", req.Step, err)
	}
	if err := c.group.Barrier(ctx); err != nil {
		return model.CheckpointResult{}, fmt.Errorf("pre-checkpoint barrier: %w", err)
	}

	start := time.Now()
	if err := c.mechanism.Checkpoint(ctx, checkpointEpoch, req.Step); err != nil {
		return model.CheckpointResult{}, fmt.Errorf("checkpoint step %d: %w", req.Step, err)
	}
	if err := c.group.Barrier(ctx); err != nil {
		return model.CheckpointResult{}, fmt.Errorf("post-checkpoint barrier: %w", err)
	}
	elapsed := time.Since(start).Seconds()

	c.times = append(c.times, elapsed)

	result := model.NewResult(c.profile, c.group.Size())
	result.CheckpointTime = elapsed
	result.Step = req.Step
	result.PassNum = req.PassNum

	logger.Infof("checkpoint pass=%d step=%d took %.3fs", req.PassNum, req.Step, elapsed)
	return result, nil
}

// RunFollower is the loop for every rank other than 0: wait for the
// broadcast step, checkpoint it in lockstep, repeat. It returns nil
// when the control rank broadcasts ShutdownStep or ctx is cancelled,
// and an error if a checkpoint or collective fails.
func (c *Coordinator) RunFollower(ctx context.Context) error {
	if c.group.Rank() == 0 {
		return fmt.Errorf("the control rank serves requests, it does not follow")
	}
	defer c.mechanism.Finalize()

	for {
		step, err := c.group.Broadcast(ctx, 0, 0)
		if err != nil {
			if ctx.Err() != nil {
				logger.Infof("rank %d stopping: %v", c.group.Rank(), ctx.Err())
				return nil
			}
			return fmt.Errorf("rank %d broadcast: %w", c.group.Rank(), err)
		}
		if step == ShutdownStep {
			logger.Infof("rank %d received shutdown", c.group.Rank())
			return nil
		}

		if err := c.group.Barrier(ctx); err != nil {
			return fmt.Errorf("rank %d pre-checkpoint barrier: %w", c.group.Rank(), err)
		}
		if err := c.mechanism.Checkpoint(ctx, checkpointEpoch, int(step)); err != nil {
			return fmt.Errorf("rank %d checkpoint step %d: %w", c.group.Rank(), step, err)
		}
		if err := c.group.Barrier(ctx); err != nil {
			return fmt.Errorf("rank %d post-checkpoint barrier: %w", c.group.Rank(), err)
		}
	}
}

// Finalize releases the followers with the shutdown broadcast, logs
// the timing summary and finalizes this rank's mechanism. Control
// rank only; safe to call once more after a failed run.
func (c *Coordinator) Finalize(ctx context.Context) error {
	if c.group.Rank() != 0 {
		return fmt.Errorf("finalize can only run on the control rank, this is rank %d", c.group.Rank())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finalized {
		return nil
	}
	c.finalized = true

	if _, err := c.group.Broadcast(ctx, ShutdownStep, 0); err != nil {
		logger.Warnf("shutdown broadcast failed: %v", err)
	}

	s := Summarize(c.times)
	if s.Count > 0 {
		logger.Infof("checkpoint times: count=%d mean=%.3fs min=%.3fs max=%.3fs stddev=%.3fs",
			s.Count, s.Mean, s.Min, s.Max, s.Stddev)
	} else {
		logger.Infof("no checkpoints were taken")
	}

	return c.mechanism.Finalize()
}

// Summary returns the statistics over the times measured so far.
func (c *Coordinator) Summary() TimesSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Summarize(c.times)
}

// Rank exposes this rank's position for callers deciding between
// serving and following.
func (c *Coordinator) Rank() int {
	return c.group.Rank()
}

// Size returns the number of ranks in the group.
func (c *Coordinator) Size() int {
	return c.group.Size()
}

// Profile returns the workload profile this coordinator checkpoints.
func (c *Coordinator) Profile() model.Profile {
	return c.profile
}
