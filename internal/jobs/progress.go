package jobs

import (
	"context"
	"time"

	"ckptbench/internal/coordinator"
	"ckptbench/pkg/logger"
)

// ProgressJob periodically logs the checkpoint statistics gathered so
// far, so a long run leaves a trail even when nobody watches the
// client.
type ProgressJob struct {
	coord    *coordinator.Coordinator
	interval time.Duration
}

// NewProgressJob creates a progress job over the given coordinator.
func NewProgressJob(coord *coordinator.Coordinator, interval time.Duration) *ProgressJob {
	return &ProgressJob{coord: coord, interval: interval}
}

// Name returns the job name.
func (j *ProgressJob) Name() string { return "checkpoint-progress" }

// Interval returns how often the job runs.
func (j *ProgressJob) Interval() time.Duration { return j.interval }

// Run logs the running summary. A run with no checkpoints yet stays
// quiet.
func (j *ProgressJob) Run(ctx context.Context) error {
	s := j.coord.Summary()
	if s.Count == 0 {
		return nil
	}
	logger.Infof("progress: %d checkpoints, mean=%.3fs min=%.3fs max=%.3fs stddev=%.3fs",
		s.Count, s.Mean, s.Min, s.Max, s.Stddev)
	return nil
}
