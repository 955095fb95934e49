// Package driver runs the benchmark from the client side: it sweeps
// the configured passes and steps, triggers one remote checkpoint per
// step, paces between steps, samples device utilization alongside,
// and persists everything at teardown. Teardown runs exactly once,
// whether the run finished, failed or was interrupted.
package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"ckptbench/internal/coordinator"
	"ckptbench/internal/iostat"
	"ckptbench/internal/model"
	"ckptbench/internal/output"
	"ckptbench/pkg/config"
	"ckptbench/pkg/logger"
	"ckptbench/pkg/store/mysql"
	storemodel "ckptbench/pkg/store/mysql/model"

	"github.com/tidwall/pretty"
)

// teardownTimeout bounds the flush work after the run context is
// already gone.
const teardownTimeout = 30 * time.Second

// Driver owns one benchmark run.
type Driver struct {
	cfg       *config.Config
	client    *Client
	collector *iostat.Collector
	artifacts *output.Artifacts

	results     []model.CheckpointResult
	startedAt   time.Time
	interrupted bool

	teardownOnce sync.Once
	teardownErr  error
}

// New builds a driver from the configuration. Validation has already
// happened; the config is taken as-is.
func New(cfg *config.Config) *Driver {
	d := &Driver{
		cfg:    cfg,
		client: NewClient(cfg.Server.Host, cfg.Server.Port, cfg.Server.APIKey),
	}
	if cfg.Iostat.Enabled {
		d.collector = iostat.NewCollector(cfg.Iostat.Interval)
	}
	return d
}

// Setup creates the run's output directory, waits for the endpoint to
// answer and starts the sampler. Any failure here is fatal for the
// run, before the timing loop begins.
func (d *Driver) Setup(ctx context.Context) error {
	artifacts, err := output.NewArtifacts(d.cfg.Run.ResultsDir)
	if err != nil {
		return err
	}
	d.artifacts = artifacts
	d.startedAt = time.Now()

	if err := d.client.WaitReady(ctx); err != nil {
		return err
	}

	if d.collector != nil {
		if err := d.collector.Start(ctx); err != nil {
			return err
		}
	}

	logger.Infof("run %s: %d passes x %d steps against %s (model=%s)",
		d.artifacts.RunID(), d.cfg.Run.NumPasses, d.cfg.Run.NumSteps,
		d.cfg.Server.Host, d.cfg.Checkpoint.Model)
	return nil
}

// DoCheckpoint triggers one checkpoint and appends its result to the
// run's result log. The run totals are stamped here; the server only
// sees the (step, pass) identity of the call.
func (d *Driver) DoCheckpoint(ctx context.Context, pass, step int) error {
	result, err := d.client.Checkpoint(ctx, model.CheckpointRequest{
		Step:    step,
		PassNum: pass,
	})
	if err != nil {
		return err
	}

	result.Step = step
	result.PassNum = pass
	result.NumSteps = d.cfg.Run.NumSteps
	result.NumPasses = d.cfg.Run.NumPasses
	d.results = append(d.results, *result)

	if d.cfg.Run.Verbose {
		if data, err := json.Marshal(result); err == nil {
			logger.Infof("result: %s", pretty.Ugly(data))
		}
	} else {
		logger.Infof("pass %d/%d step %d/%d: %.3fs",
			pass, d.cfg.Run.NumPasses, step, d.cfg.Run.NumSteps, result.CheckpointTime)
	}
	return nil
}

// DoCheckpointPass sweeps every step of one pass, pacing between
// checkpoints. The run's final checkpoint is not followed by a sleep.
func (d *Driver) DoCheckpointPass(ctx context.Context, pass int) error {
	for step := 1; step <= d.cfg.Run.NumSteps; step++ {
		if err := d.DoCheckpoint(ctx, pass, step); err != nil {
			return fmt.Errorf("pass %d step %d: %w", pass, step, err)
		}
		if pass == d.cfg.Run.NumPasses && step == d.cfg.Run.NumSteps {
			continue
		}
		if err := d.pace(ctx); err != nil {
			return err
		}
	}
	return nil
}

// DoPasses runs every configured pass in order.
func (d *Driver) DoPasses(ctx context.Context) error {
	for pass := 1; pass <= d.cfg.Run.NumPasses; pass++ {
		if err := d.DoCheckpointPass(ctx, pass); err != nil {
			if ctx.Err() != nil {
				d.interrupted = true
				logger.Warnf("run interrupted after %d checkpoints", len(d.results))
			}
			return err
		}
	}
	return nil
}

func (d *Driver) pace(ctx context.Context) error {
	sleep := d.cfg.Run.SleepDuration()
	if sleep <= 0 {
		return nil
	}
	select {
	case <-time.After(sleep):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Teardown flushes the run's artifacts: iostat samples, the result
// table, the manifest and the optional history push. It runs once; a
// second call returns the first call's outcome.
func (d *Driver) Teardown(ctx context.Context) error {
	d.teardownOnce.Do(func() {
		d.teardownErr = d.teardown(ctx)
	})
	return d.teardownErr
}

func (d *Driver) teardown(ctx context.Context) error {
	var errs []error

	if d.collector != nil {
		report, err := d.collector.Stop()
		if err != nil {
			logger.Warnf("stopping iostat: %v", err)
			errs = append(errs, err)
		} else if d.artifacts != nil {
			if err := d.artifacts.WriteIostat(report); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if d.artifacts == nil {
		return errors.Join(errs...)
	}

	// The result table is the run's product; it is written before
	// anything that could still fail.
	if err := d.artifacts.WriteResults(d.results); err != nil {
		errs = append(errs, err)
	}

	summary := d.summarizeResults()

	info := output.RunInfo{
		StartedAt:   d.startedAt,
		FinishedAt:  time.Now(),
		Interrupted: d.interrupted,
		Records:     len(d.results),
		Summary:     summary,
		Config:      d.cfg,
	}
	if err := d.artifacts.WriteRunInfo(info); err != nil {
		errs = append(errs, err)
	}

	if d.cfg.Run.Verbose && len(d.results) > 0 {
		if s, err := d.client.Summary(ctx); err == nil {
			logger.Infof("server summary: count=%d mean=%.3fs min=%.3fs max=%.3fs stddev=%.3fs",
				s.Count, s.Mean, s.Min, s.Max, s.Stddev)
		}
	}

	if d.cfg.History.Enabled && len(d.results) > 0 {
		if err := d.pushHistory(ctx, summary); err != nil {
			logger.Errorf("history push failed: %v", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// summarizeResults computes the timing summary over the completed
// checkpoints, or nil when there are none.
func (d *Driver) summarizeResults() *coordinator.TimesSummary {
	if len(d.results) == 0 {
		return nil
	}
	times := make([]float64, len(d.results))
	for i, r := range d.results {
		times[i] = r.CheckpointTime
	}
	s := coordinator.Summarize(times)
	return &s
}

// pushHistory stores the run in the MySQL history. The connection is
// only opened here, after the timing loop, so the sink never competes
// with the measurement.
func (d *Driver) pushHistory(ctx context.Context, summary *coordinator.TimesSummary) error {
	repo, err := mysql.NewRepository(d.cfg.History.DSN())
	if err != nil {
		return fmt.Errorf("connect history: %w", err)
	}
	defer repo.Close()

	if err := repo.History.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate history: %w", err)
	}

	run := &storemodel.BenchmarkRun{
		RunID:       d.artifacts.RunID(),
		Model:       d.cfg.Checkpoint.Model,
		CommSize:    d.results[0].CommSize,
		NumSteps:    d.cfg.Run.NumSteps,
		NumPasses:   d.cfg.Run.NumPasses,
		Records:     len(d.results),
		Interrupted: d.interrupted,
		MeanTime:    summary.Mean,
		MaxTime:     summary.Max,
		StartedAt:   d.startedAt,
		FinishedAt:  time.Now(),
	}
	rows := mysql.FromCheckpointResults(run.RunID, d.results)

	if err := repo.History.SaveRun(ctx, run, rows); err != nil {
		return err
	}
	logger.Infof("run %s pushed to history (%d rows)", run.RunID, len(rows))
	return nil
}

// Run is the whole benchmark: setup, all passes, teardown. Teardown
// runs on every exit path with its own deadline, so an interrupted
// run still flushes the results gathered so far.
func (d *Driver) Run(ctx context.Context) (err error) {
	if err := d.Setup(ctx); err != nil {
		return err
	}

	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if terr := d.Teardown(tctx); terr != nil && err == nil {
			err = terr
		}
	}()

	return d.DoPasses(ctx)
}

// Results returns a copy of the result log gathered so far.
func (d *Driver) Results() []model.CheckpointResult {
	return append([]model.CheckpointResult(nil), d.results...)
}

// Artifacts exposes the run's output location once Setup has run.
func (d *Driver) Artifacts() *output.Artifacts {
	return d.artifacts
}
