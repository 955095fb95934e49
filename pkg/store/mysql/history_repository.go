package mysql

import (
	"context"
	"fmt"

	"ckptbench/pkg/store/mysql/model"
)

// HistoryRepository persists benchmark runs and their checkpoint
// results for comparison across runs.
type HistoryRepository struct {
	ds *Datastore
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(ds *Datastore) *HistoryRepository {
	return &HistoryRepository{ds: ds}
}

// AutoMigrate creates or updates the history tables.
func (r *HistoryRepository) AutoMigrate() error {
	return r.ds.GetDB().AutoMigrate(&model.BenchmarkRun{}, &model.CheckpointResultRow{})
}

// SaveRun stores a run and its result rows in one transaction, so the
// history never contains a run without its measurements.
func (r *HistoryRepository) SaveRun(ctx context.Context, run *model.BenchmarkRun, rows []model.CheckpointResultRow) error {
	if run == nil {
		return fmt.Errorf("run must not be nil")
	}

	return r.ds.ExecTx(ctx, func(ctx context.Context) error {
		if err := r.ds.DB(ctx).Create(run).Error; err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := r.ds.DB(ctx).CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("failed to save results: %w", err)
		}
		return nil
	})
}

// ListRuns returns the most recent runs, newest first.
func (r *HistoryRepository) ListRuns(ctx context.Context, limit int) ([]model.BenchmarkRun, error) {
	if limit <= 0 {
		limit = 20
	}

	var runs []model.BenchmarkRun
	err := r.ds.DB(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// RunResults returns the result rows of one run in measurement order.
func (r *HistoryRepository) RunResults(ctx context.Context, runID string) ([]model.CheckpointResultRow, error) {
	var rows []model.CheckpointResultRow
	err := r.ds.DB(ctx).
		Where("run_id = ?", runID).
		Order("pass_num ASC, step ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load results for run %s: %w", runID, err)
	}
	return rows, nil
}
