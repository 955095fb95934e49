package mysql

import (
	domain "ckptbench/internal/model"
	"ckptbench/pkg/store/mysql/model"
)

// FromCheckpointResult converts a measured checkpoint result into its
// history row.
func FromCheckpointResult(runID string, r *domain.CheckpointResult) *model.CheckpointResultRow {
	if r == nil {
		return nil
	}

	return &model.CheckpointResultRow{
		RunID:               runID,
		PassNum:             r.PassNum,
		Step:                r.Step,
		CheckpointTime:      r.CheckpointTime,
		CommSize:            r.CommSize,
		NumLayers:           r.NumLayers,
		ModelSize:           r.ModelSize,
		OptimizationGroups:  domain.FormatIntList(r.OptimizationGroups),
		LayerParameters:     domain.FormatIntList(r.LayerParameters),
		CheckpointType:      string(r.CheckpointType),
		PipelineParallelism: r.PipelineParallelism,
		TensorParallelism:   r.TensorParallelism,
	}
}

// FromCheckpointResults converts a whole result log for one run.
func FromCheckpointResults(runID string, results []domain.CheckpointResult) []model.CheckpointResultRow {
	rows := make([]model.CheckpointResultRow, 0, len(results))
	for i := range results {
		rows = append(rows, *FromCheckpointResult(runID, &results[i]))
	}
	return rows
}
