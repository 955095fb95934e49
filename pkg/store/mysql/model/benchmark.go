package model

import "time"

// BenchmarkRun is one completed (or interrupted) benchmark run.
type BenchmarkRun struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RunID       string    `gorm:"column:run_id;type:varchar(36);not null;uniqueIndex" json:"run_id"`
	Model       string    `gorm:"column:model;type:varchar(64);not null;index" json:"model"`
	CommSize    int       `gorm:"column:comm_size;not null" json:"comm_size"`
	NumSteps    int       `gorm:"column:num_steps;not null" json:"num_steps"`
	NumPasses   int       `gorm:"column:num_passes;not null" json:"num_passes"`
	Records     int       `gorm:"column:records;not null" json:"records"`
	Interrupted bool      `gorm:"column:interrupted;not null;default:false" json:"interrupted"`
	MeanTime    float64   `gorm:"column:mean_time;type:decimal(12,6)" json:"mean_time"`
	MaxTime     float64   `gorm:"column:max_time;type:decimal(12,6)" json:"max_time"`
	StartedAt   time.Time `gorm:"column:started_at;not null;index" json:"started_at"`
	FinishedAt  time.Time `gorm:"column:finished_at;not null" json:"finished_at"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName returns the table name for BenchmarkRun
func (BenchmarkRun) TableName() string {
	return "benchmark_runs"
}

// CheckpointResultRow is one checkpoint measurement within a run.
type CheckpointResultRow struct {
	ID                  int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RunID               string    `gorm:"column:run_id;type:varchar(36);not null;index" json:"run_id"`
	PassNum             int       `gorm:"column:pass_num;not null" json:"pass_num"`
	Step                int       `gorm:"column:step;not null" json:"step"`
	CheckpointTime      float64   `gorm:"column:checkpoint_time;not null;type:decimal(12,6)" json:"checkpoint_time"`
	CommSize            int       `gorm:"column:comm_size;not null" json:"comm_size"`
	NumLayers           int       `gorm:"column:num_layers;not null" json:"num_layers"`
	ModelSize           int       `gorm:"column:model_size;not null" json:"model_size"`
	OptimizationGroups  string    `gorm:"column:optimization_groups;type:varchar(255);not null" json:"optimization_groups"`
	LayerParameters     string    `gorm:"column:layer_parameters;type:varchar(255);not null" json:"layer_parameters"`
	CheckpointType      string    `gorm:"column:checkpoint_type;type:varchar(32);not null" json:"checkpoint_type"`
	PipelineParallelism int       `gorm:"column:pipeline_parallelism;not null" json:"pipeline_parallelism"`
	TensorParallelism   int       `gorm:"column:tensor_parallelism;not null" json:"tensor_parallelism"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName returns the table name for CheckpointResultRow
func (CheckpointResultRow) TableName() string {
	return "checkpoint_results"
}
