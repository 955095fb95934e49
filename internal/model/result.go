package model

import (
	"fmt"
	"strconv"
	"strings"
)

// CheckpointRequest asks the control rank to run one synchronized
// checkpoint. It identifies the call as (step, pass); the run totals
// stay on the client, which stamps them into the result afterwards.
type CheckpointRequest struct {
	Step    int `json:"step" binding:"required,min=1"`
	PassNum int `json:"pass_num" binding:"required,min=1"`
}

// CheckpointResult is one completed checkpoint as measured on the
// control rank. Field order matches the result table column order.
type CheckpointResult struct {
	NumLayers           int            `json:"num_layers"`
	ModelSize           int            `json:"model_size"`
	OptimizationGroups  []int64        `json:"optimization_groups"`
	LayerParameters     []int64        `json:"layer_parameters"`
	CheckpointType      CheckpointType `json:"checkpoint_type"`
	PipelineParallelism int            `json:"pipeline_parallelism"`
	TensorParallelism   int            `json:"tensor_parallelism"`
	CheckpointTime      float64        `json:"checkpoint_time"` // seconds
	Step                int            `json:"step"`
	CommSize            int            `json:"comm_size"`
	PassNum             int            `json:"pass_num"`
	NumSteps            int            `json:"num_steps"`
	NumPasses           int            `json:"num_passes"`
}

// ResultColumns is the header row of the result table.
var ResultColumns = []string{
	"num_layers",
	"model_size",
	"optimization_groups",
	"layer_parameters",
	"checkpoint_type",
	"pipeline_parallelism",
	"tensor_parallelism",
	"checkpoint_time",
	"step",
	"comm_size",
	"pass_num",
	"num_steps",
	"num_passes",
}

// Record renders the result as one row of the result table, in
// ResultColumns order.
func (r *CheckpointResult) Record() []string {
	return []string{
		strconv.Itoa(r.NumLayers),
		strconv.Itoa(r.ModelSize),
		FormatIntList(r.OptimizationGroups),
		FormatIntList(r.LayerParameters),
		string(r.CheckpointType),
		strconv.Itoa(r.PipelineParallelism),
		strconv.Itoa(r.TensorParallelism),
		strconv.FormatFloat(r.CheckpointTime, 'f', -1, 64),
		strconv.Itoa(r.Step),
		strconv.Itoa(r.CommSize),
		strconv.Itoa(r.PassNum),
		strconv.Itoa(r.NumSteps),
		strconv.Itoa(r.NumPasses),
	}
}

// NewResult stamps a profile and the group size into a result shell;
// the caller fills in the measured time and the request echo.
func NewResult(p Profile, commSize int) CheckpointResult {
	return CheckpointResult{
		NumLayers:           p.NumLayers,
		ModelSize:           p.ModelSize,
		OptimizationGroups:  p.OptimizationGroups,
		LayerParameters:     p.LayerParameters,
		CheckpointType:      p.CheckpointType,
		PipelineParallelism: p.PipelineParallelism,
		TensorParallelism:   p.TensorParallelism,
		CommSize:            commSize,
	}
}

// FormatIntList renders values as "[a, b, c]", the form the result
// table uses for size lists.
func FormatIntList(values []int64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, ", "))
}

// ErrorResponse is the JSON body returned on a failed endpoint call.
type ErrorResponse struct {
	Error string `json:"error"`
}
