package model

import (
	"fmt"
	"sort"
)

// CheckpointType says which ranks write state at a checkpoint.
type CheckpointType string

const (
	// CheckpointAllRanks has every rank write its share of the state.
	CheckpointAllRanks CheckpointType = "all_ranks"
)

// Profile describes the synthetic training workload a checkpoint
// writes: layer sizes, optimizer state sizes and the parallelism
// layout. Sizes are element counts, not bytes.
type Profile struct {
	Name                string         `json:"name"`
	NumLayers           int            `json:"num_layers"`
	ModelSize           int            `json:"model_size"`
	OptimizationGroups  []int64        `json:"optimization_groups"`
	LayerParameters     []int64        `json:"layer_parameters"`
	CheckpointType      CheckpointType `json:"checkpoint_type"`
	PipelineParallelism int            `json:"pipeline_parallelism"`
	TensorParallelism   int            `json:"tensor_parallelism"`
}

// profiles holds the built-in workloads. The llama3 family scales the
// same layout by parameter count; megatron is the ~30B reference.
var profiles = map[string]Profile{
	"megatron": {
		Name:                "megatron",
		NumLayers:           44,
		ModelSize:           30102,
		OptimizationGroups:  []int64{1009254, 865075, 793},
		LayerParameters:     []int64{1622016, 262144},
		CheckpointType:      CheckpointAllRanks,
		PipelineParallelism: 2,
		TensorParallelism:   4,
	},
	"llama3-7b": {
		Name:                "llama3-7b",
		NumLayers:           80,
		ModelSize:           16384,
		OptimizationGroups:  []int64{10092544, 8650752, 7936},
		LayerParameters:     []int64{43581521, 7043478},
		CheckpointType:      CheckpointAllRanks,
		PipelineParallelism: 2,
		TensorParallelism:   4,
	},
	"llama3-70b": {
		Name:                "llama3-70b",
		NumLayers:           80,
		ModelSize:           16384,
		OptimizationGroups:  []int64{100925440, 86507520, 79360},
		LayerParameters:     []int64{435815216, 70434782},
		CheckpointType:      CheckpointAllRanks,
		PipelineParallelism: 2,
		TensorParallelism:   4,
	},
	"llama3-405b": {
		Name:                "llama3-405b",
		NumLayers:           80,
		ModelSize:           16384,
		OptimizationGroups:  []int64{1009254400, 865075200, 793600},
		LayerParameters:     []int64{4358152160, 704347824},
		CheckpointType:      CheckpointAllRanks,
		PipelineParallelism: 2,
		TensorParallelism:   4,
	},
}

// LookupProfile returns the workload profile registered under name.
// The returned profile owns its slices, so callers can keep it without
// aliasing the registry.
func LookupProfile(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown model %q, expected one of %v", name, ProfileNames())
	}

	out := p
	out.OptimizationGroups = append([]int64(nil), p.OptimizationGroups...)
	out.LayerParameters = append([]int64(nil), p.LayerParameters...)
	return out, nil
}

// ProfileNames returns the registered workload names in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
