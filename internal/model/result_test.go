package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatIntList(t *testing.T) {
	assert.Equal(t, "[1009254, 865075, 793]", FormatIntList([]int64{1009254, 865075, 793}))
	assert.Equal(t, "[5]", FormatIntList([]int64{5}))
	assert.Equal(t, "[]", FormatIntList(nil))
}

func TestRecordMatchesColumns(t *testing.T) {
	p, err := LookupProfile("megatron")
	require.NoError(t, err)

	r := NewResult(p, 8)
	r.CheckpointTime = 1.25
	r.Step = 3
	r.PassNum = 2
	r.NumSteps = 5
	r.NumPasses = 4

	record := r.Record()
	require.Len(t, record, len(ResultColumns))

	assert.Equal(t, "44", record[0])
	assert.Equal(t, "[1009254, 865075, 793]", record[2])
	assert.Equal(t, "all_ranks", record[4])
	assert.Equal(t, "1.25", record[7])
	assert.Equal(t, "3", record[8])
	assert.Equal(t, "8", record[9])
	assert.Equal(t, "2", record[10])
}

func TestNewResultStampsProfile(t *testing.T) {
	p, err := LookupProfile("llama3-405b")
	require.NoError(t, err)

	r := NewResult(p, 4)

	assert.Equal(t, 80, r.NumLayers)
	assert.Equal(t, 16384, r.ModelSize)
	assert.Equal(t, []int64{1009254400, 865075200, 793600}, r.OptimizationGroups)
	assert.Equal(t, 4, r.CommSize)
	assert.Zero(t, r.CheckpointTime)
}
