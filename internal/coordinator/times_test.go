package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)

	assert.Equal(t, 0, s.Count)
	assert.Zero(t, s.Mean)
	assert.Zero(t, s.Min)
	assert.Zero(t, s.Max)
	assert.Zero(t, s.Stddev)
}

func TestSummarizeSingleValue(t *testing.T) {
	s := Summarize([]float64{2.5})

	assert.Equal(t, 1, s.Count)
	assert.Equal(t, 2.5, s.Mean)
	assert.Equal(t, 2.5, s.Min)
	assert.Equal(t, 2.5, s.Max)
	assert.Zero(t, s.Stddev)
}

func TestSummarizeKnownValues(t *testing.T) {
	s := Summarize([]float64{1, 2, 3, 4})

	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 2.5, s.Mean, 1e-12)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.InDelta(t, 1.118033988749895, s.Stddev, 1e-12)
}
