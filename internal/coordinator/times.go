package coordinator

import (
	"math"
)

// TimesSummary are the diagnostic statistics over the checkpoint
// times measured on the control rank.
type TimesSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Stddev float64 `json:"stddev"` // population standard deviation
}

// Summarize computes the summary over a series of times in seconds.
func Summarize(times []float64) TimesSummary {
	s := TimesSummary{Count: len(times)}
	if len(times) == 0 {
		return s
	}

	s.Min = times[0]
	s.Max = times[0]
	var sum float64
	for _, t := range times {
		sum += t
		if t < s.Min {
			s.Min = t
		}
		if t > s.Max {
			s.Max = t
		}
	}
	s.Mean = sum / float64(len(times))

	var sq float64
	for _, t := range times {
		d := t - s.Mean
		sq += d * d
	}
	s.Stddev = math.Sqrt(sq / float64(len(times)))

	return s
}
