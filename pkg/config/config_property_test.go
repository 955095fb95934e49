package config

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_ValidRunSettingsAlwaysValidate checks that any positive
// step and pass counts with a non-negative sleep pass validation.
func TestProperty_ValidRunSettingsAlwaysValidate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("positive steps and passes validate", prop.ForAll(
		func(steps, passes int, sleep float64) bool {
			cfg := Default()
			cfg.Run.NumSteps = steps
			cfg.Run.NumPasses = passes
			cfg.Run.InterCheckpointSleep = sleep
			return cfg.Validate() == nil
		},
		gen.IntRange(1, 10000),
		gen.IntRange(1, 1000),
		gen.Float64Range(0, 60),
	))

	properties.Property("non-positive steps never validate", prop.ForAll(
		func(steps int) bool {
			cfg := Default()
			cfg.Run.NumSteps = steps
			return cfg.Validate() != nil
		},
		gen.IntRange(-1000, 0),
	))

	properties.Property("non-positive passes never validate", prop.ForAll(
		func(passes int) bool {
			cfg := Default()
			cfg.Run.NumPasses = passes
			return cfg.Validate() != nil
		},
		gen.IntRange(-1000, 0),
	))

	properties.Property("negative sleep never validates", prop.ForAll(
		func(sleep float64) bool {
			cfg := Default()
			cfg.Run.InterCheckpointSleep = sleep
			return cfg.Validate() != nil
		},
		gen.Float64Range(-60, -0.001),
	))

	properties.TestingRun(t)
}

// TestProperty_ServerPortRange checks that validation accepts exactly
// the ports an OS socket can bind.
func TestProperty_ServerPortRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("ports inside 1..65535 validate", prop.ForAll(
		func(port int) bool {
			cfg := Default()
			cfg.Server.Port = port
			return cfg.Validate() == nil
		},
		gen.IntRange(1, 65535),
	))

	properties.Property("ports outside 1..65535 never validate", prop.ForAll(
		func(port int) bool {
			cfg := Default()
			cfg.Server.Port = port
			return cfg.Validate() != nil
		},
		gen.OneGenOf(gen.IntRange(-100, 0), gen.IntRange(65536, 100000)),
	))

	properties.TestingRun(t)
}

// TestProperty_GroupRankWithinSize checks the rank/size relationship
// for rendezvous groups.
func TestProperty_GroupRankWithinSize(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("rank inside the group validates", prop.ForAll(
		func(size int) bool {
			for rank := 0; rank < size; rank++ {
				cfg := Default()
				cfg.Group.Kind = "ws"
				cfg.Group.Size = size
				cfg.Group.Rank = rank
				cfg.Group.RendezvousPort = 29500
				if cfg.Validate() != nil {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 16),
	))

	properties.Property("rank at or beyond size never validates", prop.ForAll(
		func(size, excess int) bool {
			cfg := Default()
			cfg.Group.Kind = "ws"
			cfg.Group.Size = size
			cfg.Group.Rank = size + excess
			cfg.Group.RendezvousPort = 29500
			return cfg.Validate() != nil
		},
		gen.IntRange(1, 16),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

// TestProperty_SleepDurationConversion checks the seconds-to-Duration
// conversion used by the driver's pacing loop.
func TestProperty_SleepDurationConversion(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("conversion is non-negative and proportional", prop.ForAll(
		func(seconds float64) bool {
			r := RunConfig{InterCheckpointSleep: seconds}
			d := r.SleepDuration()
			if d < 0 {
				return false
			}
			want := time.Duration(seconds * float64(time.Second))
			return d == want
		},
		gen.Float64Range(0, 3600),
	))

	properties.TestingRun(t)
}
