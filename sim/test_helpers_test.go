package sim

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoist-sim/hoist-sim/sim/kinematics"
	"github.com/hoist-sim/hoist-sim/sim/recipe"
)

func float64Ptr(v float64) *float64 { return &v }

// testBaths returns n identical baths spaced 5 apart: dwell 6, drip 3.
func testBaths(n int) []recipe.Operation {
	ops := make([]recipe.Operation, 0, n)
	for i := 0; i < n; i++ {
		ops = append(ops, recipe.Operation{
			Name:             fmt.Sprintf("bath%d", 5*(i+1)),
			UsedInTech:       true,
			TimeMin:          6,
			TimeMax:          40,
			DripTime:         3,
			CrossingDistance: 5,
		})
	}
	return ops
}

// testConfig builds a line of baths baths with manipulators manipulators at their default homes.
func testConfig(baths, manipulators, racks int) *LineConfig {
	cfg := &LineConfig{
		Technology: "reference",
		Technologies: map[string]recipe.Technology{
			"reference": {Operations: testBaths(baths)},
		},
		Exit:       ExitConfig{CrossingDistance: 2},
		Racks:      RacksConfig{Count: racks},
		Kinematics: kinematics.Profile{TravelSpeed: 1, DropTime: float64Ptr(2)},
		Grace:      float64Ptr(10),
		Trace:      "transfers",
	}
	for i := 0; i < manipulators; i++ {
		cfg.Manipulators = append(cfg.Manipulators, ManipulatorConfig{})
	}
	return cfg
}

// referenceConfig is the three-bath reference line: Entry 0, baths 5/10/15, Exit 17, homes 0/6/11.
func referenceConfig() *LineConfig {
	cfg := testConfig(3, 3, 3)
	cfg.Manipulators[0].Home = float64Ptr(0)
	cfg.Manipulators[1].Home = float64Ptr(6)
	cfg.Manipulators[2].Home = float64Ptr(11)
	return cfg
}

func newTestSimulator(t *testing.T, cfg *LineConfig, plan *AdvisoryPlan) *Simulator {
	t.Helper()
	line, err := NewLine(cfg)
	require.NoError(t, err)
	s, err := NewSimulator(line, plan)
	require.NoError(t, err)
	return s
}

// mustRun builds and runs a simulator, failing the test on any run error.
func mustRun(t *testing.T, cfg *LineConfig, plan *AdvisoryPlan) *Simulator {
	t.Helper()
	s := newTestSimulator(t, cfg, plan)
	require.NoError(t, s.Run())
	return s
}
