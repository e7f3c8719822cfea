package sim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoist-sim/hoist-sim/sim"
	"github.com/hoist-sim/hoist-sim/sim/internal/testutil"
	"github.com/hoist-sim/hoist-sim/sim/trace"
)

func TestExample_ThreeBath(t *testing.T) {
	// GIVEN the reference example line
	line := testutil.LoadExampleLine(t, "three-bath.yaml")
	require.Len(t, line.Stations, 5)
	require.Len(t, line.Manipulators, 3)
	assert.Equal(t, trace.TraceLevelTransfers, line.Trace)
	assert.Equal(t, 20, line.Diagnostics)

	s, err := sim.NewSimulator(line, nil)
	require.NoError(t, err)

	// WHEN it runs
	require.NoError(t, s.Run())

	// THEN all racks are stacked with strictly increasing heights
	assert.True(t, s.AllFinished())
	heights := testutil.StackHeights(s)
	require.Len(t, heights, 3)
	testutil.AssertFloat64Equal(t, "first height", 1.0, heights[0], 1e-9)
	testutil.AssertFloat64Equal(t, "second height", 1.3, heights[1], 1e-9)
	testutil.AssertFloat64Equal(t, "third height", 1.6, heights[2], 1e-9)
	assert.Less(t, s.Metrics.Makespan, int64(1500))
	assert.LessOrEqual(t, s.Metrics.Makespan, line.UpperBound())

	// THEN no snapshot ever shows a shared bath, a rack with two owners, or moving manipulators too close
	timeline := s.Timeline()
	testutil.AssertMonotonicTimeline(t, timeline)
	testutil.AssertMutualExclusion(t, timeline)
	testutil.AssertCarryingUniqueness(t, timeline)
	testutil.AssertDwellRecorded(t, timeline)
	testutil.AssertCollisionSafety(t, timeline, line.Safety)
}

func TestExample_ThreeBath_WithPlan(t *testing.T) {
	// GIVEN the reference line and its advisory plan
	line := testutil.LoadExampleLine(t, "three-bath.yaml")
	plan, err := sim.LoadAdvisoryPlan(testutil.ExamplePath(t, "three-bath-plan.yaml"))
	require.NoError(t, err)
	require.Len(t, plan.Entries, 12)

	s, err := sim.NewSimulator(line, plan)
	require.NoError(t, err)
	require.NoError(t, s.Run())

	// THEN every transfer is traced against its planned start
	summary := trace.Summarize(s.Trace)
	assert.Equal(t, 12, summary.TotalTransfers)
	assert.Equal(t, 12, summary.PlannedTransfers)
	for _, rec := range s.Trace.Transfers {
		assert.True(t, rec.HasPlan, "rack %d step %d", rec.Rack, rec.Step)
	}
}

func TestExample_ZincLine(t *testing.T) {
	// GIVEN the zinc line: when rules drop chromate, passivate is unused
	line := testutil.LoadExampleLine(t, "zinc-line.yaml")
	names := make([]string, 0, len(line.Stations))
	for _, st := range line.Stations {
		names = append(names, st.Name)
	}
	assert.Equal(t, []string{"entry", "degrease", "rinse1", "pickle", "rinse2", "zinc", "rinse3", "dry", "exit"}, names)
	assert.Equal(t, 7300.0, line.Stations[8].Position)
	assert.InDelta(t, 2340.0, line.Manipulators[1].Home, 1e-9)
	assert.Equal(t, sim.PickPriority, line.PickPolicy)
	assert.Equal(t, sim.RailByPriority, line.RailPolicy)

	s, err := sim.NewSimulator(line, nil)
	require.NoError(t, err)

	// WHEN it runs
	require.NoError(t, s.Run())

	// THEN the high-priority rack leaves Entry first and leads the line
	require.True(t, s.AllFinished())
	assert.Equal(t, 2, s.Finished()[0])

	// THEN the chains respect the 200 mm safety distance throughout
	timeline := s.Timeline()
	testutil.AssertMutualExclusion(t, timeline)
	testutil.AssertCarryingUniqueness(t, timeline)
	testutil.AssertDwellRecorded(t, timeline)
	testutil.AssertCollisionSafety(t, timeline, line.Safety)
	assert.Equal(t, map[string]int{"M1": 8, "M2": 12, "M3": 12}, s.Metrics.Transfers)
}

func TestExample_ZincLine_Deterministic(t *testing.T) {
	run := func() *sim.Simulator {
		s, err := sim.NewSimulator(testutil.LoadExampleLine(t, "zinc-line.yaml"), nil)
		require.NoError(t, err)
		require.NoError(t, s.Run())
		return s
	}
	a, b := run(), run()

	assert.Equal(t, a.Finished(), b.Finished())
	assert.Equal(t, a.Metrics.FinishTimes, b.Metrics.FinishTimes)
	assert.Equal(t, a.Trace.Transfers, b.Trace.Transfers)
	assert.Equal(t, len(a.Timeline()), len(b.Timeline()))
}
