package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoist-sim/hoist-sim/sim/trace"
)

// TestSimulator_ReferenceLine_Schedule pins the reference line's realized schedule: three racks,
// one bath each per manipulator, M3 carrying through the last bath to Exit.
func TestSimulator_ReferenceLine_Schedule(t *testing.T) {
	// GIVEN the three-bath reference line with FIFO pick and index rail policy
	s := newTestSimulator(t, referenceConfig(), nil)

	// WHEN it runs to completion
	require.NoError(t, s.Run())

	// THEN racks finish in Entry order at the pipeline's pace
	assert.Equal(t, []int{0, 1, 2}, s.Finished())
	assert.Equal(t, map[int]int64{0: 540, 1: 840, 2: 1140}, s.Metrics.FinishTimes)
	assert.Equal(t, int64(1140), s.Metrics.Makespan)

	// THEN the clock stops one grace period after the last arrival
	assert.Equal(t, int64(1240), s.Metrics.StoppedAt)
	assert.Equal(t, int64(1240), s.Clock)

	// THEN stack heights follow arrival order
	for i, id := range s.Finished() {
		assert.InDelta(t, 1.0+0.3*float64(i), s.Racks[id].StackHeight, 1e-9, "rack %d", id)
		assert.Equal(t, i, s.Racks[id].StackIndex)
	}
	assert.Equal(t, []int{0, 1, 2}, s.Stations[len(s.Stations)-1].Stacked())

	// THEN every manipulator stopped at home with nothing in its slot
	for _, m := range s.Manipulators {
		assert.Equal(t, StateStopped, m.State, m.Name)
		assert.True(t, m.AtHome(), "%s at %.3f, home %.3f", m.Name, m.Position, m.Home)
	}

	// THEN the last manipulator performed two transfers per rack
	assert.Equal(t, map[string]int{"M1": 3, "M2": 3, "M3": 6}, s.Metrics.Transfers)
}

func TestSimulator_ReferenceLine_WithinUpperBound(t *testing.T) {
	s := mustRun(t, referenceConfig(), nil)

	assert.True(t, s.AllFinished())
	assert.Less(t, s.Metrics.Makespan, int64(1500))
	assert.LessOrEqual(t, s.Metrics.Makespan, s.Line().UpperBound())
}

// TestSimulator_ReferenceLine_RailWaits: M1 leaves Entry twice just as M2 lifts off bath5, and
// waits one tick each time for M2's corridor to clear the bath.
func TestSimulator_ReferenceLine_RailWaits(t *testing.T) {
	s := mustRun(t, referenceConfig(), nil)

	assert.Equal(t, int64(2), s.Metrics.RailWaitTicks["M1"])
	require.Len(t, s.Trace.RailWaits, 2)
	for _, w := range s.Trace.RailWaits {
		assert.Equal(t, 0, w.Manipulator)
		assert.Equal(t, int64(1), w.Duration())
		assert.Equal(t, 5.0, w.To)
	}
}

func TestSimulator_Run_Deterministic(t *testing.T) {
	// GIVEN two simulators built from identical configuration
	a := mustRun(t, referenceConfig(), nil)
	b := mustRun(t, referenceConfig(), nil)

	// THEN timelines, traces and metrics are identical
	ja, err := json.Marshal(a.Timeline())
	require.NoError(t, err)
	jb, err := json.Marshal(b.Timeline())
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
	assert.Equal(t, a.Trace.Transfers, b.Trace.Transfers)
	assert.Equal(t, a.Trace.RailWaits, b.Trace.RailWaits)
	assert.Equal(t, a.Metrics.FinishTimes, b.Metrics.FinishTimes)
}

// snapshotPair takes two snapshots back to back whenever it is resumed.
type snapshotPair struct {
	pairs [][2][]byte
	err   error
}

func (p *snapshotPair) AgentID() int { return 1 << 20 }
func (p *snapshotPair) Rank() int    { return 1 << 20 }
func (p *snapshotPair) Resume(s *Simulator) {
	first, err := json.Marshal(s.Snapshot())
	if err == nil {
		var second []byte
		second, err = json.Marshal(s.Snapshot())
		p.pairs = append(p.pairs, [2][]byte{first, second})
	}
	if err != nil {
		p.err = err
	}
}

func TestSimulator_Snapshot_Idempotent(t *testing.T) {
	s := newTestSimulator(t, referenceConfig(), nil)

	// Before the run: every rack queued at Entry
	before := s.Snapshot()
	assert.Equal(t, []int{0, 1, 2}, before.Queues["entry"])
	assert.Empty(t, before.Carried)
	assert.Empty(t, before.Finished)

	// GIVEN snapshots taken twice in a row while racks dwell, travel and wait
	pair := &snapshotPair{}
	for _, tick := range []int64{130, 300, 700} {
		s.Schedule(&WakeEvent{BaseEvent: s.newBaseEvent(tick, EventTypeAgentWake, pair.Rank()), Agent: pair})
	}
	require.NoError(t, s.Run())
	require.NoError(t, pair.err)

	// WHEN Snapshot is called twice after the run as well
	first, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)
	second, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	// THEN each pair is byte-for-byte identical
	assert.Equal(t, first, second)
	require.Len(t, pair.pairs, 3)
	for i, p := range pair.pairs {
		assert.Equal(t, p[0], p[1], "pair %d", i)
	}
	assert.NotEqual(t, pair.pairs[0][0], pair.pairs[1][0], "mid-run snapshots differ over time")
}

func TestSimulator_DwellStart_KeptUntilPickup(t *testing.T) {
	// GIVEN the reference line, where racks wait in bath5 after their dwell for M2
	s := mustRun(t, referenceConfig(), nil)

	// THEN a rack ready in a bath still shows its dwell start, and loses it once carried
	ready := 0
	for _, snap := range s.Timeline() {
		for _, r := range snap.Racks {
			dwelling, isBath := snap.Dwell[r.Station]
			switch {
			case r.Location == RackQueued && isBath:
				ready++
				start, ok := dwelling[r.ID]
				require.True(t, ok, "tick %d: rack %d ready in %s without dwell start", snap.Tick, r.ID, r.Station)
				assert.GreaterOrEqual(t, snap.Tick-start, int64(60))
			case r.Location == RackDwelling:
				assert.Contains(t, dwelling, r.ID, "tick %d", snap.Tick)
			case r.Location == RackCarried:
				for bath, d := range snap.Dwell {
					assert.NotContains(t, d, r.ID, "tick %d: carried rack %d still dwelling in %s", snap.Tick, r.ID, bath)
				}
			}
		}
	}
	assert.Greater(t, ready, 0)
}

func TestSimulator_Timeline_OnePerTick(t *testing.T) {
	s := mustRun(t, referenceConfig(), nil)

	timeline := s.Timeline()
	require.NotEmpty(t, timeline)
	assert.Equal(t, int64(0), timeline[0].Tick)
	last := timeline[len(timeline)-1]
	assert.Equal(t, s.Clock, last.Tick)
	assert.Equal(t, []int{0, 1, 2}, last.Finished)
	for i := 1; i < len(timeline); i++ {
		require.Greater(t, timeline[i].Tick, timeline[i-1].Tick)
	}
}

func TestSimulator_Run_TwicePanics(t *testing.T) {
	s := mustRun(t, referenceConfig(), nil)
	assert.Panics(t, func() { _ = s.Run() })
}

func TestSimulator_PickPolicy_Priority(t *testing.T) {
	// GIVEN rack 2 carries the highest priority
	cfg := referenceConfig()
	cfg.Racks.Priorities = []int{0, 0, 9}
	cfg.Policies.Pick = "priority"

	s := mustRun(t, cfg, nil)

	// THEN it is taken from Entry first and leads the line
	assert.Equal(t, []int{2, 0, 1}, s.Finished())
	assert.Equal(t, PickPriority, s.Metrics.PickPolicy)
}

func TestSimulator_PickPolicy_Plan(t *testing.T) {
	// GIVEN a plan that wants rack 1 out of Entry first, then rack 0, then rack 2
	cfg := referenceConfig()
	cfg.Policies.Pick = "plan"
	plan := &AdvisoryPlan{Entries: []AdvisoryEntry{
		{Rack: 1, Step: 0, Manipulator: 0, Start: 0},
		{Rack: 0, Step: 0, Manipulator: 0, Start: 5},
		{Rack: 2, Step: 0, Manipulator: 0, Start: 9},
	}}

	s := mustRun(t, cfg, plan)

	// THEN the plan's order is followed without holding anyone back
	assert.Equal(t, []int{1, 0, 2}, s.Finished())
	assert.Equal(t, int64(540), s.Metrics.FinishTimes[1])
}

func TestSimulator_PickPolicy_DefaultFollowsPlan(t *testing.T) {
	// GIVEN a plan that reverses Entry order, and no pick policy configured
	plan := &AdvisoryPlan{Entries: []AdvisoryEntry{
		{Rack: 2, Step: 0, Manipulator: 0, Start: 0},
		{Rack: 1, Step: 0, Manipulator: 0, Start: 20},
		{Rack: 0, Step: 0, Manipulator: 0, Start: 40},
	}}

	s := mustRun(t, referenceConfig(), plan)

	// THEN the plan orders the pickups
	assert.Equal(t, PickPlan, s.Metrics.PickPolicy)
	assert.Equal(t, []int{2, 1, 0}, s.Finished())
	assert.Equal(t, int64(540), s.Metrics.FinishTimes[2])

	// WHEN fifo is chosen explicitly, the same plan no longer reorders
	cfg := referenceConfig()
	cfg.Policies.Pick = "fifo"
	s = mustRun(t, cfg, plan)
	assert.Equal(t, PickFIFO, s.Metrics.PickPolicy)
	assert.Equal(t, []int{0, 1, 2}, s.Finished())
}

func TestSimulator_AdvisoryHold_DelaysPickup(t *testing.T) {
	// GIVEN a holding plan that starts rack 0 at time 5
	plan := &AdvisoryPlan{Hold: true, Entries: []AdvisoryEntry{
		{Rack: 0, Step: 0, Manipulator: 0, Start: 5},
	}}

	s := mustRun(t, referenceConfig(), plan)

	// THEN M1 picks it up exactly at the target and the trace reports no deviation
	var rec *trace.TransferRecord
	for i := range s.Trace.Transfers {
		if r := &s.Trace.Transfers[i]; r.Rack == 0 && r.Step == 0 {
			rec = r
		}
	}
	require.NotNil(t, rec)
	assert.Equal(t, int64(50), rec.Pickup)
	assert.True(t, rec.HasPlan)
	assert.Equal(t, int64(50), rec.Planned)
	assert.Equal(t, int64(0), rec.Deviation())

	// THEN everything shifts by the hold
	assert.Equal(t, int64(590), s.Metrics.FinishTimes[0])
}

func TestSimulator_AdvisoryPlan_InvalidRejected(t *testing.T) {
	line, err := NewLine(referenceConfig())
	require.NoError(t, err)

	tests := []struct {
		name  string
		entry AdvisoryEntry
	}{
		{"rack out of range", AdvisoryEntry{Rack: 3, Step: 0}},
		{"step out of range", AdvisoryEntry{Rack: 0, Step: 4}},
		{"manipulator out of range", AdvisoryEntry{Rack: 0, Step: 0, Manipulator: 3}},
		{"negative start", AdvisoryEntry{Rack: 0, Step: 0, Start: -1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSimulator(line, &AdvisoryPlan{Entries: []AdvisoryEntry{tc.entry}})
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	dup := &AdvisoryPlan{Entries: []AdvisoryEntry{{Rack: 0, Step: 1, Manipulator: 1}, {Rack: 0, Step: 1, Manipulator: 1}}}
	_, err = NewSimulator(line, dup)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSimulator_Horizon_Exceeded(t *testing.T) {
	// GIVEN a horizon far shorter than one rack's route
	cfg := referenceConfig()
	cfg.Termination.Horizon = 20
	cfg.Snapshots.Diagnostics = 5
	s := newTestSimulator(t, cfg, nil)

	// WHEN the run reaches it
	err := s.Run()

	// THEN a liveness error carries the clock and the diagnostic tail
	require.ErrorIs(t, err, ErrHorizonExceeded)
	var le *LivenessError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, int64(200), le.Clock)
	assert.Equal(t, 0, le.Finished)
	assert.Equal(t, 3, le.Total)
	require.Len(t, le.Snapshots, 5)
	assert.Equal(t, int64(200), le.Snapshots[4].Tick)
}

func TestSimulator_Stalled_WhenNothingCanProgress(t *testing.T) {
	// GIVEN the first bath is marked occupied with no rack in it
	s := newTestSimulator(t, referenceConfig(), nil)
	s.Stations[1].occupied = true

	// WHEN the run starts
	err := s.Run()

	// THEN every manipulator waits forever and the run reports a stall at tick 0
	require.ErrorIs(t, err, ErrStalled)
	var le *LivenessError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, int64(0), le.Clock)
	assert.NotEmpty(t, le.Snapshots)
	for _, m := range s.Manipulators {
		assert.True(t, s.waiting(m), m.Name)
	}
}

func TestSimulator_Invariant_Ownership(t *testing.T) {
	// GIVEN rack 0 is also published at bath5
	s := newTestSimulator(t, referenceConfig(), nil)
	s.Stations[1].Ready.Enqueue(s.Racks[0])

	// WHEN the run starts
	err := s.Run()

	// THEN the ownership check aborts it
	require.ErrorIs(t, err, ErrInvariant)
	var v *InvariantViolation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, InvariantOwnership, v.Invariant)
	assert.Equal(t, int64(0), v.Clock)
	assert.NotEmpty(t, v.Snapshots)
}

func TestSimulator_DwellOverrun_Counted(t *testing.T) {
	// GIVEN bath5 tolerates at most 7.5 time units
	cfg := referenceConfig()
	cfg.Technologies["reference"].Operations[0].TimeMax = 7.5

	s := mustRun(t, cfg, nil)

	// THEN racks 1 and 2 wait longer than that for M2 and are reported
	assert.Equal(t, 2, s.Metrics.DwellOverruns["bath5"])
	assert.True(t, s.AllFinished())
}

func TestSimulator_RailPriority_CompletesDeterministically(t *testing.T) {
	cfg := referenceConfig()
	cfg.Policies.Rail = "priority"
	cfg.Racks.Count = 6
	a := mustRun(t, cfg, nil)

	cfg = referenceConfig()
	cfg.Policies.Rail = "priority"
	cfg.Racks.Count = 6
	b := mustRun(t, cfg, nil)

	assert.True(t, a.AllFinished())
	assert.Equal(t, a.Metrics.FinishTimes, b.Metrics.FinishTimes)
	assert.Equal(t, a.Trace.RailWaits, b.Trace.RailWaits)
}

// TestSimulator_Contention_NoStarvation drives more racks than the line can hold and checks that
// every manipulator blocked by the collision guard eventually proceeds.
func TestSimulator_Contention_NoStarvation(t *testing.T) {
	cfg := referenceConfig()
	cfg.Racks.Count = 10
	s := mustRun(t, cfg, nil)

	require.True(t, s.AllFinished())
	summary := trace.Summarize(s.Trace)
	assert.Greater(t, summary.RailWaitCount, 0)
	assert.Less(t, summary.MaxRailWait, s.line.UpperBound())
	assert.Equal(t, 40, summary.TotalTransfers)
	for i := 1; i < len(s.Finished()); i++ {
		assert.Greater(t, s.Metrics.FinishTimes[s.Finished()[i]], s.Metrics.FinishTimes[s.Finished()[i-1]])
	}
}

func TestSimulator_LineShapes_AllFinish(t *testing.T) {
	for _, baths := range []int{1, 2, 3, 5} {
		for manipulators := 1; manipulators <= 3 && manipulators <= baths+1; manipulators++ {
			for _, n := range []int{1, 4} {
				name := fmt.Sprintf("baths=%d/manipulators=%d/racks=%d", baths, manipulators, n)
				t.Run(name, func(t *testing.T) {
					// GIVEN a line with default homes and transfer ownership
					s := newTestSimulator(t, testConfig(baths, manipulators, n), nil)

					// WHEN it runs
					require.NoError(t, s.Run())

					// THEN every rack reaches Exit within the derived bound, stacked in order
					assert.True(t, s.AllFinished())
					assert.LessOrEqual(t, s.Metrics.Makespan, s.line.UpperBound())
					transfers := 0
					for _, c := range s.Metrics.Transfers {
						transfers += c
					}
					assert.Equal(t, n*(baths+1), transfers)
					prev := 0.0
					for _, id := range s.Finished() {
						assert.Greater(t, s.Racks[id].StackHeight, prev)
						prev = s.Racks[id].StackHeight
					}
				})
			}
		}
	}
}
