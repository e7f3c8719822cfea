// Package testutil provides shared test infrastructure for the hoist-line engine:
// loaders for the example line files and property checks over snapshot timelines.
package testutil

import (
	"math"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/hoist-sim/hoist-sim/sim"
)

// ExamplePath resolves a file in the repository's examples/ directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → examples/.
func ExamplePath(t *testing.T, name string) string {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "examples", name)
}

// LoadExampleLine loads and resolves an example line configuration.
func LoadExampleLine(t *testing.T, name string) *sim.Line {
	t.Helper()
	cfg, err := sim.LoadLineConfig(ExamplePath(t, name))
	if err != nil {
		t.Fatalf("Failed to load %s: %v", name, err)
	}
	line, err := sim.NewLine(cfg)
	if err != nil {
		t.Fatalf("Failed to resolve %s: %v", name, err)
	}
	return line
}

// AssertMutualExclusion checks that no bath ever records more than one dwelling rack.
func AssertMutualExclusion(t *testing.T, timeline []sim.Snapshot) {
	t.Helper()
	for _, snap := range timeline {
		for bath, dwelling := range snap.Dwell {
			if len(dwelling) > 1 {
				t.Errorf("tick %d: %d racks dwelling in %s", snap.Tick, len(dwelling), bath)
			}
		}
	}
}

// AssertCarryingUniqueness checks that every rack has exactly one owner in every snapshot:
// a station (its queue or, for a bath, its dwell set), a manipulator's carrying slot, or the
// Exit stack. A bath's ready rack stays in its dwell set until pickup and counts once.
func AssertCarryingUniqueness(t *testing.T, timeline []sim.Snapshot) {
	t.Helper()
	for _, snap := range timeline {
		atStation := make(map[string]map[int]bool)
		mark := func(station string, id int) {
			if atStation[station] == nil {
				atStation[station] = make(map[int]bool)
			}
			atStation[station][id] = true
		}
		for station, ids := range snap.Queues {
			for _, id := range ids {
				mark(station, id)
			}
		}
		for bath, dwelling := range snap.Dwell {
			for id := range dwelling {
				mark(bath, id)
			}
		}
		owners := make(map[int]int)
		for _, ids := range atStation {
			for id := range ids {
				owners[id]++
			}
		}
		for _, id := range snap.Carried {
			owners[id]++
		}
		for _, id := range snap.Finished {
			owners[id]++
		}
		for _, r := range snap.Racks {
			if owners[r.ID] != 1 {
				t.Errorf("tick %d: rack %d has %d owners", snap.Tick, r.ID, owners[r.ID])
			}
		}
	}
}

// AssertDwellRecorded checks that every rack sitting in a bath, dwelling or ready, keeps its
// dwell start in the snapshot until a manipulator picks it up.
func AssertDwellRecorded(t *testing.T, timeline []sim.Snapshot) {
	t.Helper()
	for _, snap := range timeline {
		for _, r := range snap.Racks {
			if r.Location != sim.RackDwelling && r.Location != sim.RackQueued {
				continue
			}
			dwelling, isBath := snap.Dwell[r.Station]
			if !isBath {
				continue
			}
			if _, ok := dwelling[r.ID]; !ok {
				t.Errorf("tick %d: rack %d in %s has no dwell start", snap.Tick, r.ID, r.Station)
			}
		}
	}
}

// AssertCollisionSafety checks that two moving manipulators are never within the safety distance.
func AssertCollisionSafety(t *testing.T, timeline []sim.Snapshot, safety float64) {
	t.Helper()
	for _, snap := range timeline {
		ms := snap.Manipulators
		for i := range ms {
			for j := i + 1; j < len(ms); j++ {
				if !ms[i].Moving || !ms[j].Moving {
					continue
				}
				if d := math.Abs(ms[i].Position - ms[j].Position); d <= safety {
					t.Errorf("tick %d: %s and %s %.3f apart while moving (safety %g)",
						snap.Tick, ms[i].Name, ms[j].Name, d, safety)
				}
			}
		}
	}
}

// AssertMonotonicTimeline checks that snapshot ticks strictly increase.
func AssertMonotonicTimeline(t *testing.T, timeline []sim.Snapshot) {
	t.Helper()
	for i := 1; i < len(timeline); i++ {
		if timeline[i].Tick <= timeline[i-1].Tick {
			t.Errorf("snapshot %d at tick %d does not follow tick %d", i, timeline[i].Tick, timeline[i-1].Tick)
		}
	}
}

// StackHeights returns the stack heights of finished racks in arrival order.
func StackHeights(s *sim.Simulator) []float64 {
	heights := make([]float64, 0)
	for _, id := range s.Finished() {
		heights = append(heights, s.Racks[id].StackHeight)
	}
	return heights
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
