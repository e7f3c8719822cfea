package sim

import (
	"fmt"
	"math"

	"github.com/hoist-sim/hoist-sim/sim/kinematics"
	"github.com/hoist-sim/hoist-sim/sim/trace"
)

// RailPolicy decides the order in which manipulators blocked by the collision guard re-check it.
type RailPolicy string

const (
	RailByIndex    RailPolicy = "index"    // lower manipulator index first
	RailByPriority RailPolicy = "priority" // higher destination priority first, then index
)

// IsValidRailPolicy reports whether name is a known rail policy.
func IsValidRailPolicy(name string) bool {
	switch RailPolicy(name) {
	case RailByIndex, RailByPriority:
		return true
	}
	return false
}

// ManipulatorSpec is the resolved description of one manipulator.
type ManipulatorSpec struct {
	ID         int
	Name       string
	Home       float64
	Kinematics kinematics.Profile
	First      int // first transfer step owned, inclusive
	Last       int // last transfer step owned, inclusive
}

// RackSpec is a rack seeded into Entry.
type RackSpec struct {
	ID       int
	Priority int
}

// Line is the validated, tick-based form of a LineConfig. It is immutable during a run.
// Stations[0] is Entry, Stations[len-1] is Exit; transfer step s moves a rack from Stations[s] to Stations[s+1].
type Line struct {
	Resolution     int64
	Stations       []StationSpec
	Manipulators   []ManipulatorSpec
	Racks          []RackSpec
	Safety         float64
	MoveStep       int64
	Grace          int64
	StackBase      float64
	StackStep      float64
	SnapshotPeriod int64
	Diagnostics    int
	PickPolicy     PickPolicy
	RailPolicy     RailPolicy
	Horizon        int64 // 0 selects UpperBound
	Trace          trace.TraceLevel
}

// NewLine applies defaults, validates the configuration and resolves stations, homes and transfer
// ownership. Every error wraps ErrInvalidConfig.
func NewLine(cfg *LineConfig) (*Line, error) {
	if cfg == nil {
		panic("NewLine: cfg must not be nil")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	line := &Line{
		Resolution:  cfg.Resolution,
		Safety:      cfg.Safety,
		StackBase:   *cfg.Stack.Base,
		StackStep:   *cfg.Stack.Step,
		Diagnostics: cfg.Snapshots.Diagnostics,
		PickPolicy:  PickPolicy(cfg.Policies.Pick),
		RailPolicy:  RailPolicy(cfg.Policies.Rail),
		Trace:       trace.TraceLevel(cfg.Trace),
	}
	line.MoveStep = max(1, line.Ticks(cfg.MoveStep))
	line.SnapshotPeriod = max(1, line.Ticks(cfg.Snapshots.Period))
	line.Grace = line.Ticks(*cfg.Grace)
	line.Horizon = line.Ticks(cfg.Termination.Horizon)

	if err := line.buildStations(cfg); err != nil {
		return nil, err
	}
	if err := line.buildManipulators(cfg); err != nil {
		return nil, err
	}
	for i := 0; i < cfg.Racks.Count; i++ {
		spec := RackSpec{ID: i}
		if i < len(cfg.Racks.Priorities) {
			spec.Priority = cfg.Racks.Priorities[i]
		}
		line.Racks = append(line.Racks, spec)
	}
	return line, nil
}

func (l *Line) buildStations(cfg *LineConfig) error {
	ops, err := cfg.Technologies[cfg.Technology].ActiveOperations()
	if err != nil {
		return fmt.Errorf("%w: technology %q: %v", ErrInvalidConfig, cfg.Technology, err)
	}
	if len(ops) == 0 {
		return invalid("technology %q has no active operations", cfg.Technology)
	}

	pos := cfg.Entry.Position
	l.Stations = append(l.Stations, StationSpec{
		Name:     cfg.Entry.Name,
		Kind:     StationEntry,
		Position: pos,
		Drip:     l.Ticks(cfg.Entry.Drip),
	})
	names := map[string]bool{cfg.Entry.Name: true, cfg.Exit.Name: true}
	for _, op := range ops {
		if names[op.Name] {
			return invalid("station name %q is used twice", op.Name)
		}
		names[op.Name] = true
		if op.CrossingDistance <= 0 {
			return invalid("operation %q: crossing_distance must be positive", op.Name)
		}
		pos += op.CrossingDistance
		spec := StationSpec{
			Name:           op.Name,
			Kind:           StationBath,
			Position:       pos,
			Dwell:          l.Ticks(op.Dwell()),
			Drip:           l.Ticks(op.DripTime),
			Priority:       op.Priority,
			DoublePosition: op.DoublePosition,
		}
		if op.TimeMax > 0 {
			spec.DwellMax = l.Ticks(op.TimeMax)
		}
		l.Stations = append(l.Stations, spec)
	}
	l.Stations = append(l.Stations, StationSpec{
		Name:     cfg.Exit.Name,
		Kind:     StationExit,
		Position: pos + cfg.Exit.CrossingDistance,
	})
	return nil
}

func (l *Line) buildManipulators(cfg *LineConfig) error {
	transfers := l.TransferCount()
	n := len(cfg.Manipulators)
	if n > transfers {
		return invalid("%d manipulators for %d transfers", n, transfers)
	}

	next := 0
	for k, mc := range cfg.Manipulators {
		spec := ManipulatorSpec{ID: k, Name: mc.Name, Kinematics: cfg.Kinematics}
		if spec.Name == "" {
			spec.Name = fmt.Sprintf("M%d", k+1)
		}
		if mc.Kinematics != nil {
			spec.Kinematics = *mc.Kinematics
		}
		if mc.Transfers != nil {
			spec.First, spec.Last = mc.Transfers[0], mc.Transfers[1]
		} else {
			spec.First, spec.Last = k, k
			if k == n-1 {
				spec.Last = transfers - 1
			}
		}
		if spec.First != next || spec.Last < spec.First || spec.Last >= transfers {
			return invalid("manipulator %s: transfers [%d, %d] must continue the chain at step %d", spec.Name, spec.First, spec.Last, next)
		}
		next = spec.Last + 1

		src := l.Stations[spec.First]
		if mc.Home != nil {
			spec.Home = *mc.Home
		} else if k == 0 {
			spec.Home = src.Position
		} else {
			spec.Home = src.Position + DefaultHomeFraction*(l.Stations[spec.First+1].Position-src.Position)
		}
		l.Manipulators = append(l.Manipulators, spec)
	}
	if next != transfers {
		return invalid("transfers %d..%d are not assigned to any manipulator", next, transfers-1)
	}
	return l.validateGeometry()
}

// validateGeometry enforces the separation the hand-off protocol relies on: neighbouring
// manipulators meet only at their shared station, and never within the safety distance.
func (l *Line) validateGeometry() error {
	lo, hi := l.Stations[0].Position, l.Stations[len(l.Stations)-1].Position
	for k, m := range l.Manipulators {
		if m.Home < lo || m.Home > hi {
			return invalid("manipulator %s: home %g outside the line [%g, %g]", m.Name, m.Home, lo, hi)
		}
		if k == 0 {
			continue
		}
		prev := l.Manipulators[k-1]
		shared := l.Stations[m.First].Position
		if prev.Home+l.Safety >= shared {
			return invalid("manipulator %s: home %g must be more than %g before shared station %s at %g",
				prev.Name, prev.Home, l.Safety, l.Stations[m.First].Name, shared)
		}
		if m.Home-l.Safety <= shared {
			return invalid("manipulator %s: home %g must be more than %g past shared station %s at %g",
				m.Name, m.Home, l.Safety, l.Stations[m.First].Name, shared)
		}
	}
	return nil
}

// TransferCount returns the number of transfer steps (stations minus one).
func (l *Line) TransferCount() int {
	return len(l.Stations) - 1
}

// Ticks converts time units to ticks, rounding to the nearest tick.
func (l *Line) Ticks(units float64) int64 {
	return int64(math.Round(units * float64(l.Resolution)))
}

// Units converts ticks to time units.
func (l *Line) Units(ticks int64) float64 {
	return float64(ticks) / float64(l.Resolution)
}

// TravelTicks is the rail travel time of a manipulator over distance, at least one tick for any movement.
func (l *Line) TravelTicks(p kinematics.Profile, distance float64) int64 {
	if distance == 0 {
		return 0
	}
	t := int64(math.Ceil(p.TravelTime(distance)*float64(l.Resolution) - 1e-9))
	return max(1, t)
}

// DropTicks is the drop duration of a manipulator in ticks.
func (l *Line) DropTicks(p kinematics.Profile) int64 {
	return l.Ticks(p.DropDuration())
}

// PickupTicks is the pickup (lift) duration of a manipulator in ticks.
func (l *Line) PickupTicks(p kinematics.Profile) int64 {
	return l.Ticks(p.PickupDuration())
}

// Owner returns the manipulator that performs transfer step s.
func (l *Line) Owner(step int) int {
	for _, m := range l.Manipulators {
		if step >= m.First && step <= m.Last {
			return m.ID
		}
	}
	return -1
}

// UpperBound is a serial bound on the makespan: every rack handled alone, each transfer paying
// three full-line traversals (to pickup, to drop, home) for travel and collision waits, plus grace.
func (l *Line) UpperBound() int64 {
	full := l.Stations[len(l.Stations)-1].Position - l.Stations[0].Position
	var perRack, slowest int64
	for s := 0; s < l.TransferCount(); s++ {
		m := l.Manipulators[l.Owner(s)]
		tFull := l.TravelTicks(m.Kinematics, full)
		slowest = max(slowest, tFull)
		perRack += 3*tFull + l.PickupTicks(m.Kinematics) + l.Stations[s].Drip + l.DropTicks(m.Kinematics)
		perRack += l.Stations[s+1].Dwell
	}
	return int64(len(l.Racks))*perRack + l.Grace + slowest
}

// EffectiveHorizon returns the configured horizon, or UpperBound when none is set.
func (l *Line) EffectiveHorizon() int64 {
	if l.Horizon > 0 {
		return l.Horizon
	}
	return l.UpperBound()
}
