package sim

import "fmt"

// StationKind distinguishes the degenerate Entry and Exit stations from baths.
type StationKind string

const (
	StationEntry StationKind = "entry"
	StationBath  StationKind = "bath"
	StationExit  StationKind = "exit"
)

// StationSpec is the immutable description of a station produced from configuration.
type StationSpec struct {
	Name           string
	Kind           StationKind
	Position       float64
	Dwell          int64 // mandatory bath time in ticks
	DwellMax       int64 // overrun threshold in ticks; 0 disables the check
	Drip           int64 // hold after pickup before the rack may leave, in ticks
	Priority       int
	DoublePosition bool
}

// Station is the runtime state of Entry, a bath, or Exit.
//
// A bath has capacity 1. Two separate flags guard it: the capacity token is held by the dropping
// manipulator for the duration of the drop, and occupied stays set from the drop until the picking
// manipulator's drip at this bath completes, so a new rack is never dropped onto a site that is
// still physically in use.
type Station struct {
	StationSpec
	Index int

	Ready *HandoffQueue // racks available for pickup

	occupied   bool
	holder     int // manipulator holding the capacity token, -1 if none
	dwellStart map[int]int64
	stack      []int

	waiters *WaitSet
}

func newStation(index int, spec StationSpec) *Station {
	return &Station{
		StationSpec: spec,
		Index:       index,
		Ready:       &HandoffQueue{},
		holder:      -1,
		dwellStart:  make(map[int]int64),
		waiters:     newWaitSet("station:" + spec.Name),
	}
}

// Occupied reports the bath's occupancy flag.
func (st *Station) Occupied() bool {
	return st.occupied
}

// Accepts reports whether a rack can be dropped here now. Exit always accepts.
func (st *Station) Accepts() bool {
	switch st.Kind {
	case StationExit:
		return true
	case StationBath:
		return !st.occupied && st.holder < 0
	default:
		return false
	}
}

// AcquireCapacity grants the drop slot to the manipulator if it is free.
func (st *Station) AcquireCapacity(manipulator int) bool {
	if st.holder >= 0 && st.holder != manipulator {
		return false
	}
	if st.occupied {
		return false
	}
	st.holder = manipulator
	return true
}

// ReleaseCapacity returns the drop slot. Occupancy is not affected.
func (st *Station) ReleaseCapacity(manipulator int) {
	if st.holder != manipulator {
		violation(InvariantCapacity, "manipulator %d released capacity of %s held by %d", manipulator, st.Name, st.holder)
	}
	st.holder = -1
}

// BeginDwell records the dwell start and marks the bath occupied.
func (st *Station) BeginDwell(rackID int, now int64) {
	if st.Kind != StationBath {
		violation(InvariantCapacity, "dwell started at non-bath station %s", st.Name)
	}
	if st.occupied || len(st.dwellStart) > 0 {
		violation(InvariantCapacity, "rack %d dropped into occupied bath %s", rackID, st.Name)
	}
	st.dwellStart[rackID] = now
	st.occupied = true
}

// DwellElapsed reports whether the rack has stayed at least the mandatory dwell time.
func (st *Station) DwellElapsed(rackID int, now int64) bool {
	start, ok := st.dwellStart[rackID]
	return ok && now-start >= st.Dwell
}

// Release clears the rack's dwell bookkeeping. The bath stays occupied until Vacate.
func (st *Station) Release(rackID int) {
	delete(st.dwellStart, rackID)
}

// Vacate clears the occupancy flag once the picking manipulator's drip is over.
func (st *Station) Vacate() {
	st.occupied = false
}

// DwellStarts returns a copy of the dwell set.
func (st *Station) DwellStarts() map[int]int64 {
	out := make(map[int]int64, len(st.dwellStart))
	for k, v := range st.dwellStart {
		out[k] = v
	}
	return out
}

// Stack places a finished rack on the Exit stack and returns its arrival index.
func (st *Station) Stack(rackID int) int {
	if st.Kind != StationExit {
		panic(fmt.Sprintf("Stack: %s is not an exit", st.Name))
	}
	st.stack = append(st.stack, rackID)
	return len(st.stack) - 1
}

// Stacked returns the racks on the Exit stack in arrival order.
func (st *Station) Stacked() []int {
	return append([]int(nil), st.stack...)
}
