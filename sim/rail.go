package sim

import "math"

// Occupant is the stretch of rail a manipulator currently claims: its position when stationary,
// or the remaining corridor [position, target] while moving.
type Occupant struct {
	ID     int
	Lo, Hi float64
}

// PathClear reports whether a manipulator may travel from start to end.
// The path is clear iff every other occupant stays more than safety away from [min(start,end), max(start,end)];
// with safety 0 an occupant touching the interval blocks it.
func PathClear(occupants []Occupant, start, end float64, self int, safety float64) bool {
	lo, hi := math.Min(start, end), math.Max(start, end)
	for _, o := range occupants {
		if o.ID == self {
			continue
		}
		if gap(lo, hi, o.Lo, o.Hi) <= safety {
			return false
		}
	}
	return true
}

// gap is the distance between two closed intervals, 0 when they overlap.
func gap(aLo, aHi, bLo, bHi float64) float64 {
	return math.Max(0, math.Max(bLo-aHi, aLo-bHi))
}

// Rail is the shared travel axis. It is not a lock: manipulators blocked by the guard wait on
// the rail's waiter set and re-check whenever another manipulator's claim shrinks.
type Rail struct {
	Safety float64

	manipulators []*Manipulator
	waiters      *WaitSet
}

func newRail(safety float64) *Rail {
	return &Rail{Safety: safety, waiters: newWaitSet("rail")}
}

// Occupants returns every manipulator's current claim, in index order.
func (r *Rail) Occupants() []Occupant {
	out := make([]Occupant, 0, len(r.manipulators))
	for _, m := range r.manipulators {
		lo, hi := m.Position, m.Position
		if m.move != nil {
			lo, hi = math.Min(m.Position, m.move.to), math.Max(m.Position, m.move.to)
		}
		out = append(out, Occupant{ID: m.ID, Lo: lo, Hi: hi})
	}
	return out
}

// PathClear checks the guard against the live rail state.
func (r *Rail) PathClear(start, end float64, self int) bool {
	return PathClear(r.Occupants(), start, end, self, r.Safety)
}
