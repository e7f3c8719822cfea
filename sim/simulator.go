// sim/simulator.go
//
// Simulator is the line driver: it owns the clock and the event heap, builds stations and
// manipulators from a Line, seeds Entry, runs the event loop and decides termination.

package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/hoist-sim/hoist-sim/sim/trace"
)

// Simulator runs one line simulation. It is single-threaded: every state change happens inside an
// event's Execute, so agents never observe a partially applied step.
type Simulator struct {
	Clock        int64
	Stations     []*Station // Entry, baths, Exit in line order
	Manipulators []*Manipulator
	Racks        []*Rack
	Metrics      *Metrics
	Trace        *trace.ScheduleTrace

	line        *Line
	plan        *advisory
	pick        PickPolicy
	rail        *Rail
	events      *EventHeap
	waits       map[int]*waitState
	nextEventID uint64
	pending     int // scheduled events other than snapshots
	horizon     int64
	finished    []int // append-only registry of racks at Exit
	timeline    []Snapshot
	shutdown    bool
	stopped     bool
	hasRun      bool
}

// NewSimulator builds the run state for line. plan may be nil.
// Configuration faults are returned before any state is created.
func NewSimulator(line *Line, plan *AdvisoryPlan) (*Simulator, error) {
	if line == nil {
		panic("NewSimulator: line must not be nil")
	}
	if plan != nil {
		if err := plan.Validate(line); err != nil {
			return nil, err
		}
	}

	s := &Simulator{
		line:    line,
		plan:    compileAdvisory(plan, line),
		pick:    resolvePickPolicy(line.PickPolicy, plan != nil),
		rail:    newRail(line.Safety),
		events:  NewEventHeap(),
		waits:   make(map[int]*waitState),
		horizon: line.EffectiveHorizon(),
		Metrics: NewMetrics(line),
		Trace:   trace.NewScheduleTrace(line.Trace),
	}
	s.Metrics.PickPolicy = s.pick
	for i, spec := range line.Stations {
		s.Stations = append(s.Stations, newStation(i, spec))
	}
	for _, spec := range line.Manipulators {
		m := newManipulator(spec, line, s.Stations)
		if n := len(s.Manipulators); n > 0 {
			m.Upstream = s.Manipulators[n-1]
		}
		s.Manipulators = append(s.Manipulators, m)
	}
	s.rail.manipulators = s.Manipulators

	entry := s.Stations[0]
	for _, spec := range line.Racks {
		r := newRack(spec.ID, spec.Priority, entry)
		s.Racks = append(s.Racks, r)
		entry.Ready.Enqueue(r)
	}
	return s, nil
}

// Line returns the configuration the simulator runs.
func (s *Simulator) Line() *Line {
	return s.line
}

// Schedule adds an event to the heap.
func (s *Simulator) Schedule(ev Event) {
	if ev.Timestamp() < s.Clock {
		panic(fmt.Sprintf("Schedule: event at tick %d is in the past (clock %d)", ev.Timestamp(), s.Clock))
	}
	if ev.Type() != EventTypeSnapshot {
		s.pending++
	}
	s.events.Schedule(ev)
}

// Run executes the simulation until every manipulator has stopped after the grace period.
// It returns a *LivenessError when the horizon is exceeded or nothing can progress, and an
// *InvariantViolation when a protocol invariant breaks. Run may be called only once.
func (s *Simulator) Run() (err error) {
	if s.hasRun {
		panic("Simulator.Run() called more than once")
	}
	s.hasRun = true

	defer func() {
		if rec := recover(); rec != nil {
			v, ok := rec.(*InvariantViolation)
			if !ok {
				panic(rec)
			}
			v.Clock = s.Clock
			s.record()
			v.Snapshots = s.Diagnostics()
			logrus.Errorf("[tick %07d] %v", s.Clock, v)
			err = v
		}
	}()

	logrus.Infof("[tick %07d] starting: %d racks, %d stations, %d manipulators, horizon %d ticks",
		s.Clock, len(s.Racks), len(s.Stations), len(s.Manipulators), s.horizon)
	for _, m := range s.Manipulators {
		s.Schedule(&WakeEvent{BaseEvent: s.newBaseEvent(0, EventTypeAgentWake, m.Rank()), Agent: m})
	}
	s.Schedule(&SnapshotEvent{BaseEvent: s.newBaseEvent(0, EventTypeSnapshot, 0)})

	for !s.stopped {
		next := s.events.Peek()
		if next == nil || s.pending == 0 {
			return s.livenessError(ErrStalled)
		}
		if next.Timestamp() > s.horizon && !s.AllFinished() {
			s.Clock = s.horizon
			return s.livenessError(ErrHorizonExceeded)
		}
		ev := s.events.PopNext()
		if ev.Type() != EventTypeSnapshot {
			s.pending--
		}
		s.Clock = ev.Timestamp()
		ev.Execute(s)
		s.checkInvariants()
	}

	s.Metrics.StoppedAt = s.Clock
	logrus.Infof("[tick %07d] simulation ended: makespan %.1f", s.Clock, s.line.Units(s.Metrics.Makespan))
	return nil
}

func (s *Simulator) livenessError(cause error) error {
	s.record()
	e := &LivenessError{
		Cause:     cause,
		Clock:     s.Clock,
		Finished:  len(s.finished),
		Total:     len(s.Racks),
		Snapshots: s.Diagnostics(),
	}
	logrus.Errorf("[tick %07d] %v", s.Clock, e)
	return e
}

// AllFinished reports the termination predicate: every seeded rack reached Exit.
func (s *Simulator) AllFinished() bool {
	return len(s.finished) == len(s.Racks)
}

// Finished returns the racks at Exit in arrival order.
func (s *Simulator) Finished() []int {
	return append([]int(nil), s.finished...)
}

// finish stacks a rack at Exit and starts the grace period once the last one arrives.
func (s *Simulator) finish(r *Rack, exit *Station) {
	idx := exit.Stack(r.ID)
	height := s.line.StackBase + s.line.StackStep*float64(idx)
	if n := len(s.finished); n > 0 {
		if prev := s.Racks[s.finished[n-1]]; prev.StackHeight >= height {
			violation(InvariantStacking, "rack %d stacked at %.2f below rack %d at %.2f", r.ID, height, prev.ID, prev.StackHeight)
		}
	}
	r.Location = RackStacked
	r.StackIndex = idx
	r.StackHeight = height
	r.FinishedAt = s.Clock
	s.finished = append(s.finished, r.ID)
	s.Metrics.recordFinish(r)

	if s.AllFinished() {
		logrus.Infof("[tick %07d] all %d racks finished, grace period %d ticks", s.Clock, len(s.Racks), s.line.Grace)
		s.Schedule(&ShutdownEvent{BaseEvent: s.newBaseEvent(s.Clock+s.line.Grace, EventTypeShutdown, 0)})
	}
}

// checkStopped stops the clock once every manipulator reached its safe stopping point.
func (s *Simulator) checkStopped() {
	if !s.shutdown || s.stopped {
		return
	}
	for _, m := range s.Manipulators {
		if m.State != StateStopped {
			return
		}
	}
	s.stopped = true
	s.record()
}

func (s *Simulator) recordRailWait(m *Manipulator, w railWait) {
	d := s.Clock - w.since
	if d == 0 {
		return
	}
	s.Metrics.recordRailWait(m.Name, d)
	s.Trace.RecordRailWait(trace.RailWaitRecord{Manipulator: m.ID, From: w.from, To: w.to, Start: w.since, End: s.Clock})
}

// checkInvariants runs after every event. Any failure aborts the run.
func (s *Simulator) checkInvariants() {
	owners := make(map[int]int, len(s.Racks))
	for _, st := range s.Stations {
		if len(st.dwellStart) > 1 {
			violation(InvariantCapacity, "%d racks dwelling in %s", len(st.dwellStart), st.Name)
		}
		// a bath's ready racks are still in its dwell set; the station is one owner
		present := make(map[int]bool, len(st.dwellStart)+st.Ready.Len())
		for id := range st.dwellStart {
			present[id] = true
		}
		for _, r := range st.Ready.Items() {
			if st.Kind == StationBath && !present[r.ID] {
				violation(InvariantOwnership, "rack %d queued at %s without a dwell record", r.ID, st.Name)
			}
			present[r.ID] = true
		}
		for id := range present {
			owners[id]++
		}
	}
	for _, m := range s.Manipulators {
		if m.Carrying != nil {
			owners[m.Carrying.ID]++
		}
	}
	for _, id := range s.finished {
		owners[id]++
	}
	for _, r := range s.Racks {
		if owners[r.ID] != 1 {
			violation(InvariantOwnership, "rack %d has %d owners", r.ID, owners[r.ID])
		}
	}

	for i, a := range s.Manipulators {
		for _, b := range s.Manipulators[i+1:] {
			if !a.Moving() && !b.Moving() {
				continue
			}
			if math.Abs(a.Position-b.Position) <= s.line.Safety {
				violation(InvariantCollision, "%s at %.3f and %s at %.3f within safety distance %g",
					a.Name, a.Position, b.Name, b.Position, s.line.Safety)
			}
		}
	}
}
