package sim

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/hoist-sim/hoist-sim/sim/trace"
)

// ManipulatorState is a step of the manipulator cycle.
type ManipulatorState string

const (
	StateWaitDownstreamFree ManipulatorState = "wait-downstream-free"
	StateWaitUpstreamReady  ManipulatorState = "wait-upstream-ready"
	StateMoveToPickup       ManipulatorState = "move-to-pickup"
	StatePickup             ManipulatorState = "pickup"
	StateDrip               ManipulatorState = "drip"
	StateMoveToDrop         ManipulatorState = "move-to-drop"
	StateAcquireCapacity    ManipulatorState = "acquire-capacity"
	StateDrop               ManipulatorState = "drop"
	StateRelease            ManipulatorState = "release"
	StateAwaitDwell         ManipulatorState = "await-dwell" // stationary at an intermediate bath of its chain
	StateReturnHome         ManipulatorState = "return-home"
	StateStopped            ManipulatorState = "stopped"
)

// homeTolerance is the distance under which a manipulator counts as parked at home.
const homeTolerance = 1e-6

// rankStride separates rail priority classes in event ranks; it exceeds any manipulator count.
const rankStride = 1 << 16

// Transfer is one stage boundary: moving a rack from one station to the next.
type Transfer struct {
	Step     int
	From, To *Station
}

type motion struct {
	from, to float64
	start    int64
	duration int64
}

type railWait struct {
	since    int64
	from, to float64
	priority int
}

// Manipulator is a rail-bound agent owning a contiguous chain of transfers. Only the manipulator
// itself mutates its position and carrying slot.
type Manipulator struct {
	ManipulatorSpec
	Transfers []Transfer
	Upstream  *Manipulator // manipulator dropping into this one's first source, nil for the first

	Position float64
	Carrying *Rack
	State    ManipulatorState

	rack          *Rack // rack of the current cycle
	step          int   // index into Transfers
	move          *motion
	timing        bool // a hold timer is pending
	blocked       *railWait
	transferStart int64
	pickedAt      int64
	pickupTicks   int64
	dropTicks     int64
	railPolicy    RailPolicy

	homeWaiters *WaitSet
}

func newManipulator(spec ManipulatorSpec, line *Line, stations []*Station) *Manipulator {
	m := &Manipulator{
		ManipulatorSpec: spec,
		Position:        spec.Home,
		State:           StateWaitDownstreamFree,
		pickupTicks:     line.PickupTicks(spec.Kinematics),
		dropTicks:       line.DropTicks(spec.Kinematics),
		railPolicy:      line.RailPolicy,
		homeWaiters:     newWaitSet("home:" + spec.Name),
	}
	for s := spec.First; s <= spec.Last; s++ {
		m.Transfers = append(m.Transfers, Transfer{Step: s, From: stations[s], To: stations[s+1]})
	}
	return m
}

// AgentID implements Agent.
func (m *Manipulator) AgentID() int { return m.ID }

// Rank orders same-tick wakes. Under the priority rail policy a manipulator blocked by the guard
// ranks by the priority of the station it is heading to; otherwise by index.
func (m *Manipulator) Rank() int {
	if m.railPolicy == RailByPriority && m.blocked != nil {
		return -m.blocked.priority*rankStride + m.ID
	}
	return m.ID
}

// AtHome reports whether the manipulator is parked at home with nothing in its carrying slot.
func (m *Manipulator) AtHome() bool {
	return m.move == nil && m.Carrying == nil && math.Abs(m.Position-m.Home) < homeTolerance
}

// Moving reports whether the manipulator is travelling along the rail.
func (m *Manipulator) Moving() bool {
	return m.move != nil
}

// Resume runs the cycle until the next suspension point.
func (m *Manipulator) Resume(sim *Simulator) {
	for {
		switch m.State {
		case StateWaitDownstreamFree:
			if sim.shutdown {
				m.stop(sim)
				return
			}
			if blocked := m.blockedDestinations(); len(blocked) > 0 {
				sim.Await(m, blocked...)
				return
			}
			m.State = StateWaitUpstreamReady

		case StateWaitUpstreamReady:
			if sim.shutdown {
				m.stop(sim)
				return
			}
			t := m.Transfers[0]
			if t.From.Ready.Len() == 0 || (m.Upstream != nil && !m.Upstream.AtHome()) {
				sets := []*WaitSet{t.From.waiters}
				if m.Upstream != nil {
					sets = append(sets, m.Upstream.homeWaiters)
				}
				sim.Await(m, sets...)
				return
			}
			r := t.From.Ready.Select(sim.pick, sim.plan.targetsFor(t.Step))
			if m.holdForPlan(sim, r, t.Step) {
				return
			}
			m.rack = r
			m.step = 0
			m.transferStart = sim.Clock
			logrus.Infof("[tick %07d] %s takes rack %d from %s (queue %s)", sim.Clock, m.Name, r.ID, t.From.Name, t.From.Ready)
			m.State = StateMoveToPickup

		case StateMoveToPickup:
			if !m.travel(sim, m.Transfers[m.step].From) {
				return
			}
			m.State = StatePickup

		case StatePickup:
			if !m.timing {
				m.pickUp(sim)
			}
			if !m.hold(sim, m.pickupTicks) {
				return
			}
			m.State = StateDrip

		case StateDrip:
			t := m.Transfers[m.step]
			if !m.hold(sim, t.From.Drip) {
				return
			}
			if t.From.Kind == StationBath {
				t.From.Vacate()
				sim.Notify(t.From.waiters)
			}
			m.State = StateMoveToDrop

		case StateMoveToDrop:
			if !m.travel(sim, m.Transfers[m.step].To) {
				return
			}
			m.State = StateAcquireCapacity

		case StateAcquireCapacity:
			to := m.Transfers[m.step].To
			if to.Kind == StationBath && !to.AcquireCapacity(m.ID) {
				sim.Await(m, to.waiters)
				return
			}
			m.State = StateDrop

		case StateDrop:
			if !m.hold(sim, m.dropTicks) {
				return
			}
			m.drop(sim)
			m.State = StateRelease

		case StateRelease:
			to := m.Transfers[m.step].To
			if to.Kind == StationBath {
				to.ReleaseCapacity(m.ID)
				sim.Notify(to.waiters)
			}
			if m.step < len(m.Transfers)-1 {
				m.step++
				m.State = StateAwaitDwell
			} else {
				m.rack = nil
				m.State = StateReturnHome
			}

		case StateAwaitDwell:
			t := m.Transfers[m.step]
			if !t.From.Ready.Contains(m.rack.ID) {
				sim.Await(m, t.From.waiters)
				return
			}
			if m.holdForPlan(sim, m.rack, t.Step) {
				return
			}
			m.transferStart = sim.Clock
			m.State = StateMoveToPickup

		case StateReturnHome:
			if !m.travelTo(sim, m.Home, 0) {
				return
			}
			logrus.Infof("[tick %07d] %s returned home to %.2f", sim.Clock, m.Name, m.Home)
			sim.Notify(m.homeWaiters)
			m.State = StateWaitDownstreamFree

		case StateStopped:
			return
		}
	}
}

// blockedDestinations returns the wait sets of baths in the chain that cannot take a rack now.
func (m *Manipulator) blockedDestinations() []*WaitSet {
	var sets []*WaitSet
	for _, t := range m.Transfers {
		if t.To.Kind == StationBath && !t.To.Accepts() {
			sets = append(sets, t.To.waiters)
		}
	}
	return sets
}

// holdForPlan sleeps until the advisory target start when the plan asks to hold.
func (m *Manipulator) holdForPlan(sim *Simulator, r *Rack, step int) bool {
	if sim.plan == nil || !sim.plan.hold {
		return false
	}
	target, ok := sim.plan.target(r.ID, step)
	if !ok || target <= sim.Clock {
		return false
	}
	logrus.Debugf("[tick %07d] %s holds rack %d step %d until planned start %d", sim.Clock, m.Name, r.ID, step, target)
	sim.Sleep(m, target-sim.Clock)
	return true
}

// hold suspends for d ticks on the first call and reports true once the time has passed.
func (m *Manipulator) hold(sim *Simulator, d int64) bool {
	if m.timing {
		m.timing = false
		return true
	}
	if d == 0 {
		return true
	}
	m.timing = true
	sim.Sleep(m, d)
	return false
}

func (m *Manipulator) travel(sim *Simulator, st *Station) bool {
	return m.travelTo(sim, st.Position, st.Priority)
}

// travelTo advances the manipulator towards pos and reports arrival. Starting a move requires the
// collision guard; once started, the move owns the remaining corridor and proceeds in MoveStep increments.
func (m *Manipulator) travelTo(sim *Simulator, pos float64, priority int) bool {
	if m.move == nil {
		if m.Position == pos {
			return true
		}
		if !sim.rail.PathClear(m.Position, pos, m.ID) {
			if m.blocked == nil {
				m.blocked = &railWait{since: sim.Clock, from: m.Position, to: pos, priority: priority}
				logrus.Debugf("[tick %07d] %s blocked on rail %.2f -> %.2f", sim.Clock, m.Name, m.Position, pos)
			}
			sim.Await(m, sim.rail.waiters)
			return false
		}
		if m.blocked != nil {
			sim.recordRailWait(m, *m.blocked)
			m.blocked = nil
		}
		m.move = &motion{
			from:     m.Position,
			to:       pos,
			start:    sim.Clock,
			duration: sim.line.TravelTicks(m.Kinematics, pos-m.Position),
		}
	} else {
		elapsed := sim.Clock - m.move.start
		if elapsed >= m.move.duration {
			m.setPosition(pos)
			m.move = nil
			sim.Notify(sim.rail.waiters)
			return true
		}
		m.setPosition(m.Kinematics.PositionAt(m.move.from, m.move.to, sim.line.Units(elapsed)))
		sim.Notify(sim.rail.waiters)
	}
	remaining := m.move.start + m.move.duration - sim.Clock
	sim.Sleep(m, min(sim.line.MoveStep, remaining))
	return false
}

func (m *Manipulator) setPosition(pos float64) {
	m.Position = pos
	if m.Carrying != nil {
		m.Carrying.Position = pos
	}
}

func (m *Manipulator) pickUp(sim *Simulator) {
	t := m.Transfers[m.step]
	r := m.rack
	if m.Carrying != nil {
		violation(InvariantCarrying, "%s picks rack %d while carrying rack %d", m.Name, r.ID, m.Carrying.ID)
	}
	if !t.From.Ready.Remove(r) {
		violation(InvariantOwnership, "%s picks rack %d which is not queued at %s", m.Name, r.ID, t.From.Name)
	}
	if t.From.Kind == StationBath {
		t.From.Release(r.ID)
	}
	if t.From.Kind == StationBath && t.From.DwellMax > 0 {
		if stayed := sim.Clock - r.DwellStart; stayed > t.From.DwellMax {
			logrus.Warnf("[tick %07d] rack %d overran %s: %.1f in bath, max %.1f",
				sim.Clock, r.ID, t.From.Name, sim.line.Units(stayed), sim.line.Units(t.From.DwellMax))
			sim.Metrics.recordOverrun(t.From.Name)
		}
	}
	r.Location = RackCarried
	r.CarriedBy = m.ID
	r.Station = -1
	m.Carrying = r
	m.pickedAt = sim.Clock
	logrus.Infof("[tick %07d] %s picked up rack %d from %s", sim.Clock, m.Name, r.ID, t.From.Name)
}

func (m *Manipulator) drop(sim *Simulator) {
	t := m.Transfers[m.step]
	r := m.Carrying
	m.Carrying = nil
	r.CarriedBy = -1
	r.Position = t.To.Position
	r.Station = t.To.Index

	switch t.To.Kind {
	case StationBath:
		t.To.BeginDwell(r.ID, sim.Clock)
		r.Location = RackDwelling
		r.DwellStart = sim.Clock
		sim.Schedule(&DwellCompleteEvent{
			BaseEvent: sim.newBaseEvent(sim.Clock+t.To.Dwell, EventTypeDwellComplete, t.To.Index),
			Station:   t.To,
			Rack:      r,
		})
		logrus.Infof("[tick %07d] %s dropped rack %d into %s", sim.Clock, m.Name, r.ID, t.To.Name)
	case StationExit:
		sim.finish(r, t.To)
		logrus.Infof("[tick %07d] %s stacked rack %d at %s (height %.2f)", sim.Clock, m.Name, r.ID, t.To.Name, r.StackHeight)
	default:
		violation(InvariantOwnership, "%s dropped rack %d at %s", m.Name, r.ID, t.To.Name)
	}

	rec := trace.TransferRecord{
		Rack:        r.ID,
		Step:        t.Step,
		Manipulator: m.ID,
		From:        t.From.Name,
		To:          t.To.Name,
		Start:       m.transferStart,
		Pickup:      m.pickedAt,
		End:         sim.Clock,
	}
	rec.Planned, rec.HasPlan = sim.plan.target(r.ID, t.Step)
	sim.Trace.RecordTransfer(rec)
	sim.Metrics.recordTransfer(m.Name)
	sim.Notify(m.homeWaiters)
}

func (m *Manipulator) stop(sim *Simulator) {
	m.State = StateStopped
	logrus.Infof("[tick %07d] %s stopped at %.2f", sim.Clock, m.Name, m.Position)
	sim.checkStopped()
}
