package sim

import "github.com/sirupsen/logrus"

// EventType classifies events for same-tick ordering.
type EventType int

const (
	EventTypeDwellComplete EventType = iota
	EventTypeAgentWake
	EventTypeShutdown
	EventTypeSnapshot
)

// EventTypePriority orders events that share a timestamp (lower runs first).
// Dwell completions become visible before agents re-evaluate their predicates, and snapshots
// are taken only after every state change of the tick has been applied.
var EventTypePriority = map[EventType]int{
	EventTypeDwellComplete: 0,
	EventTypeAgentWake:     1,
	EventTypeShutdown:      2,
	EventTypeSnapshot:      3,
}

// Event defines the interface for all simulation events.
// Each event has a Timestamp (in ticks) and an Execute method that advances simulation state.
type Event interface {
	Timestamp() int64
	EventID() uint64
	Type() EventType
	// Rank breaks ties between events of the same type at the same tick.
	Rank() int
	Execute(*Simulator)
}

// BaseEvent provides common event fields.
type BaseEvent struct {
	timestamp int64
	eventID   uint64
	eventType EventType
	rank      int
}

func (s *Simulator) newBaseEvent(timestamp int64, eventType EventType, rank int) BaseEvent {
	s.nextEventID++
	return BaseEvent{
		timestamp: timestamp,
		eventID:   s.nextEventID,
		eventType: eventType,
		rank:      rank,
	}
}

func (e *BaseEvent) Timestamp() int64 { return e.timestamp }
func (e *BaseEvent) EventID() uint64  { return e.eventID }
func (e *BaseEvent) Type() EventType  { return e.eventType }
func (e *BaseEvent) Rank() int        { return e.rank }

// WakeEvent resumes a suspended agent.
type WakeEvent struct {
	BaseEvent
	Agent Agent
}

// Execute resumes the agent.
func (e *WakeEvent) Execute(sim *Simulator) {
	e.Agent.Resume(sim)
}

// DwellCompleteEvent fires when a rack's mandatory bath time has elapsed. It publishes the rack in
// the bath's hand-off queue, where the downstream manipulator can take it. The dwell start stays
// recorded until pickup.
type DwellCompleteEvent struct {
	BaseEvent
	Station *Station
	Rack    *Rack
}

// Execute publishes the rack for pickup.
func (e *DwellCompleteEvent) Execute(sim *Simulator) {
	st, r := e.Station, e.Rack
	if !st.DwellElapsed(r.ID, sim.Clock) {
		violation(InvariantDwell, "rack %d released from %s before its dwell elapsed", r.ID, st.Name)
	}
	r.Location = RackQueued
	st.Ready.Enqueue(r)
	logrus.Infof("[tick %07d] rack %d finished dwelling in %s", sim.Clock, r.ID, st.Name)
	sim.Notify(st.waiters)
}

// ShutdownEvent ends the grace period that follows the last rack reaching Exit.
type ShutdownEvent struct {
	BaseEvent
}

// Execute raises the shutdown flag and wakes every waiting agent so it can exit at its safe point.
func (e *ShutdownEvent) Execute(sim *Simulator) {
	logrus.Infof("[tick %07d] grace period over, shutting down", sim.Clock)
	sim.shutdown = true
	for _, m := range sim.Manipulators {
		sim.wake(m)
	}
	sim.checkStopped()
}

// SnapshotEvent samples the simulation state for the timeline.
type SnapshotEvent struct {
	BaseEvent
}

// Execute records a snapshot and schedules the next sample while the clock runs.
func (e *SnapshotEvent) Execute(sim *Simulator) {
	sim.record()
	if !sim.stopped {
		sim.Schedule(&SnapshotEvent{BaseEvent: sim.newBaseEvent(sim.Clock+sim.line.SnapshotPeriod, EventTypeSnapshot, 0)})
	}
}
