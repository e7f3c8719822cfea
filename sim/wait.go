package sim

// Agent is a cooperative task driven by the event loop. Resume runs the agent until its next
// suspension point: a timer (Sleep) or a condition (Await).
type Agent interface {
	AgentID() int
	Rank() int
	Resume(*Simulator)
}

// WaitSet is the set of agents blocked on one piece of shared state (a station, the rail, a
// manipulator's home arrival). Owners call Simulator.Notify after every change; waiters are then
// resumed at the current tick and re-evaluate their predicate.
type WaitSet struct {
	name    string
	waiters []Agent
}

func newWaitSet(name string) *WaitSet {
	return &WaitSet{name: name}
}

// Len returns the number of blocked agents.
func (w *WaitSet) Len() int {
	return len(w.waiters)
}

func (w *WaitSet) add(a Agent) {
	for _, x := range w.waiters {
		if x.AgentID() == a.AgentID() {
			return
		}
	}
	w.waiters = append(w.waiters, a)
}

func (w *WaitSet) remove(a Agent) {
	kept := w.waiters[:0]
	for _, x := range w.waiters {
		if x.AgentID() != a.AgentID() {
			kept = append(kept, x)
		}
	}
	w.waiters = kept
}

type waitState struct {
	waiting bool
	sets    []*WaitSet
}

func (s *Simulator) waitStateOf(a Agent) *waitState {
	ws, ok := s.waits[a.AgentID()]
	if !ok {
		ws = &waitState{}
		s.waits[a.AgentID()] = ws
	}
	return ws
}

// Sleep suspends the agent for d ticks.
func (s *Simulator) Sleep(a Agent, d int64) {
	if d < 0 {
		panic("Sleep: negative duration")
	}
	s.Schedule(&WakeEvent{BaseEvent: s.newBaseEvent(s.Clock+d, EventTypeAgentWake, a.Rank()), Agent: a})
}

// Await suspends the agent until any of the given sets is notified.
func (s *Simulator) Await(a Agent, sets ...*WaitSet) {
	if len(sets) == 0 {
		panic("Await: no wait sets")
	}
	ws := s.waitStateOf(a)
	ws.waiting = true
	ws.sets = append(ws.sets[:0], sets...)
	for _, set := range sets {
		set.add(a)
	}
}

// Notify wakes every agent blocked on the given sets. Wakes are delivered as events at the
// current tick, so the notifier finishes its own atomic step first.
func (s *Simulator) Notify(sets ...*WaitSet) {
	for _, set := range sets {
		if len(set.waiters) == 0 {
			continue
		}
		waiters := append([]Agent(nil), set.waiters...)
		for _, a := range waiters {
			s.wake(a)
		}
	}
}

func (s *Simulator) wake(a Agent) {
	ws := s.waitStateOf(a)
	if !ws.waiting {
		return
	}
	ws.waiting = false
	for _, set := range ws.sets {
		set.remove(a)
	}
	ws.sets = ws.sets[:0]
	s.Schedule(&WakeEvent{BaseEvent: s.newBaseEvent(s.Clock, EventTypeAgentWake, a.Rank()), Agent: a})
}

// waiting reports whether the agent is blocked on a condition.
func (s *Simulator) waiting(a Agent) bool {
	ws, ok := s.waits[a.AgentID()]
	return ok && ws.waiting
}
