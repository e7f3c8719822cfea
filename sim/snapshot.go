package sim

// RackView is a rack's state inside a Snapshot.
type RackView struct {
	ID          int          `json:"id"`
	Position    float64      `json:"position"`
	Location    RackLocation `json:"location"`
	Station     string       `json:"station,omitempty"`
	CarriedBy   int          `json:"carried_by"`
	StackHeight float64      `json:"stack_height,omitempty"`
}

// ManipulatorView is a manipulator's state inside a Snapshot.
type ManipulatorView struct {
	ID       int              `json:"id"`
	Name     string           `json:"name"`
	Position float64          `json:"position"`
	State    ManipulatorState `json:"state"`
	Carrying int              `json:"carrying"` // rack ID, -1 when empty
	Moving   bool             `json:"moving"`
}

// Snapshot is a complete, self-contained copy of the line state at one tick. It shares no memory
// with the simulator, so consumers may keep and replay it freely.
type Snapshot struct {
	Tick         int64                    `json:"tick"`
	Time         float64                  `json:"time"`
	Racks        []RackView               `json:"racks"`
	Manipulators []ManipulatorView        `json:"manipulators"`
	Carried      map[int]int              `json:"carried"` // manipulator ID -> rack ID
	Dwell        map[string]map[int]int64 `json:"dwell"`   // bath -> rack ID -> dwell start tick
	Occupied     map[string]bool          `json:"occupied"`
	Queues       map[string][]int         `json:"queues"` // station -> ready rack IDs in arrival order
	Finished     []int                    `json:"finished"`
}

// Snapshot captures the current state. Two calls without an intervening event return equal records.
func (s *Simulator) Snapshot() Snapshot {
	snap := Snapshot{
		Tick:         s.Clock,
		Time:         s.line.Units(s.Clock),
		Racks:        make([]RackView, 0, len(s.Racks)),
		Manipulators: make([]ManipulatorView, 0, len(s.Manipulators)),
		Carried:      make(map[int]int),
		Dwell:        make(map[string]map[int]int64),
		Occupied:     make(map[string]bool),
		Queues:       make(map[string][]int),
		Finished:     append([]int{}, s.finished...),
	}
	for _, r := range s.Racks {
		v := RackView{
			ID:          r.ID,
			Position:    r.Position,
			Location:    r.Location,
			CarriedBy:   r.CarriedBy,
			StackHeight: r.StackHeight,
		}
		if r.Station >= 0 {
			v.Station = s.Stations[r.Station].Name
		}
		snap.Racks = append(snap.Racks, v)
	}
	for _, m := range s.Manipulators {
		v := ManipulatorView{
			ID:       m.ID,
			Name:     m.Name,
			Position: m.Position,
			State:    m.State,
			Carrying: -1,
			Moving:   m.Moving(),
		}
		if m.Carrying != nil {
			v.Carrying = m.Carrying.ID
			snap.Carried[m.ID] = m.Carrying.ID
		}
		snap.Manipulators = append(snap.Manipulators, v)
	}
	for _, st := range s.Stations {
		if st.Kind == StationBath {
			snap.Dwell[st.Name] = st.DwellStarts()
			snap.Occupied[st.Name] = st.Occupied()
		}
		if st.Kind != StationExit {
			ids := make([]int, 0, st.Ready.Len())
			for _, r := range st.Ready.Items() {
				ids = append(ids, r.ID)
			}
			snap.Queues[st.Name] = ids
		}
	}
	return snap
}

// record appends the current state to the timeline. A later record at the same tick replaces the
// earlier one, so the timeline holds the settled state of each sampled tick.
func (s *Simulator) record() {
	snap := s.Snapshot()
	if n := len(s.timeline); n > 0 && s.timeline[n-1].Tick == snap.Tick {
		s.timeline[n-1] = snap
		return
	}
	s.timeline = append(s.timeline, snap)
}

// Timeline returns the ordered, append-only snapshot sequence recorded so far.
func (s *Simulator) Timeline() []Snapshot {
	return s.timeline
}

// Diagnostics returns a copy of the last snapshots, as attached to run errors.
func (s *Simulator) Diagnostics() []Snapshot {
	n := s.line.Diagnostics
	if n > len(s.timeline) {
		n = len(s.timeline)
	}
	return append([]Snapshot(nil), s.timeline[len(s.timeline)-n:]...)
}
