package sim

// RackLocation names the single owner of a rack at any instant.
type RackLocation string

const (
	RackQueued   RackLocation = "queued"   // in a station's hand-off queue; a bath keeps its dwell start until pickup
	RackDwelling RackLocation = "dwelling" // in a bath's dwell set
	RackCarried  RackLocation = "carried"  // in a manipulator's carrying slot
	RackStacked  RackLocation = "stacked"  // terminal, on the Exit stack
)

// Rack is a unit of material moved through the line.
// It is mutated only by the manipulator carrying it or the station holding it.
type Rack struct {
	ID       int
	Priority int

	Position  float64
	Location  RackLocation
	Station   int // station index while queued, dwelling or stacked; -1 while carried
	CarriedBy int // manipulator ID while carried; -1 otherwise

	DwellStart  int64 // tick the current or last dwell started
	StackIndex  int   // arrival order at Exit; -1 until stacked
	StackHeight float64
	FinishedAt  int64
}

func newRack(id, priority int, entry *Station) *Rack {
	return &Rack{
		ID:         id,
		Priority:   priority,
		Position:   entry.Position,
		Location:   RackQueued,
		Station:    entry.Index,
		CarriedBy:  -1,
		StackIndex: -1,
	}
}

// Finished reports whether the rack reached Exit.
func (r *Rack) Finished() bool {
	return r.Location == RackStacked
}
