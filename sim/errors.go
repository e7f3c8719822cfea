package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig wraps every configuration fault. These are reported before any simulation
	// state is created.
	ErrInvalidConfig = errors.New("invalid line configuration")

	// ErrHorizonExceeded is the liveness fault raised when the virtual-time budget runs out before
	// every rack reached Exit.
	ErrHorizonExceeded = errors.New("virtual-time horizon exceeded")

	// ErrStalled is the liveness fault raised when no event is pending and racks are unfinished.
	ErrStalled = errors.New("simulation stalled")

	// ErrInvariant is wrapped by every InvariantViolation.
	ErrInvariant = errors.New("invariant violated")
)

// Invariant names reported by InvariantViolation.
const (
	InvariantCapacity  = "bath-capacity"
	InvariantDwell     = "dwell-time"
	InvariantOwnership = "rack-ownership"
	InvariantCarrying  = "carrying"
	InvariantStacking  = "stacking"
	InvariantCollision = "collision"
)

// LivenessError reports a run that could not reach its termination predicate.
type LivenessError struct {
	Cause     error // ErrHorizonExceeded or ErrStalled
	Clock     int64
	Finished  int
	Total     int
	Snapshots []Snapshot // the last recorded snapshots, oldest first
}

func (e *LivenessError) Error() string {
	return fmt.Sprintf("%v at tick %d: %d/%d racks finished", e.Cause, e.Clock, e.Finished, e.Total)
}

func (e *LivenessError) Unwrap() error { return e.Cause }

// InvariantViolation is a fatal protocol fault. The run aborts with the diagnostic tail attached.
type InvariantViolation struct {
	Invariant string
	Detail    string
	Clock     int64
	Snapshots []Snapshot
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("%v (%s) at tick %d: %s", ErrInvariant, e.Invariant, e.Clock, e.Detail)
}

func (e *InvariantViolation) Unwrap() error { return ErrInvariant }

// violation aborts the current event. Simulator.Run recovers it and fills in clock and snapshots.
func violation(invariant, format string, args ...any) {
	panic(&InvariantViolation{Invariant: invariant, Detail: fmt.Sprintf(format, args...)})
}
