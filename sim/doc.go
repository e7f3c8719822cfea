// Package sim provides the discrete-event scheduling engine for hoist lines: racks carried by
// rail-bound manipulators from Entry through capacity-1 baths to the Exit stack.
//
// # Reading Guide
//
// Start with these files to understand the engine:
//   - event.go, event_heap.go: the clock. Events order by tick, type, rank, then creation.
//   - wait.go: how agents suspend (Sleep on a timer, Await on waiter sets) and are woken (Notify).
//   - manipulator.go: the manipulator cycle as an explicit state machine.
//   - simulator.go: the driver, termination, and the invariants checked after every event.
//
// # Architecture
//
// Everything runs on one goroutine. An agent's Resume executes until its next suspension point,
// so each step is atomic with respect to every other agent. Readiness and collision waits are
// wake-on-event: stations, the rail and each manipulator's home arrival own a WaitSet that is
// notified on every change, and woken agents re-check their predicate at the same tick.
//
// Sub-packages carry the parts that do not depend on the engine:
//   - sim/kinematics/: travel and plunge/lift timing
//   - sim/recipe/: technology-keyed operation lists (which baths exist, dwell and drip times)
//   - sim/trace/: realized transfer and rail-wait records
//   - sim/stream/: WebSocket replay of the snapshot timeline
//
// # Failure Handling
//
// Configuration faults wrap ErrInvalidConfig and are returned by NewLine and NewSimulator.
// Run returns a *LivenessError when the horizon is exceeded or nothing can progress, and an
// *InvariantViolation when capacity, ownership, stacking or collision invariants break. Both carry
// the last snapshots for diagnosis.
package sim
