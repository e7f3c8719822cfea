// Implements the HandoffQueue, which holds racks waiting to be picked up at a station.
// Racks are enqueued when seeded at Entry or when their bath dwell elapses.

package sim

import (
	"fmt"
	"strings"
)

// PickPolicy decides which ready rack a manipulator takes when more than one is available.
type PickPolicy string

const (
	PickAuto     PickPolicy = "auto"     // plan when an advisory plan is loaded, fifo otherwise
	PickFIFO     PickPolicy = "fifo"     // arrival order
	PickPriority PickPolicy = "priority" // rack priority desc, then advisory target, then arrival
	PickPlan     PickPolicy = "plan"     // advisory target asc, then arrival
)

// IsValidPickPolicy reports whether name is a known pick policy.
func IsValidPickPolicy(name string) bool {
	switch PickPolicy(name) {
	case PickAuto, PickFIFO, PickPriority, PickPlan:
		return true
	}
	return false
}

// resolvePickPolicy settles PickAuto against whether a plan is loaded.
func resolvePickPolicy(policy PickPolicy, hasPlan bool) PickPolicy {
	if policy != PickAuto {
		return policy
	}
	if hasPlan {
		return PickPlan
	}
	return PickFIFO
}

// TargetFunc returns the advisory target start tick of a rack's next transfer, if the plan has one.
type TargetFunc func(rackID int) (int64, bool)

// HandoffQueue is the ordered buffer of racks ready for pickup at one station.
type HandoffQueue struct {
	queue []*Rack // arrival order
}

// Enqueue adds a rack to the back of the queue.
func (q *HandoffQueue) Enqueue(r *Rack) {
	if r == nil {
		panic("Enqueue: rack must not be nil")
	}
	q.queue = append(q.queue, r)
}

func (q *HandoffQueue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, r := range q.queue {
		sb.WriteString(fmt.Sprint(r.ID))
		if i < len(q.queue)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}

// Len returns the number of racks in the queue.
func (q *HandoffQueue) Len() int {
	return len(q.queue)
}

// Peek returns the rack at the front of the queue without removing it.
// Returns nil if the queue is empty.
func (q *HandoffQueue) Peek() *Rack {
	if len(q.queue) == 0 {
		return nil
	}
	return q.queue[0]
}

// Items returns the queue contents for iteration.
// The returned slice is the queue's internal storage; callers MUST NOT modify it.
func (q *HandoffQueue) Items() []*Rack {
	return q.queue
}

// Contains reports whether the rack is queued here.
func (q *HandoffQueue) Contains(rackID int) bool {
	for _, r := range q.queue {
		if r.ID == rackID {
			return true
		}
	}
	return false
}

// Remove takes the rack out of the queue, preserving the order of the others.
// Returns false if the rack was not queued.
func (q *HandoffQueue) Remove(r *Rack) bool {
	for i, x := range q.queue {
		if x == r {
			q.queue = append(q.queue[:i], q.queue[i+1:]...)
			return true
		}
	}
	return false
}

// Select returns the rack the policy picks next without removing it, or nil if the queue is empty.
// target may be nil when no advisory plan is loaded.
func (q *HandoffQueue) Select(policy PickPolicy, target TargetFunc) *Rack {
	if len(q.queue) == 0 {
		return nil
	}
	if target == nil {
		target = func(int) (int64, bool) { return 0, false }
	}
	best := q.queue[0]
	for _, r := range q.queue[1:] {
		if picksBefore(policy, target, r, best) {
			best = r
		}
	}
	return best
}

// picksBefore reports whether a strictly beats b; ties keep arrival order.
func picksBefore(policy PickPolicy, target TargetFunc, a, b *Rack) bool {
	switch policy {
	case PickPriority:
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return targetBefore(target, a, b)
	case PickPlan:
		return targetBefore(target, a, b)
	default:
		return false
	}
}

// targetBefore orders racks with an advisory target ahead of those without, earliest target first.
func targetBefore(target TargetFunc, a, b *Rack) bool {
	ta, okA := target(a.ID)
	tb, okB := target(b.ID)
	switch {
	case okA && okB:
		return ta < tb
	case okA:
		return true
	default:
		return false
	}
}
