// Package trace records the realized schedule of a line simulation.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// TransferRecord captures one realized transfer of a rack between two adjacent stations.
// It has the same shape as an advisory plan entry so plans and realized schedules compare directly.
type TransferRecord struct {
	Rack        int    `json:"rack"`
	Step        int    `json:"step"`
	Manipulator int    `json:"manipulator"`
	From        string `json:"from"`
	To          string `json:"to"`
	Start       int64  `json:"start"` // tick the manipulator committed to the transfer
	Pickup      int64  `json:"pickup"`
	End         int64  `json:"end"` // tick the drop completed
	// Planned is the advisory target start tick; valid only when HasPlan is true.
	Planned int64 `json:"planned,omitempty"`
	HasPlan bool  `json:"has_plan,omitempty"`
}

// Deviation returns how late (positive) or early (negative) the pickup happened relative to the plan.
func (r TransferRecord) Deviation() int64 {
	if !r.HasPlan {
		return 0
	}
	return r.Pickup - r.Planned
}

// RailWaitRecord captures a period a manipulator spent blocked by the collision guard.
type RailWaitRecord struct {
	Manipulator int     `json:"manipulator"`
	From        float64 `json:"from"`
	To          float64 `json:"to"`
	Start       int64   `json:"start"`
	End         int64   `json:"end"`
}

// Duration returns the wait length in ticks.
func (r RailWaitRecord) Duration() int64 {
	return r.End - r.Start
}
