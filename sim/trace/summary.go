package trace

// TraceSummary aggregates statistics from a ScheduleTrace.
type TraceSummary struct {
	TotalTransfers   int
	TransfersByManip map[int]int   // manipulator ID → transfers completed
	RailWaitByManip  map[int]int64 // manipulator ID → ticks blocked by the guard
	RailWaitCount    int
	MaxRailWait      int64
	PlannedTransfers int
	MeanDeviation    float64 // ticks, over planned transfers
	MaxLateness      int64
}

// Summarize computes aggregate statistics from a ScheduleTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *ScheduleTrace) *TraceSummary {
	summary := &TraceSummary{
		TransfersByManip: make(map[int]int),
		RailWaitByManip:  make(map[int]int64),
	}
	if st == nil {
		return summary
	}

	summary.TotalTransfers = len(st.Transfers)
	var totalDeviation int64
	for _, r := range st.Transfers {
		summary.TransfersByManip[r.Manipulator]++
		if !r.HasPlan {
			continue
		}
		summary.PlannedTransfers++
		d := r.Deviation()
		totalDeviation += d
		if d > summary.MaxLateness {
			summary.MaxLateness = d
		}
	}
	if summary.PlannedTransfers > 0 {
		summary.MeanDeviation = float64(totalDeviation) / float64(summary.PlannedTransfers)
	}

	summary.RailWaitCount = len(st.RailWaits)
	for _, w := range st.RailWaits {
		summary.RailWaitByManip[w.Manipulator] += w.Duration()
		if w.Duration() > summary.MaxRailWait {
			summary.MaxRailWait = w.Duration()
		}
	}

	return summary
}
