package trace

// TraceLevel controls the verbosity of schedule tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelTransfers captures every completed transfer and every rail wait.
	TraceLevelTransfers TraceLevel = "transfers"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelTransfers: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// ScheduleTrace collects the realized schedule of a line simulation.
type ScheduleTrace struct {
	Level     TraceLevel
	Transfers []TransferRecord
	RailWaits []RailWaitRecord
}

// NewScheduleTrace creates a ScheduleTrace ready for recording.
func NewScheduleTrace(level TraceLevel) *ScheduleTrace {
	return &ScheduleTrace{
		Level:     level,
		Transfers: make([]TransferRecord, 0),
		RailWaits: make([]RailWaitRecord, 0),
	}
}

// Enabled reports whether records should be collected.
func (st *ScheduleTrace) Enabled() bool {
	return st != nil && st.Level == TraceLevelTransfers
}

// RecordTransfer appends a completed transfer.
func (st *ScheduleTrace) RecordTransfer(record TransferRecord) {
	if !st.Enabled() {
		return
	}
	st.Transfers = append(st.Transfers, record)
}

// RecordRailWait appends a rail wait.
func (st *ScheduleTrace) RecordRailWait(record RailWaitRecord) {
	if !st.Enabled() {
		return
	}
	st.RailWaits = append(st.RailWaits, record)
}
