// Tracks line-wide and per-rack results such as makespan, stack heights, rail waits and dwell overruns.

package sim

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates statistics about a run for final reporting. Counters are mirrored into a
// per-run Prometheus registry so several simulations can coexist in one process.
type Metrics struct {
	Makespan      int64            // tick the last rack reached Exit
	StoppedAt     int64            // tick the clock stopped
	FinishTimes   map[int]int64    // rack ID -> tick stacked
	StackHeights  map[int]float64  // rack ID -> stack height
	Transfers     map[string]int   // manipulator name -> transfers completed
	RailWaitTicks map[string]int64 // manipulator name -> ticks blocked by the collision guard
	DwellOverruns map[string]int   // station name -> pickups later than the bath's maximum time
	RailPolicy    RailPolicy
	PickPolicy    PickPolicy
	resolution    int64

	registry      *prometheus.Registry
	racksFinished prometheus.Counter
	transfers     *prometheus.CounterVec
	railWait      *prometheus.CounterVec
	overruns      *prometheus.CounterVec
	makespan      prometheus.Gauge
}

// NewMetrics creates empty metrics backed by a fresh registry.
func NewMetrics(line *Line) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		FinishTimes:   make(map[int]int64),
		StackHeights:  make(map[int]float64),
		Transfers:     make(map[string]int),
		RailWaitTicks: make(map[string]int64),
		DwellOverruns: make(map[string]int),
		RailPolicy:    line.RailPolicy,
		PickPolicy:    line.PickPolicy,
		resolution:    line.Resolution,

		registry: reg,
		racksFinished: factory.NewCounter(prometheus.CounterOpts{
			Name: "hoist_racks_finished_total",
			Help: "Racks stacked at Exit",
		}),
		transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hoist_transfers_total",
			Help: "Completed rack transfers by manipulator",
		}, []string{"manipulator"}),
		railWait: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hoist_rail_wait_time_units_total",
			Help: "Virtual time spent blocked by the collision guard, by manipulator",
		}, []string{"manipulator"}),
		overruns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hoist_dwell_overruns_total",
			Help: "Pickups later than the bath's maximum time, by station",
		}, []string{"station"}),
		makespan: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hoist_makespan_time_units",
			Help: "Virtual time at which the last rack reached Exit",
		}),
	}
}

// Registry exposes the run's collectors, e.g. for promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) units(ticks int64) float64 {
	return float64(ticks) / float64(m.resolution)
}

func (m *Metrics) recordFinish(r *Rack) {
	m.FinishTimes[r.ID] = r.FinishedAt
	m.StackHeights[r.ID] = r.StackHeight
	m.racksFinished.Inc()
	if r.FinishedAt > m.Makespan {
		m.Makespan = r.FinishedAt
		m.makespan.Set(m.units(r.FinishedAt))
	}
}

func (m *Metrics) recordTransfer(manipulator string) {
	m.Transfers[manipulator]++
	m.transfers.WithLabelValues(manipulator).Inc()
}

func (m *Metrics) recordRailWait(manipulator string, ticks int64) {
	m.RailWaitTicks[manipulator] += ticks
	m.railWait.WithLabelValues(manipulator).Add(m.units(ticks))
}

func (m *Metrics) recordOverrun(station string) {
	m.DwellOverruns[station]++
	m.overruns.WithLabelValues(station).Inc()
}

// Print displays aggregated metrics at the end of the simulation on stdout.
func (m *Metrics) Print() {
	m.Fprint(os.Stdout)
}

// Fprint writes the report to w.
func (m *Metrics) Fprint(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Metrics ===")
	fmt.Fprintf(w, "Racks Finished       : %d\n", len(m.FinishTimes))
	fmt.Fprintf(w, "Makespan             : %.1f (%d ticks)\n", m.units(m.Makespan), m.Makespan)
	fmt.Fprintf(w, "Clock Stopped        : %.1f\n", m.units(m.StoppedAt))
	fmt.Fprintf(w, "Policies             : pick=%s rail=%s\n", m.PickPolicy, m.RailPolicy)

	ids := make([]int, 0, len(m.FinishTimes))
	for id := range m.FinishTimes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "  rack %-3d finished at %8.1f  stack height %.2f\n", id, m.units(m.FinishTimes[id]), m.StackHeights[id])
	}

	for _, name := range sortedKeys(m.Transfers) {
		fmt.Fprintf(w, "  %-8s transfers %4d  rail wait %8.1f\n", name, m.Transfers[name], m.units(m.RailWaitTicks[name]))
	}
	for _, name := range sortedKeys(m.DwellOverruns) {
		fmt.Fprintf(w, "  dwell overruns at %-12s %d\n", name, m.DwellOverruns[name])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
