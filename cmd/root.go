package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hoist-sim/hoist-sim/sim"
	"github.com/hoist-sim/hoist-sim/sim/trace"
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "hoist-sim",
	Short: "Discrete-event simulator for hoist lines",
}

// runCmd simulates a line and prints the report
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the line simulation and print the report",
	Run: func(cmd *cobra.Command, args []string) {
		settings := mustSettings(cmd)

		startTime := time.Now()
		s, err := buildSimulator(settings)
		if err != nil {
			logrus.Fatalf("Cannot start simulation: %v", err)
		}
		err = runAndReport(s, os.Stdout)
		logrus.Infof("Simulation took %s wall time", time.Since(startTime))
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Info("Simulation complete.")
	},
}

// validateCmd checks a line configuration without simulating it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a line configuration and advisory plan for faults",
	Run: func(cmd *cobra.Command, args []string) {
		settings := mustSettings(cmd)
		if err := validateLine(settings, os.Stdout); err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
	},
}

// mustSettings resolves settings and the log level, exiting on error.
func mustSettings(cmd *cobra.Command) *Settings {
	settings, err := loadSettings(cmd)
	if err != nil {
		logrus.Fatalf("%v", err)
	}
	level, err := logrus.ParseLevel(settings.Log)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", settings.Log)
	}
	logrus.SetLevel(level)
	return settings
}

// runAndReport runs the simulation and writes the metrics report and trace summary to w.
// The report is written even when the run fails, covering the racks that did finish.
func runAndReport(s *sim.Simulator, w io.Writer) error {
	err := s.Run()
	s.Metrics.Fprint(w)
	if s.Trace.Enabled() {
		printTraceSummary(w, trace.Summarize(s.Trace), s.Line())
	}
	if err != nil {
		return fmt.Errorf("after %d of %d racks: %w", len(s.Finished()), len(s.Racks), err)
	}
	return nil
}

func printTraceSummary(w io.Writer, summary *trace.TraceSummary, line *sim.Line) {
	fmt.Fprintln(w, "=== Schedule Trace ===")
	fmt.Fprintf(w, "Transfers            : %d\n", summary.TotalTransfers)
	fmt.Fprintf(w, "Rail Waits           : %d (max %.1f)\n", summary.RailWaitCount, line.Units(summary.MaxRailWait))
	if summary.PlannedTransfers > 0 {
		fmt.Fprintf(w, "Planned Transfers    : %d (mean deviation %.1f, max lateness %.1f)\n",
			summary.PlannedTransfers, summary.MeanDeviation/float64(line.Resolution), line.Units(summary.MaxLateness))
	}
	ids := make([]int, 0, len(summary.TransfersByManip))
	for id := range summary.TransfersByManip {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "  %-8s transfers %4d  rail wait %8.1f\n",
			line.Manipulators[id].Name, summary.TransfersByManip[id], line.Units(summary.RailWaitByManip[id]))
	}
}

// validateLine resolves the configuration and plan and prints the resolved line.
func validateLine(settings *Settings, w io.Writer) error {
	s, err := buildSimulator(settings)
	if err != nil {
		return err
	}
	line := s.Line()
	fmt.Fprintf(w, "line OK: %d stations, %d manipulators, %d racks, horizon %.1f\n",
		len(line.Stations), len(line.Manipulators), len(line.Racks), line.Units(line.EffectiveHorizon()))
	for _, st := range line.Stations {
		fmt.Fprintf(w, "  %-10s %-5s at %8.1f  dwell %6.1f  drip %5.1f\n",
			st.Name, st.Kind, st.Position, line.Units(st.Dwell), line.Units(st.Drip))
	}
	for _, m := range line.Manipulators {
		fmt.Fprintf(w, "  %-10s home %8.1f  transfers %d..%d\n", m.Name, m.Home, m.First, m.Last)
	}
	return nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	addLineFlags(runCmd.Flags())
	addLineFlags(validateCmd.Flags())
	addLineFlags(serveCmd.Flags())
	addServeFlags(serveCmd.Flags())

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveCmd)
}
