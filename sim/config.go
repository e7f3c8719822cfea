package sim

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hoist-sim/hoist-sim/sim/kinematics"
	"github.com/hoist-sim/hoist-sim/sim/recipe"
	"github.com/hoist-sim/hoist-sim/sim/trace"
)

// Defaults applied to unset configuration fields.
const (
	DefaultResolution     int64 = 10
	DefaultMoveStep             = 0.1
	DefaultSnapshotPeriod       = 0.1
	DefaultDiagnostics          = 50
	DefaultGrace                = 10.0
	DefaultStackBase            = 1.0
	DefaultStackStep            = 0.3
	DefaultHomeFraction         = 0.2
)

// LineConfig is the static description of a line, consumed once at simulation start.
// All durations and distances are in time units and line units; Resolution converts time units to ticks.
type LineConfig struct {
	Resolution   int64                        `yaml:"resolution"` // ticks per time unit
	Technology   string                       `yaml:"technology"`
	Technologies map[string]recipe.Technology `yaml:"technologies"`
	Entry        EntryConfig                  `yaml:"entry"`
	Exit         ExitConfig                   `yaml:"exit"`
	Racks        RacksConfig                  `yaml:"racks"`
	Kinematics   kinematics.Profile           `yaml:"kinematics"` // shared by manipulators without their own
	Manipulators []ManipulatorConfig          `yaml:"manipulators"`
	Safety       float64                      `yaml:"safety_distance"`
	MoveStep     float64                      `yaml:"move_step"` // time between position updates
	Grace        *float64                     `yaml:"grace"`
	Stack        StackConfig                  `yaml:"stack"`
	Snapshots    SnapshotConfig               `yaml:"snapshots"`
	Policies     PolicyConfig                 `yaml:"policies"`
	Termination  TerminationConfig            `yaml:"termination"`
	Trace        string                       `yaml:"trace"`
}

// EntryConfig describes the Entry station.
type EntryConfig struct {
	Name     string  `yaml:"name"`
	Position float64 `yaml:"position"`
	Drip     float64 `yaml:"drip_time"`
}

// ExitConfig describes the Exit station.
type ExitConfig struct {
	Name             string  `yaml:"name"`
	CrossingDistance float64 `yaml:"crossing_distance"` // from the last bath
}

// RacksConfig describes the racks seeded into Entry.
type RacksConfig struct {
	Count      int   `yaml:"count"`
	Priorities []int `yaml:"priorities"` // by rack ID; missing entries are 0
}

// ManipulatorConfig describes one manipulator. Unset fields are derived from the line.
type ManipulatorConfig struct {
	Name       string              `yaml:"name"`
	Home       *float64            `yaml:"home"`
	Transfers  []int               `yaml:"transfers"` // [first, last] transfer steps, inclusive
	Kinematics *kinematics.Profile `yaml:"kinematics"`
}

// StackConfig sets the Exit stack geometry: height = base + step*arrivalIndex.
type StackConfig struct {
	Base *float64 `yaml:"base"`
	Step *float64 `yaml:"step"`
}

// SnapshotConfig controls the snapshot feed.
type SnapshotConfig struct {
	Period      float64 `yaml:"period"`
	Diagnostics int     `yaml:"diagnostics"` // snapshots attached to liveness and invariant errors
}

// PolicyConfig selects the tie-break policies.
type PolicyConfig struct {
	Pick string `yaml:"pick"`
	Rail string `yaml:"rail"`
}

// TerminationConfig bounds the run. A zero horizon means the derived bound is used.
type TerminationConfig struct {
	Horizon float64 `yaml:"horizon"`
}

// LoadLineConfig reads and parses a YAML line configuration file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadLineConfig(path string) (*LineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading line config: %w", err)
	}
	return ParseLineConfig(data)
}

// ParseLineConfig parses a YAML line configuration and applies defaults.
func ParseLineConfig(data []byte) (*LineConfig, error) {
	var cfg LineConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing line config: %v", ErrInvalidConfig, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields. Explicit zero values for pointer fields are kept.
func (c *LineConfig) ApplyDefaults() {
	if c.Resolution == 0 {
		c.Resolution = DefaultResolution
	}
	if c.Entry.Name == "" {
		c.Entry.Name = "entry"
	}
	if c.Exit.Name == "" {
		c.Exit.Name = "exit"
	}
	if c.MoveStep == 0 {
		c.MoveStep = DefaultMoveStep
	}
	if c.Grace == nil {
		g := DefaultGrace
		c.Grace = &g
	}
	if c.Stack.Base == nil {
		b := DefaultStackBase
		c.Stack.Base = &b
	}
	if c.Stack.Step == nil {
		s := DefaultStackStep
		c.Stack.Step = &s
	}
	if c.Snapshots.Period == 0 {
		c.Snapshots.Period = DefaultSnapshotPeriod
	}
	if c.Snapshots.Diagnostics == 0 {
		c.Snapshots.Diagnostics = DefaultDiagnostics
	}
	if c.Policies.Pick == "" {
		c.Policies.Pick = string(PickAuto)
	}
	if c.Policies.Rail == "" {
		c.Policies.Rail = string(RailByIndex)
	}
	if c.Trace == "" {
		c.Trace = string(trace.TraceLevelNone)
	}
}

// Validate checks the parts of the configuration that do not depend on the recipe.
// Geometry checks that need station positions run in NewLine.
func (c *LineConfig) Validate() error {
	if name, ok := c.nonFinite(); ok {
		return invalid("%s must be finite", name)
	}
	if c.Resolution <= 0 {
		return invalid("resolution must be positive, got %d", c.Resolution)
	}
	if c.Racks.Count <= 0 {
		return invalid("racks.count must be positive, got %d", c.Racks.Count)
	}
	if len(c.Racks.Priorities) > c.Racks.Count {
		return invalid("racks.priorities has %d entries for %d racks", len(c.Racks.Priorities), c.Racks.Count)
	}
	if len(c.Manipulators) == 0 {
		return invalid("at least one manipulator is required")
	}
	if _, ok := c.Technologies[c.Technology]; !ok {
		return invalid("technology %q is not defined", c.Technology)
	}
	if c.Entry.Drip < 0 {
		return invalid("entry.drip_time must be non-negative, got %g", c.Entry.Drip)
	}
	if c.Exit.CrossingDistance <= 0 {
		return invalid("exit.crossing_distance must be positive, got %g", c.Exit.CrossingDistance)
	}
	if c.Entry.Name == c.Exit.Name {
		return invalid("entry and exit share the name %q", c.Entry.Name)
	}
	sharedUsed := false
	for i, m := range c.Manipulators {
		if m.Kinematics == nil {
			sharedUsed = true
		} else if err := m.Kinematics.Validate(); err != nil {
			return invalid("manipulators[%d].kinematics: %v", i, err)
		}
		if m.Transfers != nil && len(m.Transfers) != 2 {
			return invalid("manipulators[%d].transfers must be [first, last], got %v", i, m.Transfers)
		}
		if m.Home != nil && !isFinite(*m.Home) {
			return invalid("manipulators[%d].home must be finite", i)
		}
	}
	if sharedUsed {
		if err := c.Kinematics.Validate(); err != nil {
			return invalid("kinematics: %v", err)
		}
	}
	if c.Safety < 0 {
		return invalid("safety_distance must be non-negative, got %g", c.Safety)
	}
	if c.MoveStep <= 0 {
		return invalid("move_step must be positive, got %g", c.MoveStep)
	}
	if c.Grace != nil && *c.Grace < 0 {
		return invalid("grace must be non-negative, got %g", *c.Grace)
	}
	if c.Stack.Step != nil && *c.Stack.Step <= 0 {
		return invalid("stack.step must be positive, got %g", *c.Stack.Step)
	}
	if c.Snapshots.Period <= 0 {
		return invalid("snapshots.period must be positive, got %g", c.Snapshots.Period)
	}
	if c.Snapshots.Diagnostics < 0 {
		return invalid("snapshots.diagnostics must be non-negative, got %d", c.Snapshots.Diagnostics)
	}
	if !IsValidPickPolicy(c.Policies.Pick) {
		return invalid("unknown pick policy %q; valid: auto, fifo, priority, plan", c.Policies.Pick)
	}
	if !IsValidRailPolicy(c.Policies.Rail) {
		return invalid("unknown rail policy %q; valid: index, priority", c.Policies.Rail)
	}
	if c.Termination.Horizon < 0 {
		return invalid("termination.horizon must be non-negative, got %g", c.Termination.Horizon)
	}
	if !trace.IsValidTraceLevel(c.Trace) {
		return invalid("unknown trace level %q; valid: none, transfers", c.Trace)
	}
	return nil
}

// nonFinite returns the first numeric setting that is NaN or infinite.
func (c *LineConfig) nonFinite() (string, bool) {
	fields := []struct {
		name string
		v    *float64
	}{
		{"entry.position", &c.Entry.Position},
		{"entry.drip_time", &c.Entry.Drip},
		{"exit.crossing_distance", &c.Exit.CrossingDistance},
		{"safety_distance", &c.Safety},
		{"move_step", &c.MoveStep},
		{"grace", c.Grace},
		{"stack.base", c.Stack.Base},
		{"stack.step", c.Stack.Step},
		{"snapshots.period", &c.Snapshots.Period},
		{"termination.horizon", &c.Termination.Horizon},
	}
	for _, f := range fields {
		if f.v != nil && !isFinite(*f.v) {
			return f.name, true
		}
	}
	return "", false
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
