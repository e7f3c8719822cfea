package sim

import (
	"bytes"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// AdvisoryEntry is one precomputed assignment: which manipulator should move the rack at a
// transfer step, and when it should start.
type AdvisoryEntry struct {
	Rack        int     `yaml:"rack"`
	Step        int     `yaml:"step"`
	Manipulator int     `yaml:"manipulator"`
	Start       float64 `yaml:"start"` // time units
}

// AdvisoryPlan is an optional schedule produced offline. The engine uses it as a tie-break only;
// with Hold set, a manipulator also waits for a transfer's target start before picking the rack up.
type AdvisoryPlan struct {
	Hold    bool            `yaml:"hold"`
	Entries []AdvisoryEntry `yaml:"entries"`
}

// LoadAdvisoryPlan reads and parses a YAML advisory plan file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadAdvisoryPlan(path string) (*AdvisoryPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading advisory plan: %w", err)
	}
	return ParseAdvisoryPlan(data)
}

// ParseAdvisoryPlan parses a YAML advisory plan.
func ParseAdvisoryPlan(data []byte) (*AdvisoryPlan, error) {
	var plan AdvisoryPlan
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&plan); err != nil {
		return nil, fmt.Errorf("%w: parsing advisory plan: %v", ErrInvalidConfig, err)
	}
	return &plan, nil
}

// Validate checks the plan against the line it will run on.
func (p *AdvisoryPlan) Validate(line *Line) error {
	seen := make(map[advisoryKey]bool, len(p.Entries))
	for i, e := range p.Entries {
		if e.Rack < 0 || e.Rack >= len(line.Racks) {
			return invalid("advisory entry %d: rack %d out of range [0, %d)", i, e.Rack, len(line.Racks))
		}
		if e.Step < 0 || e.Step >= line.TransferCount() {
			return invalid("advisory entry %d: step %d out of range [0, %d)", i, e.Step, line.TransferCount())
		}
		if e.Manipulator < 0 || e.Manipulator >= len(line.Manipulators) {
			return invalid("advisory entry %d: manipulator %d out of range [0, %d)", i, e.Manipulator, len(line.Manipulators))
		}
		if e.Start < 0 {
			return invalid("advisory entry %d: start must be non-negative, got %g", i, e.Start)
		}
		k := advisoryKey{rack: e.Rack, step: e.Step}
		if seen[k] {
			return invalid("advisory entry %d: duplicate rack %d step %d", i, e.Rack, e.Step)
		}
		seen[k] = true
	}
	return nil
}

type advisoryKey struct {
	rack, step int
}

// advisory is the compiled, tick-based plan. A nil *advisory means no plan.
type advisory struct {
	hold    bool
	targets map[advisoryKey]int64
}

func compileAdvisory(p *AdvisoryPlan, line *Line) *advisory {
	if p == nil {
		return nil
	}
	a := &advisory{hold: p.Hold, targets: make(map[advisoryKey]int64, len(p.Entries))}
	mismatched := 0
	for _, e := range p.Entries {
		if owner := line.Owner(e.Step); owner != e.Manipulator {
			mismatched++
			logrus.Debugf("advisory: rack %d step %d planned for manipulator %d, owned by %d", e.Rack, e.Step, e.Manipulator, owner)
		}
		a.targets[advisoryKey{rack: e.Rack, step: e.Step}] = line.Ticks(e.Start)
	}
	if mismatched > 0 {
		logrus.Warnf("advisory plan assigns %d transfers to a manipulator that does not own the step; targets are still used as tie-breaks", mismatched)
	}
	return a
}

// target returns the planned start tick of a rack's transfer step.
func (a *advisory) target(rack, step int) (int64, bool) {
	if a == nil {
		return 0, false
	}
	t, ok := a.targets[advisoryKey{rack: rack, step: step}]
	return t, ok
}

// targetsFor adapts the plan to a HandoffQueue selection at one step.
func (a *advisory) targetsFor(step int) TargetFunc {
	if a == nil {
		return nil
	}
	return func(rack int) (int64, bool) { return a.target(rack, step) }
}
