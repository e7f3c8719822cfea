package cmd

import (
	_ "embed"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hoist-sim/hoist-sim/sim"
)

// defaultLine is the reference three-bath line used when no --config is given.
//
//go:embed defaults.yaml
var defaultLine []byte

// loadLineConfig reads the configured line, or the embedded default, and applies the
// command-line overrides.
func loadLineConfig(s *Settings) (*sim.LineConfig, error) {
	var (
		cfg *sim.LineConfig
		err error
	)
	if s.Config == "" {
		logrus.Infof("no --config given, using the built-in three-bath line")
		cfg, err = sim.ParseLineConfig(defaultLine)
	} else {
		cfg, err = sim.LoadLineConfig(s.Config)
	}
	if err != nil {
		return nil, err
	}
	if s.Horizon > 0 {
		cfg.Termination.Horizon = s.Horizon
	}
	if s.Trace != "" {
		cfg.Trace = s.Trace
	}
	return cfg, nil
}

// buildSimulator resolves the line and plan named by the settings.
func buildSimulator(s *Settings) (*sim.Simulator, error) {
	cfg, err := loadLineConfig(s)
	if err != nil {
		return nil, err
	}
	line, err := sim.NewLine(cfg)
	if err != nil {
		return nil, err
	}
	var plan *sim.AdvisoryPlan
	if s.Plan != "" {
		if plan, err = sim.LoadAdvisoryPlan(s.Plan); err != nil {
			return nil, err
		}
	}
	simulator, err := sim.NewSimulator(line, plan)
	if err != nil {
		return nil, fmt.Errorf("advisory plan %s: %w", s.Plan, err)
	}
	return simulator, nil
}
