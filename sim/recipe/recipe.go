// Package recipe models the per-technology operation list that defines which baths a line uses and
// how long racks stay in them. It has no dependency on the simulation engine.
package recipe

import (
	"errors"
	"fmt"
	"math"

	"github.com/antonmedv/expr"
)

// ErrRule is wrapped by errors raised while evaluating an operation's when rule.
var ErrRule = errors.New("operation rule")

// Operation is one immersion step of a technology.
type Operation struct {
	Name             string  `yaml:"name"`
	UsedInTech       bool    `yaml:"used_in_tech"`
	DoublePosition   bool    `yaml:"double_position"`
	TimeMin          float64 `yaml:"time_min"`
	TimeOpt          float64 `yaml:"time_opt"`
	TimeMax          float64 `yaml:"time_max"`
	DripTime         float64 `yaml:"drip_time"`
	CrossingDistance float64 `yaml:"crossing_distance"` // from the previous position on the rail
	Priority         int     `yaml:"priority"`
	// When is an optional boolean expression over the technology attributes; the operation is
	// skipped when it evaluates to false.
	When string `yaml:"when"`
}

// Dwell returns the mandatory bath time: the optimal time, or the minimum when no optimum is given.
func (o Operation) Dwell() float64 {
	if o.TimeOpt > 0 {
		return o.TimeOpt
	}
	return o.TimeMin
}

// Validate checks the operation's numeric ranges.
func (o Operation) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("operation name must not be empty")
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"time_min", o.TimeMin}, {"time_opt", o.TimeOpt}, {"time_max", o.TimeMax},
		{"drip_time", o.DripTime}, {"crossing_distance", o.CrossingDistance},
	} {
		if !(f.v >= 0) || math.IsInf(f.v, 0) {
			return fmt.Errorf("operation %q: %s must be finite and non-negative, got %g", o.Name, f.name, f.v)
		}
	}
	if o.Dwell() <= 0 {
		return fmt.Errorf("operation %q: time_opt or time_min must be positive", o.Name)
	}
	if o.TimeOpt > 0 && o.TimeOpt < o.TimeMin {
		return fmt.Errorf("operation %q: time_opt %g below time_min %g", o.Name, o.TimeOpt, o.TimeMin)
	}
	if o.TimeMax > 0 && o.TimeMax < o.Dwell() {
		return fmt.Errorf("operation %q: time_max %g below dwell %g", o.Name, o.TimeMax, o.Dwell())
	}
	return nil
}

// Technology is a named recipe: ordered operations plus attributes the when rules can reference.
type Technology struct {
	Attrs      map[string]any `yaml:"attrs"`
	Operations []Operation    `yaml:"operations"`
}

// ActiveOperations returns, in line order, the operations this technology actually uses.
// Operations with used_in_tech=false, or whose when rule is false, are absent stations.
func (t Technology) ActiveOperations() ([]Operation, error) {
	env := make(map[string]any, len(t.Attrs))
	for k, v := range t.Attrs {
		env[k] = v
	}

	active := make([]Operation, 0, len(t.Operations))
	seen := make(map[string]bool, len(t.Operations))
	for _, op := range t.Operations {
		if seen[op.Name] {
			return nil, fmt.Errorf("duplicate operation name %q", op.Name)
		}
		seen[op.Name] = true
		if !op.UsedInTech {
			continue
		}
		ok, err := evalRule(op.When, env)
		if err != nil {
			return nil, fmt.Errorf("operation %q: %w", op.Name, err)
		}
		if !ok {
			continue
		}
		if err := op.Validate(); err != nil {
			return nil, err
		}
		active = append(active, op)
	}
	return active, nil
}

func evalRule(rule string, env map[string]any) (bool, error) {
	if rule == "" {
		return true, nil
	}
	program, err := expr.Compile(rule, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("%w: compiling %q: %v", ErrRule, rule, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("%w: evaluating %q: %v", ErrRule, rule, err)
	}
	ok, isBool := result.(bool)
	if !isBool {
		return false, fmt.Errorf("%w: %q did not return a bool", ErrRule, rule)
	}
	return ok, nil
}
