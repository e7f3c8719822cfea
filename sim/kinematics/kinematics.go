// Package kinematics computes manipulator motion timing: rail travel with a slowdown ramp near the
// target, and the vertical plunge/lift cycle at a bath. All values are in line units (length) and
// time units; callers convert to ticks.
package kinematics

import (
	"fmt"
	"math"
)

// Profile holds the motion parameters shared by the manipulators of a line.
// Zero-valued optional fields disable the corresponding phase.
type Profile struct {
	TravelSpeed    float64 `yaml:"travel_speed"`        // rail speed outside the ramp
	ApproachSpeed  float64 `yaml:"approach_speed"`      // rail speed inside the ramp; 0 means TravelSpeed
	RampDistance   float64 `yaml:"ramp_distance"`       // slowdown distance before the target
	LiftPath       float64 `yaml:"lift_path"`           // vertical plunge/lift travel
	PlungeSpeed    float64 `yaml:"plunge_speed"`        // lowering speed
	LiftSpeed      float64 `yaml:"lift_speed"`          // lifting speed
	PlungeDecel    float64 `yaml:"plunge_deceleration"` // deceleration from PlungeSpeed to PlacingSpeed
	PlacingSpeed   float64 `yaml:"placing_speed"`       // speed just before the rack is seated
	DripStopHeight float64 `yaml:"drip_stop_height"`    // final lowering distance done at PlacingSpeed
	LiftDripStop   float64 `yaml:"lift_drip_stop"`      // lift stops this far below the top for dripping

	// Explicit overrides; when set they replace the derived plunge/lift durations.
	DropTime   *float64 `yaml:"drop_time"`
	PickupTime *float64 `yaml:"pickup_time"`
}

// Validate rejects profiles that cannot produce finite, non-negative durations.
func (p Profile) Validate() error {
	if !(p.TravelSpeed > 0) || math.IsInf(p.TravelSpeed, 0) {
		return fmt.Errorf("travel_speed must be positive, got %g", p.TravelSpeed)
	}
	nonNeg := map[string]float64{
		"approach_speed":      p.ApproachSpeed,
		"ramp_distance":       p.RampDistance,
		"lift_path":           p.LiftPath,
		"plunge_speed":        p.PlungeSpeed,
		"lift_speed":          p.LiftSpeed,
		"plunge_deceleration": p.PlungeDecel,
		"placing_speed":       p.PlacingSpeed,
		"drip_stop_height":    p.DripStopHeight,
		"lift_drip_stop":      p.LiftDripStop,
	}
	for _, name := range []string{"approach_speed", "ramp_distance", "lift_path", "plunge_speed", "lift_speed",
		"plunge_deceleration", "placing_speed", "drip_stop_height", "lift_drip_stop"} {
		if v := nonNeg[name]; !nonNegative(v) {
			return fmt.Errorf("%s must be non-negative, got %g", name, v)
		}
	}
	if p.DropTime != nil && !nonNegative(*p.DropTime) {
		return fmt.Errorf("drop_time must be non-negative, got %g", *p.DropTime)
	}
	if p.PickupTime != nil && !nonNegative(*p.PickupTime) {
		return fmt.Errorf("pickup_time must be non-negative, got %g", *p.PickupTime)
	}
	if p.DripStopHeight > p.LiftPath || p.LiftDripStop > p.LiftPath {
		return fmt.Errorf("drip stop heights (%g, %g) exceed lift_path %g", p.DripStopHeight, p.LiftDripStop, p.LiftPath)
	}
	if p.DropTime == nil && p.LiftPath > 0 && p.PlungeSpeed == 0 {
		return fmt.Errorf("plunge_speed must be positive when lift_path is set and drop_time is not")
	}
	if p.PickupTime == nil && p.LiftPath > p.LiftDripStop && p.LiftSpeed == 0 {
		return fmt.Errorf("lift_speed must be positive when lift_path is set and pickup_time is not")
	}
	return nil
}

// nonNegative is false for negative, NaN and infinite values.
func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}

func (p Profile) approach() float64 {
	if p.ApproachSpeed > 0 {
		return p.ApproachSpeed
	}
	return p.TravelSpeed
}

// TravelTime returns the time needed to cover distance along the rail.
func (p Profile) TravelTime(distance float64) float64 {
	d := math.Abs(distance)
	if d == 0 {
		return 0
	}
	ramp := math.Min(p.RampDistance, d)
	return (d-ramp)/p.TravelSpeed + ramp/p.approach()
}

// Covered returns the distance covered after elapsed time on a trip of the given length.
func (p Profile) Covered(distance, elapsed float64) float64 {
	d := math.Abs(distance)
	if elapsed <= 0 || d == 0 {
		return 0
	}
	ramp := math.Min(p.RampDistance, d)
	cruise := (d - ramp) / p.TravelSpeed
	var covered float64
	if elapsed <= cruise {
		covered = elapsed * p.TravelSpeed
	} else {
		covered = (d - ramp) + (elapsed-cruise)*p.approach()
	}
	return math.Min(covered, d)
}

// PositionAt interpolates the rail position elapsed time after leaving from towards to.
func (p Profile) PositionAt(from, to, elapsed float64) float64 {
	c := p.Covered(to-from, elapsed)
	if to < from {
		return from - c
	}
	return from + c
}

// DropDuration is the time to lower a rack into a station and release it.
func (p Profile) DropDuration() float64 {
	if p.DropTime != nil {
		return *p.DropTime
	}
	if p.LiftPath == 0 {
		return 0
	}
	slow := p.DripStopHeight
	fast := p.LiftPath - slow
	v := p.PlungeSpeed
	placing := p.PlacingSpeed
	if placing <= 0 || placing > v {
		placing = v
	}

	var t float64
	if p.PlungeDecel > 0 && placing < v {
		decelDist := (v*v - placing*placing) / (2 * p.PlungeDecel)
		if decelDist <= fast {
			t += (fast-decelDist)/v + (v-placing)/p.PlungeDecel
		} else {
			// never reaches full plunge speed inside the fast section
			t += fast / ((v + placing) / 2)
		}
	} else {
		t += fast / v
	}
	return t + slow/placing
}

// PickupDuration is the time to lift a rack from a station up to the drip stop.
func (p Profile) PickupDuration() float64 {
	if p.PickupTime != nil {
		return *p.PickupTime
	}
	path := p.LiftPath - p.LiftDripStop
	if path <= 0 {
		return 0
	}
	return path / p.LiftSpeed
}
