// Package hazard classifies pairwise vehicle separation into proximity and
// collision hazards.
package hazard

import (
	"math"

	"github.com/kavach/opsengine/internal/geo"
	"github.com/kavach/opsengine/pkg/core"
)

// Thresholds are planar separations in degrees.
type Thresholds struct {
	Collision float64
	Proximity float64
}

// DefaultThresholds are roughly 33 m and 89 m at mid latitudes.
var DefaultThresholds = Thresholds{
	Collision: 0.0003,
	Proximity: 0.0008,
}

// Validate requires 0 < Collision < Proximity.
func (t Thresholds) Validate() error {
	if math.IsNaN(t.Collision) || t.Collision <= 0 {
		return core.Invalid("collision", "threshold must be positive")
	}
	if math.IsNaN(t.Proximity) || t.Proximity <= t.Collision {
		return core.Invalid("proximity", "threshold must exceed collision threshold")
	}
	return nil
}

// Classify maps a separation to a pair state. Both bounds are strict.
func (t Thresholds) Classify(distance float64) core.HazardState {
	switch {
	case distance < t.Collision:
		return core.HazardCollision
	case distance < t.Proximity:
		return core.HazardProximity
	default:
		return core.HazardNone
	}
}

// Result is the outcome of one detection pass.
type Result struct {
	State core.HazardState
	Pairs []core.HazardPair
}

// Detector evaluates every vehicle pair. Cost is O(n²) in the number of
// vehicles, which is fine for a site fleet of a few hundred.
type Detector struct {
	thresholds Thresholds
}

// NewDetector validates t and returns a detector.
func NewDetector(t Thresholds) (*Detector, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Detector{thresholds: t}, nil
}

// Thresholds returns the configured thresholds.
func (d *Detector) Thresholds() Thresholds {
	return d.thresholds
}

// Detect returns the most severe pair state and every triggering pair.
// Pairs are reported in input order; with fewer than two vehicles the state is None.
func (d *Detector) Detect(vehicles []core.Vehicle) Result {
	res := Result{State: core.HazardNone}
	for i := 0; i < len(vehicles); i++ {
		for j := i + 1; j < len(vehicles); j++ {
			a, b := vehicles[i], vehicles[j]
			dist := geo.PlanarDistance(a.Position, b.Position)
			state := d.thresholds.Classify(dist)
			if state == core.HazardNone {
				continue
			}
			res.Pairs = append(res.Pairs, core.HazardPair{
				A:        a.ID,
				B:        b.ID,
				Distance: dist,
				Meters:   geo.ApproxMeters(a.Position, b.Position),
				State:    state,
			})
			if state.Severity() > res.State.Severity() {
				res.State = state
			}
		}
	}
	return res
}
