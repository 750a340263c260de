// Package sim advances vehicle positions and speeds by one tick of random drift.
package sim

import (
	"math"
	"math/rand/v2"

	"github.com/kavach/opsengine/internal/util"
	"github.com/kavach/opsengine/pkg/core"
)

const (
	// MoveFactor scales the per-axis jitter, in degrees.
	MoveFactor = 0.00005
	// SpeedScale divides speed before it multiplies the jitter.
	SpeedScale = 10.0
	// SpeedJitter is the number of integer steps in the speed delta,
	// centred so deltas span -2..+2 km/h.
	SpeedJitter = 5
)

// Source yields uniform values in [0,1).
type Source interface {
	Float64() float64
}

// NewSeeded returns a PCG-backed source for reproducible runs.
func NewSeeded(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Sequence returns a source that cycles through vals. Useful for tests.
func Sequence(vals ...float64) Source {
	if len(vals) == 0 {
		vals = []float64{0.5}
	}
	return &sequence{vals: vals}
}

type sequence struct {
	vals []float64
	i    int
}

func (s *sequence) Float64() float64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

// Simulator moves vehicles. It is not safe for concurrent use.
type Simulator struct {
	src Source
}

// New creates a simulator drawing from src.
func New(src Source) *Simulator {
	return &Simulator{src: src}
}

// Step returns the next position and speed of every vehicle.
// The input slice is not modified. Stationary kinds are returned unchanged.
func (s *Simulator) Step(vehicles []core.Vehicle) []core.Vehicle {
	out := make([]core.Vehicle, len(vehicles))
	for i, v := range vehicles {
		out[i] = s.move(v)
	}
	return out
}

// draw keeps source values inside [0,1) so deltas stay within their bounds.
func (s *Simulator) draw() float64 {
	return util.Clamp(s.src.Float64(), 0, math.Nextafter(1, 0))
}

func (s *Simulator) move(v core.Vehicle) core.Vehicle {
	if v.Kind.Stationary() {
		return v
	}

	scale := MoveFactor * (v.Speed / SpeedScale)
	dLat := (s.draw() - 0.5) * scale
	dLng := (s.draw() - 0.5) * scale
	delta := math.Floor(s.draw()*SpeedJitter) - 2

	v.Position.Lat = util.Clamp(v.Position.Lat+dLat, -90, 90)
	v.Position.Lng = util.Clamp(v.Position.Lng+dLng, -180, 180)
	v.Speed = util.Clamp(v.Speed+delta, core.MinSpeed, core.MaxSpeed)

	if dLat != 0 || dLng != 0 {
		// compass bearing: 0 is north, 90 is east
		v.Heading = util.NormalizeHeading(math.Round(math.Atan2(dLng, dLat) * 180 / math.Pi))
	}
	return v
}
