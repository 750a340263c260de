package hazard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavach/opsengine/pkg/core"
)

func at(id string, lat, lng float64) core.Vehicle {
	return core.Vehicle{
		ID:       id,
		Kind:     core.KindDumper,
		Position: core.Position{Lat: lat, Lng: lng},
		Status:   core.StatusActive,
	}
}

func newDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(DefaultThresholds)
	require.NoError(t, err)
	return d
}

func TestNewDetector_InvalidThresholds(t *testing.T) {
	tests := []struct {
		name string
		th   Thresholds
	}{
		{"zero collision", Thresholds{Collision: 0, Proximity: 0.001}},
		{"proximity below collision", Thresholds{Collision: 0.001, Proximity: 0.0005}},
		{"equal", Thresholds{Collision: 0.001, Proximity: 0.001}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDetector(tt.th)
			assert.True(t, errors.Is(err, core.ErrValidation))
		})
	}
}

func TestClassify_Boundaries(t *testing.T) {
	th := DefaultThresholds

	assert.Equal(t, core.HazardCollision, th.Classify(0))
	assert.Equal(t, core.HazardCollision, th.Classify(0.00029))
	assert.Equal(t, core.HazardProximity, th.Classify(0.0003))
	assert.Equal(t, core.HazardProximity, th.Classify(0.00079))
	assert.Equal(t, core.HazardNone, th.Classify(0.0008))
	assert.Equal(t, core.HazardNone, th.Classify(1))
}

func TestDetect_FewerThanTwoVehicles(t *testing.T) {
	d := newDetector(t)

	assert.Equal(t, core.HazardNone, d.Detect(nil).State)
	assert.Equal(t, core.HazardNone, d.Detect([]core.Vehicle{at("A", 0, 0)}).State)
}

func TestDetect_PairStates(t *testing.T) {
	d := newDetector(t)

	tests := []struct {
		name     string
		offset   float64
		expected core.HazardState
	}{
		{"collision", 0.0002, core.HazardCollision},
		{"proximity", 0.0005, core.HazardProximity},
		{"clear", 0.001, core.HazardNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.Detect([]core.Vehicle{at("A", 23.0, 86.0), at("B", 23.0+tt.offset, 86.0)})
			assert.Equal(t, tt.expected, res.State)
			if tt.expected == core.HazardNone {
				assert.Empty(t, res.Pairs)
				return
			}
			require.Len(t, res.Pairs, 1)
			assert.Equal(t, "A", res.Pairs[0].A)
			assert.Equal(t, "B", res.Pairs[0].B)
			assert.InDelta(t, tt.offset, res.Pairs[0].Distance, 1e-12)
			assert.Greater(t, res.Pairs[0].Meters, 0.0)
		})
	}
}

func TestDetect_AtOriginQuarterThousandthIsCollision(t *testing.T) {
	d := newDetector(t)

	res := d.Detect([]core.Vehicle{at("A", 0, 0), at("B", 0, 0.00025)})

	assert.Equal(t, core.HazardCollision, res.State)
	require.Len(t, res.Pairs, 1)
	assert.InDelta(t, 0.00025, res.Pairs[0].Distance, 1e-12)
}

func TestDetect_CollisionDominates(t *testing.T) {
	d := newDetector(t)

	vehicles := []core.Vehicle{
		at("A", 23.0, 86.0),
		at("B", 23.0005, 86.0), // proximity with A
		at("C", 23.0010, 86.0), // proximity with B
		at("D", 23.0011, 86.0), // collision with C
	}

	res := d.Detect(vehicles)

	assert.Equal(t, core.HazardCollision, res.State)
	states := map[core.HazardState]int{}
	for _, p := range res.Pairs {
		states[p.State]++
	}
	assert.Equal(t, 1, states[core.HazardCollision])
	assert.Equal(t, 3, states[core.HazardProximity]) // A-B, B-C, B-D
}

func TestDetect_Deterministic(t *testing.T) {
	d := newDetector(t)
	vehicles := []core.Vehicle{at("A", 1, 1), at("B", 1.0001, 1), at("C", 1.0006, 1)}

	first := d.Detect(vehicles)
	second := d.Detect(vehicles)

	assert.Equal(t, first, second)
}
