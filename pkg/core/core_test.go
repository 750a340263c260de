package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError_MatchesSentinel(t *testing.T) {
	err := fmt.Errorf("upsert vehicle: %w", Invalid("speed", "%.1f outside [0,60]", 75.0))

	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrNotFound))

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "speed", ve.Field)
	assert.Equal(t, "invalid speed: 75.0 outside [0,60]", ve.Error())
}

func TestEnums_Valid(t *testing.T) {
	assert.True(t, KindDumper.Valid())
	assert.True(t, KindExcavator.Valid())
	assert.False(t, VehicleKind("Loader").Valid())
	assert.True(t, KindExcavator.Stationary())
	assert.False(t, KindDumper.Stationary())

	assert.True(t, StatusIdle.Valid())
	assert.False(t, VehicleStatus("Parked").Valid())

	assert.True(t, RoleSafety.Valid())
	assert.False(t, Role("Catering").Valid())

	assert.True(t, RiskMedium.Valid())
	assert.False(t, RiskLevel("Extreme").Valid())
}

func TestSeverityOrdering(t *testing.T) {
	assert.Less(t, HazardNone.Severity(), HazardProximity.Severity())
	assert.Less(t, HazardProximity.Severity(), HazardCollision.Severity())
	assert.Less(t, FatigueSafe.Severity(), FatigueWarning.Severity())
	assert.Less(t, FatigueWarning.Severity(), FatigueCritical.Severity())
}

func TestVehicle_Overspeed(t *testing.T) {
	assert.False(t, Vehicle{Speed: 40}.Overspeed(OverspeedLimit))
	assert.True(t, Vehicle{Speed: 40.5}.Overspeed(OverspeedLimit))
}

func TestOperationalSnapshot_Clone(t *testing.T) {
	orig := OperationalSnapshot{
		SiteID:        "pit-1",
		Vehicles:      []Vehicle{{ID: "D-101"}},
		Overspeed:     []string{"D-101"},
		WorkerFatigue: map[string]FatigueLevel{"w1": FatigueSafe},
	}

	cp := orig.Clone()
	cp.Vehicles[0].ID = "changed"
	cp.Overspeed[0] = "changed"
	cp.WorkerFatigue["w1"] = FatigueCritical

	assert.Equal(t, "D-101", orig.Vehicles[0].ID)
	assert.Equal(t, "D-101", orig.Overspeed[0])
	assert.Equal(t, FatigueSafe, orig.WorkerFatigue["w1"])
}
