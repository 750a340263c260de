// pkg/core/vehicle.go
package core

// VehicleKind is the equipment class of a tracked vehicle.
type VehicleKind string

const (
	KindDumper    VehicleKind = "Dumper"
	KindExcavator VehicleKind = "Excavator"
)

// Valid reports whether k is a known kind.
func (k VehicleKind) Valid() bool {
	switch k {
	case KindDumper, KindExcavator:
		return true
	}
	return false
}

// Stationary reports whether vehicles of this kind are exempt from movement simulation.
func (k VehicleKind) Stationary() bool {
	return k == KindExcavator
}

// VehicleStatus is the operating status reported by the fleet feed.
type VehicleStatus string

const (
	StatusActive VehicleStatus = "Active"
	StatusIdle   VehicleStatus = "Idle"
)

// Valid reports whether s is a known status.
func (s VehicleStatus) Valid() bool {
	return s == StatusActive || s == StatusIdle
}

// Speed bounds in km/h.
const (
	MinSpeed = 0.0
	MaxSpeed = 60.0

	// OverspeedLimit is the haul-road limit above which a vehicle is flagged.
	OverspeedLimit = 40.0
)

// Position is a WGS84 coordinate in decimal degrees.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Vehicle is a tracked piece of mobile equipment.
// ID is caller-assigned and unique within a site.
type Vehicle struct {
	ID       string        `json:"id"`
	Kind     VehicleKind   `json:"type"`
	Position Position      `json:"position"`
	Heading  float64       `json:"heading"` // degrees, [0,360)
	Speed    float64       `json:"speed"`   // km/h, [0,60]
	Status   VehicleStatus `json:"status"`
}

// Overspeed reports whether the vehicle exceeds limit.
func (v Vehicle) Overspeed(limit float64) bool {
	return v.Speed > limit
}
