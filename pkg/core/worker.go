// pkg/core/worker.go
package core

import "time"

// Role is the department a worker is rostered to.
type Role string

const (
	RoleExcavation  Role = "Excavation"
	RoleTransport   Role = "Transport"
	RoleMaintenance Role = "Maintenance"
	RoleEngineering Role = "Engineering"
	RoleSafety      Role = "Safety"
)

// Roles lists every known role in display order.
var Roles = []Role{RoleExcavation, RoleTransport, RoleMaintenance, RoleEngineering, RoleSafety}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Worker is a person on an active shift.
type Worker struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Role       Role      `json:"role"`
	ShiftStart time.Time `json:"shiftStart"`
}

// FatigueLevel classifies elapsed shift time.
type FatigueLevel string

const (
	FatigueSafe     FatigueLevel = "Safe"
	FatigueWarning  FatigueLevel = "Warning"
	FatigueCritical FatigueLevel = "Critical"
)

// Severity orders fatigue levels from Safe (0) to Critical (2).
func (f FatigueLevel) Severity() int {
	switch f {
	case FatigueWarning:
		return 1
	case FatigueCritical:
		return 2
	default:
		return 0
	}
}
