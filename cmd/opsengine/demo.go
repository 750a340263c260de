package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kavach/opsengine/internal/handlers"
	"github.com/kavach/opsengine/pkg/core"
)

// mine is a catalogue entry used for demo seeding.
type mine struct {
	Name   string
	Center core.Position
}

var mines = []mine{
	{Name: "Talcher Coal Mine", Center: core.Position{Lat: 20.9749, Lng: 85.1333}},
	{Name: "Jharia Coal Mine", Center: core.Position{Lat: 23.7250, Lng: 86.4445}},
	{Name: "Korba Mine", Center: core.Position{Lat: 22.3284, Lng: 82.6768}},
	{Name: "Raniganj Mine", Center: core.Position{Lat: 23.6420, Lng: 87.1407}},
}

func findMine(name string) (mine, error) {
	for _, m := range mines {
		if strings.EqualFold(m.Name, strings.TrimSpace(name)) {
			return m, nil
		}
	}
	names := make([]string, 0, len(mines))
	for _, m := range mines {
		names = append(names, m.Name)
	}
	return mine{}, fmt.Errorf("unknown demo mine %q, known: %s", name, strings.Join(names, ", "))
}

// demoFleet places the dashboard fleet around center. D-104 starts above the
// overspeed limit.
func demoFleet(center core.Position) []core.Vehicle {
	at := func(dLat, dLng float64) core.Position {
		return core.Position{Lat: center.Lat + dLat, Lng: center.Lng + dLng}
	}
	return []core.Vehicle{
		{ID: "D-101", Kind: core.KindDumper, Position: at(0.002, 0.002), Speed: 35, Heading: 45, Status: core.StatusActive},
		{ID: "D-104", Kind: core.KindDumper, Position: at(-0.002, -0.001), Speed: 42, Heading: 180, Status: core.StatusActive},
		{ID: "E-22", Kind: core.KindExcavator, Position: at(0.001, -0.002), Speed: 0, Heading: 0, Status: core.StatusIdle},
		{ID: "D-105", Kind: core.KindDumper, Position: at(-0.0005, 0.001), Speed: 28, Heading: 270, Status: core.StatusActive},
	}
}

// demoRoster spreads shift starts across every fatigue band.
func demoRoster(now time.Time) []core.Worker {
	ago := func(hours float64) time.Time {
		return now.Add(-time.Duration(hours * float64(time.Hour)))
	}
	return []core.Worker{
		{ID: "W-1", Name: "Rajesh Kumar", Role: core.RoleExcavation, ShiftStart: ago(6.5)},
		{ID: "W-2", Name: "Amit Singh", Role: core.RoleTransport, ShiftStart: ago(8.5)},
		{ID: "W-3", Name: "Sunil Verma", Role: core.RoleMaintenance, ShiftStart: ago(11)},
		{ID: "W-4", Name: "Vikram Malhotra", Role: core.RoleExcavation, ShiftStart: ago(2)},
		{ID: "W-5", Name: "Rohan Das", Role: core.RoleSafety, ShiftStart: ago(4)},
	}
}

// seedDemo loads the demo fleet into a catalogue mine and rosters the demo
// crew unless the site already has workers. Returns the site id.
func seedDemo(ctx context.Context, svc *handlers.Service, name string, now time.Time) (string, error) {
	m, err := findMine(name)
	if err != nil {
		return "", err
	}

	for _, v := range demoFleet(m.Center) {
		if err := svc.UpsertVehicle(m.Name, v); err != nil {
			return "", fmt.Errorf("seeding vehicle %s: %w", v.ID, err)
		}
	}

	roster, err := svc.Workers(ctx, m.Name)
	if err != nil {
		return "", err
	}
	if len(roster) > 0 {
		return m.Name, nil
	}
	for _, w := range demoRoster(now) {
		if _, err := svc.AddWorker(ctx, m.Name, w); err != nil {
			return "", fmt.Errorf("seeding worker %s: %w", w.ID, err)
		}
	}
	return m.Name, nil
}
