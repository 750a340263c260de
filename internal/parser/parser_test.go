package parser

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavach/opsengine/pkg/core"
)

var parseNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestParser() *Parser {
	return NewParser(slog.Default(), func() time.Time { return parseNow })
}

func TestNewParser(t *testing.T) {
	p := NewParser(slog.Default(), nil)
	require.NotNil(t, p)
	require.NotNil(t, p.now)
}

func TestParseIntFromFloat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"integer", "32", 32, false},
		{"zero", "0", 0, false},
		{"negative integer", "-1", -1, false},
		{"float with decimals", "32.00", 32, false},
		{"date now id", "1717000000123", 1717000000123, false},
		{"fractional rejects", "10.99", 0, true},
		{"empty string", "", 0, true},
		{"non-numeric", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIntFromFloat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{"rfc3339 zulu", "2026-03-01T06:30:00Z", time.Date(2026, 3, 1, 6, 30, 0, 0, time.UTC), false},
		{"rfc3339 offset", "2026-03-01T12:00:00+05:30", time.Date(2026, 3, 1, 6, 30, 0, 0, time.UTC), false},
		{"iso with millis", "2026-03-01T06:30:00.123Z", time.Date(2026, 3, 1, 6, 30, 0, 123e6, time.UTC), false},
		{"naive with micros", "2026-03-01T06:30:00.250000", time.Date(2026, 3, 1, 6, 30, 0, 250e6, time.UTC), false},
		{"datetime-local", "2026-03-01T06:30", time.Date(2026, 3, 1, 6, 30, 0, 0, time.UTC), false},
		{"space separated", "2026-03-01 06:30:00", time.Date(2026, 3, 1, 6, 30, 0, 0, time.UTC), false},
		{"unix seconds", "1772346600", time.Unix(1772346600, 0).UTC(), false},
		{"unix millis", "1772346600000", time.Unix(1772346600, 0).UTC(), false},
		{"quoted", `"2026-03-01T06:30:00Z"`, time.Date(2026, 3, 1, 6, 30, 0, 0, time.UTC), false},
		{"empty", "", time.Time{}, true},
		{"garbage", "yesterday", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want, got)
		})
	}
}

func TestParseVehicle(t *testing.T) {
	p := newTestParser()

	v, err := p.ParseVehicle([]byte(`{"id":"D-101","type":"Dumper","lat":23.7465,"lng":86.4152,"heading":90,"speed":32,"status":"Active"}`))
	require.NoError(t, err)
	assert.Equal(t, core.Vehicle{
		ID:       "D-101",
		Kind:     core.KindDumper,
		Position: core.Position{Lat: 23.7465, Lng: 86.4152},
		Heading:  90,
		Speed:    32,
		Status:   core.StatusActive,
	}, v)
}

func TestParseVehicle_Defaults(t *testing.T) {
	p := newTestParser()

	v, err := p.ParseVehicle([]byte(`{"id":7,"type":"Excavator","lat":"23.7","lng":"86.4"}`))
	require.NoError(t, err)
	assert.Equal(t, "7", v.ID)
	assert.Equal(t, core.StatusActive, v.Status)
	assert.Equal(t, 23.7, v.Position.Lat)
}

func TestParseVehicle_CoordsString(t *testing.T) {
	p := newTestParser()

	v, err := p.ParseVehicle([]byte(`{"id":"E-22","type":"Excavator","coords":"23.726, 86.4425","status":"Idle"}`))
	require.NoError(t, err)
	assert.Equal(t, core.Position{Lat: 23.726, Lng: 86.4425}, v.Position)
	assert.Equal(t, core.StatusIdle, v.Status)
}

func TestParseVehicle_Errors(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ``},
		{"not json", `{"id":`},
		{"missing lat", `{"id":"D-1","type":"Dumper","lng":86.4}`},
		{"bad number", `{"id":"D-1","type":"Dumper","lat":"north","lng":86.4}`},
		{"fractional id", `{"id":1.5,"type":"Dumper","lat":1,"lng":1}`},
		{"bad coords", `{"id":"D-1","type":"Dumper","coords":"23.7"}`},
		{"coords out of range", `{"id":"D-1","type":"Dumper","coords":"95,86.4"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ParseVehicle([]byte(tt.input))
			assert.ErrorIs(t, err, core.ErrValidation)
		})
	}
}

func TestParseWorker(t *testing.T) {
	p := newTestParser()

	w, err := p.ParseWorker([]byte(`{"id":1717000000123,"name":"Amit Singh","role":"Transport","startTime":"2026-03-01T03:30:00.000Z","mine_name":"Jharia"}`))
	require.NoError(t, err)
	assert.Equal(t, "1717000000123", w.ID)
	assert.Equal(t, "Amit Singh", w.Name)
	assert.Equal(t, core.RoleTransport, w.Role)
	assert.Equal(t, time.Date(2026, 3, 1, 3, 30, 0, 0, time.UTC), w.ShiftStart)
}

func TestParseWorker_ShiftStartAliasAndMintedID(t *testing.T) {
	p := newTestParser()

	w, err := p.ParseWorker([]byte(`{"name":"Rohan Das","shiftStart":"2026-03-01T08:00"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, core.RoleExcavation, w.Role)
	assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), w.ShiftStart)
}

func TestParseWorker_RejectsFutureAndMissingStart(t *testing.T) {
	p := newTestParser()

	_, err := p.ParseWorker([]byte(`{"name":"Ravi","startTime":"2026-03-01T13:00:00Z"}`))
	require.ErrorIs(t, err, core.ErrValidation)
	assert.Contains(t, err.Error(), "future")

	_, err = p.ParseWorker([]byte(`{"name":"Ravi"}`))
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestParseHistoryRecord(t *testing.T) {
	p := newTestParser()

	r, err := p.ParseHistoryRecord([]byte(`{"_id":"65f0c0ffee","risk_level":"High","risk_score":87,"zone":"Zone 2","timestamp":"2026-03-01T10:00:00.123456","mine_name":"Jharia"}`))
	require.NoError(t, err)
	assert.Equal(t, "65f0c0ffee", r.ID)
	assert.Equal(t, core.RiskHigh, r.Level)
	assert.Equal(t, 87.0, r.Score)
	assert.Equal(t, "Zone 2", r.Zone)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 123456000, time.UTC), r.Timestamp)
}

func TestParseHistoryRecord_Aliases(t *testing.T) {
	p := newTestParser()

	r, err := p.ParseHistoryRecord([]byte(`{"risk":"Medium","score":"55"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, core.RiskMedium, r.Level)
	assert.Equal(t, 55.0, r.Score)
	assert.Equal(t, DefaultZone, r.Zone)
	assert.Equal(t, parseNow, r.Timestamp)
}

func TestParseHistoryRecord_LevelDerivedFromScore(t *testing.T) {
	p := newTestParser()

	r, err := p.ParseHistoryRecord([]byte(`{"id":"h1","risk_score":80}`))
	require.NoError(t, err)
	assert.Equal(t, core.RiskHigh, r.Level)

	_, err = p.ParseHistoryRecord([]byte(`{"id":"h1","risk_level":"Low"}`))
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestParseHistoryRecords(t *testing.T) {
	p := newTestParser()

	rs, err := p.ParseHistoryRecords([]byte(` [{"id":"a","risk_score":10},{"id":"b","risk_score":90}]`))
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, "a", rs[0].ID)
	assert.Equal(t, "b", rs[1].ID)

	rs, err = p.ParseHistoryRecords([]byte(`{"id":"c","risk_score":50}`))
	require.NoError(t, err)
	require.Len(t, rs, 1)

	_, err = p.ParseHistoryRecords([]byte(`[{"id":"a","risk_score":10},{"id":"b"}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1")
}

func TestParseGeotechnical(t *testing.T) {
	p := newTestParser()

	in, err := p.ParseGeotechnical([]byte(`{"slope_angle_deg":55,"rainfall_mm_24h":120,"rock_strength_mpa":30,"seismic_events_24h":2,"soil_moisture_pct":40,"crack_width_mm":5,"mine_depth_m":200,"past_incidents":1,"blasting_activity":1,"mine_name":"Jharia"}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultZone, in.Zone)
	assert.Equal(t, 55.0, in.SlopeAngleDeg)
	assert.Equal(t, 200.0, in.MineDepthM)

	_, err = p.ParseGeotechnical([]byte(`{"slope_angle_deg":95}`))
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = p.ParseGeotechnical([]byte(`{"slope_angle_deg":45,"rainfall_mm_24h":-1}`))
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestParseID(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"string", `"D-101"`, "D-101", false},
		{"number", `1717000000123`, "1717000000123", false},
		{"object id", `{"id":"W-1"}`, "W-1", false},
		{"object mongo id", `{"_id":"65f0c0ffee"}`, "65f0c0ffee", false},
		{"empty string", `""`, "", true},
		{"empty object", `{}`, "", true},
		{"empty payload", ``, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ParseID([]byte(tt.input))
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSiteOf(t *testing.T) {
	assert.Equal(t, "Jharia", SiteOf([]byte(`{"mine_name":"Jharia"}`)))
	assert.Equal(t, "Korba", SiteOf([]byte(`{"mine":"Korba"}`)))
	assert.Equal(t, "pit-1", SiteOf([]byte(`{"site":"pit-1"}`)))
	assert.Equal(t, "", SiteOf([]byte(`"D-1"`)))
}

func TestParseEvent(t *testing.T) {
	p := newTestParser()

	e, err := p.ParseEvent([]byte(`{"command":":VEHICLE:UPSERT:","payload":{"id":"D-1","mine_name":"Jharia"},"timestamp":"2026-03-01T06:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, ":VEHICLE:UPSERT:", e.Command)
	assert.Equal(t, "Jharia", e.Site)
	assert.JSONEq(t, `{"id":"D-1","mine_name":"Jharia"}`, string(e.Payload))
	assert.Equal(t, time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC), e.Timestamp)

	_, err = p.ParseEvent([]byte(`{"site":"pit-1"}`))
	assert.ErrorIs(t, err, core.ErrValidation)
}
