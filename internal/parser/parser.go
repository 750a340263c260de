// Package parser decodes feed payloads into core entities.
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kavach/opsengine/internal/dispatcher"
	"github.com/kavach/opsengine/internal/geo"
	"github.com/kavach/opsengine/internal/risk"
	"github.com/kavach/opsengine/internal/util"
	"github.com/kavach/opsengine/pkg/core"
)

// DefaultZone is used when a prediction names no zone.
const DefaultZone = "Zone 1"

// Naive layouts carry no zone and are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// parseIntFromFloat parses a string that may be an integer ("32") or float ("32.00") into int64.
// JavaScript clients have no integer type, so ids may be serialized as floats.
func parseIntFromFloat(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("parseIntFromFloat: %q is not a valid int64", s)
	}
	return int64(f), nil
}

// ParseTimestamp reads RFC3339, naive ISO-8601 and unix seconds or milliseconds.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(util.TrimQuotes(s))
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		// anything past 1e12 cannot be seconds in this century
		if n >= 1e12 {
			return time.UnixMilli(int64(n)).UTC(), nil
		}
		sec := int64(n)
		return time.Unix(sec, int64((n-float64(sec))*1e9)).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Parser provides pure payload -> core struct conversion.
// It has zero external dependencies beyond a logger and a clock.
type Parser struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewParser creates a parser. A nil now uses time.Now.
func NewParser(logger *slog.Logger, now func() time.Time) *Parser {
	if now == nil {
		now = time.Now
	}
	return &Parser{logger: logger, now: now}
}

func decode(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return core.Invalid("payload", "must not be empty")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: payload: %v", core.ErrValidation, err)
	}
	return nil
}

// ParseVehicle decodes a flat fleet record: id, type, lat, lng, heading, speed, status.
// A missing status defaults to Active. Ranges are checked by the store.
func (p *Parser) ParseVehicle(data []byte) (core.Vehicle, error) {
	var in vehiclePayload
	if err := decode(data, &in); err != nil {
		return core.Vehicle{}, err
	}
	var pos core.Position
	switch {
	case in.Lat.set && in.Lng.set:
		pos = core.Position{Lat: in.Lat.value, Lng: in.Lng.value}
	case in.Coords != "":
		var err error
		if pos, err = geo.PositionFromString(in.Coords); err != nil {
			return core.Vehicle{}, core.Invalid("coords", "%q: %v", in.Coords, err)
		}
	default:
		return core.Vehicle{}, core.Invalid("position", "lat and lng are required")
	}

	v := core.Vehicle{
		ID:       string(in.ID),
		Kind:     core.VehicleKind(strings.TrimSpace(in.Type)),
		Position: pos,
		Heading:  in.Heading.value,
		Speed:    in.Speed.value,
		Status:   core.VehicleStatus(strings.TrimSpace(in.Status)),
	}
	if v.Status == "" {
		v.Status = core.StatusActive
	}
	return v, nil
}

// ParseWorker decodes a roster entry. startTime and shiftStart are both accepted.
// A shift starting in the future is rejected; a missing id is minted.
func (p *Parser) ParseWorker(data []byte) (core.Worker, error) {
	var in workerPayload
	if err := decode(data, &in); err != nil {
		return core.Worker{}, err
	}

	start := in.StartTime.Time
	if start.IsZero() {
		start = in.ShiftStart.Time
	}
	if start.IsZero() {
		return core.Worker{}, core.Invalid("startTime", "is required")
	}
	if now := p.now(); start.After(now) {
		return core.Worker{}, core.Invalid("startTime", "%s is in the future", start.Format(time.RFC3339))
	}

	w := core.Worker{
		ID:         string(in.ID),
		Name:       strings.TrimSpace(in.Name),
		Role:       core.Role(strings.TrimSpace(in.Role)),
		ShiftStart: start,
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
		p.logger.Debug("minted worker id", "id", w.ID, "name", w.Name)
	}
	if w.Role == "" {
		w.Role = core.RoleExcavation
	}
	return w, nil
}

// ParseHistoryRecords decodes one prediction record or an array of them.
func (p *Parser) ParseHistoryRecords(data []byte) ([]core.HistoryRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := decode(trimmed, &items); err != nil {
			return nil, err
		}
		out := make([]core.HistoryRecord, 0, len(items))
		for i, item := range items {
			r, err := p.ParseHistoryRecord(item)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			out = append(out, r)
		}
		return out, nil
	}

	r, err := p.ParseHistoryRecord(trimmed)
	if err != nil {
		return nil, err
	}
	return []core.HistoryRecord{r}, nil
}

// ParseHistoryRecord decodes a single prediction record. A missing level is
// derived from the score; a missing timestamp is stamped now.
func (p *Parser) ParseHistoryRecord(data []byte) (core.HistoryRecord, error) {
	var in historyPayload
	if err := decode(data, &in); err != nil {
		return core.HistoryRecord{}, err
	}

	score := in.RiskScore
	if !score.set {
		score = in.Score
	}
	if !score.set {
		return core.HistoryRecord{}, core.Invalid("risk_score", "is required")
	}

	r := core.HistoryRecord{
		ID:        firstNonEmpty(string(in.MongoID), string(in.ID)),
		Level:     core.RiskLevel(firstNonEmpty(in.RiskLevel, in.Risk)),
		Score:     score.value,
		Zone:      firstNonEmpty(in.Zone, DefaultZone),
		Timestamp: in.Timestamp.Time,
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Level == "" {
		r.Level = risk.LevelForScore(r.Score)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = p.now().UTC()
	}
	return r, nil
}

// ParseGeotechnical decodes the predictor's nine input features.
func (p *Parser) ParseGeotechnical(data []byte) (core.GeotechnicalInput, error) {
	var in core.GeotechnicalInput
	if err := decode(data, &in); err != nil {
		return in, err
	}
	if in.Zone == "" {
		in.Zone = DefaultZone
	}
	if in.SlopeAngleDeg < 0 || in.SlopeAngleDeg > 90 {
		return in, core.Invalid("slope_angle_deg", "%v out of range [0,90]", in.SlopeAngleDeg)
	}
	for name, v := range map[string]float64{
		"rainfall_mm_24h":    in.RainfallMM24h,
		"rock_strength_mpa":  in.RockStrengthMPa,
		"seismic_events_24h": in.SeismicEvents24h,
		"soil_moisture_pct":  in.SoilMoisturePct,
		"crack_width_mm":     in.CrackWidthMM,
		"mine_depth_m":       in.MineDepthM,
		"past_incidents":     in.PastIncidents,
		"blasting_activity":  in.BlastingActivity,
	} {
		if v < 0 {
			return in, core.Invalid(name, "must not be negative")
		}
	}
	return in, nil
}

// ParseID accepts a bare JSON string or number, or an object with id or _id.
func (p *Parser) ParseID(data []byte) (string, error) {
	trimmed := bytes.TrimSpace(data)
	var id flexString
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var in idPayload
		if err := decode(trimmed, &in); err != nil {
			return "", err
		}
		id = flexString(firstNonEmpty(string(in.ID), string(in.MongoID)))
	} else if err := decode(trimmed, &id); err != nil {
		return "", err
	}
	if id == "" {
		return "", core.Invalid("id", "must not be empty")
	}
	return string(id), nil
}

// SiteOf returns the site named inside a payload (mine_name, mine or site), if any.
func SiteOf(data []byte) string {
	var in sitePayload
	if err := json.Unmarshal(data, &in); err != nil {
		return ""
	}
	return strings.TrimSpace(firstNonEmpty(in.MineName, in.Mine, in.Site))
}

// ParseEvent decodes one recorded feed line into a dispatcher event.
func (p *Parser) ParseEvent(line []byte) (dispatcher.Event, error) {
	var in feedLine
	if err := decode(line, &in); err != nil {
		return dispatcher.Event{}, err
	}
	if in.Command == "" {
		return dispatcher.Event{}, core.Invalid("command", "must not be empty")
	}
	e := dispatcher.Event{
		Command:   in.Command,
		Site:      in.Site,
		Payload:   []byte(in.Payload),
		Timestamp: in.Timestamp.Time,
	}
	if e.Site == "" && len(e.Payload) > 0 {
		e.Site = SiteOf(e.Payload)
	}
	return e, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
