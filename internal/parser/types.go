package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// flexString accepts a JSON string or number. The dashboard mints ids
// from Date.now(), so the same id may arrive as 1717000000123 or "1717000000123".
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	n, err := parseIntFromFloat(string(b))
	if err != nil {
		return fmt.Errorf("id %s: %w", b, err)
	}
	*f = flexString(strconv.FormatInt(n, 10))
	return nil
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat struct {
	value float64
	set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("number %s: %w", b, err)
	}
	f.value, f.set = v, true
	return nil
}

// flexTime accepts any layout understood by ParseTimestamp, or a unix number.
type flexTime struct {
	time.Time
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	f.Time = t
	return nil
}

type vehiclePayload struct {
	ID      flexString `json:"id"`
	Type    string     `json:"type"`
	Lat     flexFloat  `json:"lat"`
	Lng     flexFloat  `json:"lng"`
	Coords  string     `json:"coords"`
	Heading flexFloat  `json:"heading"`
	Speed   flexFloat  `json:"speed"`
	Status  string     `json:"status"`
}

type workerPayload struct {
	ID         flexString `json:"id"`
	Name       string     `json:"name"`
	Role       string     `json:"role"`
	StartTime  flexTime   `json:"startTime"`
	ShiftStart flexTime   `json:"shiftStart"`
}

// historyPayload carries both the predictor's field names and the short
// aliases older dashboard builds wrote.
type historyPayload struct {
	MongoID   flexString `json:"_id"`
	ID        flexString `json:"id"`
	RiskLevel string     `json:"risk_level"`
	Risk      string     `json:"risk"`
	RiskScore flexFloat  `json:"risk_score"`
	Score     flexFloat  `json:"score"`
	Zone      string     `json:"zone"`
	Timestamp flexTime   `json:"timestamp"`
}

type sitePayload struct {
	MineName string `json:"mine_name"`
	Mine     string `json:"mine"`
	Site     string `json:"site"`
}

type idPayload struct {
	MongoID flexString `json:"_id"`
	ID      flexString `json:"id"`
}

// feedLine is one line of a recorded feed.
type feedLine struct {
	Command   string          `json:"command"`
	Site      string          `json:"site"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp flexTime        `json:"timestamp"`
}
