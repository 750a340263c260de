package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewZerolog_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
	}{
		{"debug", true},
		{"DEBUG", true},
		{"info", false},
		{"", false},
		{"bogus", false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewZerolog(&buf, tt.level)
			log.Debug().Msg("dbg line")
			log.Info().Msg("info line")

			assert.Contains(t, buf.String(), "info line")
			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("dbg line")))
		})
	}
}

func TestNewZerolog_NoColorOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, "info")
	log.Info().Str("site", "Jharia").Msg("connected")
	assert.NotContains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "site=Jharia")
}

func TestZerologAdapter(t *testing.T) {
	var buf bytes.Buffer
	a := NewZerologAdapter(NewZerolog(&buf, "debug"))

	a.Debug("debug msg", "key1", "value1")
	a.Info("info msg", "count", 42)
	a.Warn("warn msg", "error", errors.New("disk full"))
	a.Error("error msg", "dangling")

	out := buf.String()
	assert.Contains(t, out, "debug msg")
	assert.Contains(t, out, "key1=value1")
	assert.Contains(t, out, "count=42")
	assert.Contains(t, out, "disk full")
	assert.Contains(t, out, "error msg")
	assert.NotContains(t, out, "dangling=")
}

func TestToFields(t *testing.T) {
	fields := toFields([]any{"a", 1, 2, "skipped", "err", errors.New("boom"), "odd"})
	assert.Equal(t, map[string]any{"a": 1, "err": "boom"}, fields)
}
