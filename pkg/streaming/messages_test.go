package streaming

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavach/opsengine/pkg/core"
)

func TestSnapshotEnvelope(t *testing.T) {
	snap := core.OperationalSnapshot{
		SiteID:      "Jharia",
		Sequence:    7,
		HazardState: core.HazardProximity,
		ActiveShift: "B",
		GeneratedAt: time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC),
	}

	env, err := SnapshotEnvelope(snap)
	require.NoError(t, err)
	assert.Equal(t, TypeSnapshot, env.Type)
	assert.Equal(t, "Jharia", env.Site)

	data, err := json.Marshal(env)
	require.NoError(t, err)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "snapshot", wire["type"])
	payload := wire["payload"].(map[string]any)
	assert.Equal(t, 7.0, payload["sequence"])
	assert.Equal(t, "B", payload["activeShift"])

	var back core.OperationalSnapshot
	require.NoError(t, env.Decode(&back))
	assert.Equal(t, snap.Sequence, back.Sequence)
	assert.Equal(t, snap.GeneratedAt, back.GeneratedAt)
}

func TestAlertEnvelope(t *testing.T) {
	env, err := AlertEnvelope(core.Alert{SiteID: "Jharia", Kind: core.AlertCollision, Severity: core.SeverityCritical})
	require.NoError(t, err)
	assert.Equal(t, TypeAlert, env.Type)

	var a core.Alert
	require.NoError(t, env.Decode(&a))
	assert.Equal(t, core.AlertCollision, a.Kind)
}

func TestNewEnvelope_Unencodable(t *testing.T) {
	_, err := NewEnvelope(TypeError, "Jharia", make(chan int))
	assert.Error(t, err)

	var bad Envelope
	bad.Type = TypeError
	bad.Payload = json.RawMessage(`{`)
	assert.Error(t, bad.Decode(&ErrorPayload{}))
}
