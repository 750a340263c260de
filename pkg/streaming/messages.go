// Package streaming defines the messages pushed to live dashboard clients.
package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/kavach/opsengine/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeSnapshot = "snapshot"
	TypeAlert    = "alert"
	TypeError    = "error"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Site    string          `json:"site"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorPayload reports a stream failure before the server closes the connection.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewEnvelope marshals v as the payload of a message of the given type.
func NewEnvelope(typ, site string, v any) (Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", typ, err)
	}
	return Envelope{Type: typ, Site: site, Payload: data}, nil
}

// SnapshotEnvelope wraps an operational snapshot.
func SnapshotEnvelope(snap core.OperationalSnapshot) (Envelope, error) {
	return NewEnvelope(TypeSnapshot, snap.SiteID, snap)
}

// AlertEnvelope wraps an alert.
func AlertEnvelope(a core.Alert) (Envelope, error) {
	return NewEnvelope(TypeAlert, a.SiteID, a)
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Type, err)
	}
	return nil
}
