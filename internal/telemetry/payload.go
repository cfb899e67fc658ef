// Package telemetry turns raw device documents into flat, display-ready
// records. A document is one JSON object with an optional device_id, optional
// notes and an ordered list of raw readings under "data".
package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload is returned when the document as a whole cannot be
// interpreted: it is not a JSON object, or "data" is not a list.
var ErrMalformedPayload = errors.New("malformed device payload")

const unknownPhase = "Unknown"

// Payload is a decoded device document. Readings are kept raw so that one
// bad reading never prevents the others from being normalized.
type Payload struct {
	DeviceID string
	Notes    map[string]any
	Readings []json.RawMessage
}

type rawPayload struct {
	DeviceID json.RawMessage `json:"device_id"`
	Notes    json.RawMessage `json:"notes"`
	Data     json.RawMessage `json:"data"`
}

// DecodePayload decodes a device document. device_id and notes are optional
// and ignored when they have an unexpected type; a missing or null "data"
// means zero readings.
func DecodePayload(body []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Payload{}, fmt.Errorf("%w: empty document", ErrMalformedPayload)
	}

	var raw rawPayload
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var p Payload
	if len(raw.DeviceID) > 0 {
		var id string
		if err := json.Unmarshal(raw.DeviceID, &id); err == nil {
			p.DeviceID = id
		}
	}
	if len(raw.Notes) > 0 {
		var notes map[string]any
		if err := json.Unmarshal(raw.Notes, &notes); err == nil {
			p.Notes = notes
		}
	}
	if len(raw.Data) > 0 && !bytes.Equal(raw.Data, []byte("null")) {
		if err := json.Unmarshal(raw.Data, &p.Readings); err != nil {
			return Payload{}, fmt.Errorf("%w: data is not a list", ErrMalformedPayload)
		}
	}
	if p.Readings == nil {
		p.Readings = []json.RawMessage{}
	}
	return p, nil
}

// Phase returns notes.phase, or "Unknown" when it is absent or not a string.
func (p Payload) Phase() string {
	if p.Notes == nil {
		return unknownPhase
	}
	phase, ok := p.Notes["phase"].(string)
	if !ok || phase == "" {
		return unknownPhase
	}
	return phase
}

// DisplayDeviceID returns the device id or "Unknown".
func (p Payload) DisplayDeviceID() string {
	if p.DeviceID == "" {
		return "Unknown"
	}
	return p.DeviceID
}
