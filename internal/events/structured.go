package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// StructuredMessagePayload is a "structured" TunnelMessage's inner payload.
// Fields vary by Type; Raw keeps the full decoded object so Format can
// pull variant-specific fields without needing one Go struct per variant.
type StructuredMessagePayload struct {
	Type      string
	Timestamp *time.Time
	Raw       json.RawMessage
}

type rawStructuredHeader struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

func decodeStructuredPayload(data json.RawMessage) (*StructuredMessagePayload, error) {
	var hdr rawStructuredHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		return nil, fmt.Errorf("decode structured payload: %w", err)
	}

	p := &StructuredMessagePayload{Type: hdr.Type, Raw: data}
	if hdr.Timestamp != "" {
		if ts, ok := parseTimestamp(hdr.Timestamp); ok {
			p.Timestamp = &ts
		}
	}
	return p, nil
}

// parseTimestamp accepts both "...Z" and fractional-second ISO-8601 forms.
func parseTimestamp(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z07:00",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// field decodes one named field of the payload into dst, returning false
// if the field is absent or null.
func (p *StructuredMessagePayload) field(name string, dst any) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(p.Raw, &m); err != nil {
		return false
	}
	raw, ok := m[name]
	if !ok || string(raw) == "null" {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false
	}
	return true
}

func (p *StructuredMessagePayload) stringField(name string) (string, bool) {
	var s string
	if p.field(name, &s) {
		return s, true
	}
	return "", false
}

func (p *StructuredMessagePayload) rawField(name string) (json.RawMessage, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(p.Raw, &m); err != nil {
		return nil, false
	}
	raw, ok := m[name]
	if !ok || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}
