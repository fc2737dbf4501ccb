package piweb

import (
	"encoding/json"
	"time"
)

// Value represents a single time-stamped measurement submitted to the
// historian. Optional fields left nil are omitted from the serialized form
// entirely; the wire payload contains only keys the caller explicitly set,
// plus the timestamp.
type Value struct {
	Timestamp         time.Time   // Zero value serializes as the minimum timestamp
	UnitsAbbreviation *string     // Optional display unit
	Good              *bool       // Optional quality flag
	Questionable      *bool       // Optional quality flag
	Value             interface{} // Measurement payload, numeric or string
}

// MarshalJSON serializes the value with only explicitly set fields.
// Unset optional fields are dropped rather than emitted as null.
func (v *Value) MarshalJSON() ([]byte, error) {
	payload := map[string]interface{}{
		"Timestamp": v.Timestamp.Format(time.RFC3339Nano),
	}
	if v.UnitsAbbreviation != nil {
		payload["UnitsAbbreviation"] = *v.UnitsAbbreviation
	}
	if v.Good != nil {
		payload["Good"] = *v.Good
	}
	if v.Questionable != nil {
		payload["Questionable"] = *v.Questionable
	}
	if v.Value != nil {
		payload["Value"] = v.Value
	}
	return json.Marshal(payload)
}

// String returns a pointer to s, for setting optional string fields.
func String(s string) *string { return &s }

// Bool returns a pointer to b, for setting optional quality flags.
func Bool(b bool) *bool { return &b }
