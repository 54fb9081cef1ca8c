package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNotRecord is returned by Value.Decode when the value is plain text.
var ErrNotRecord = errors.New("value is not a structured record")

// Value is an opaque tool input or observation: either free text or a
// structured JSON record. Interpretation is left to whoever renders it.
type Value struct {
	text   string
	record json.RawMessage
}

// TextValue wraps free text.
func TextValue(s string) *Value {
	return &Value{text: s}
}

// RecordValue wraps a structured JSON record. The bytes are compacted.
func RecordValue(raw json.RawMessage) *Value {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return &Value{text: string(raw)}
	}
	return &Value{record: buf.Bytes()}
}

// IsRecord reports whether the value holds a structured record.
func (v *Value) IsRecord() bool {
	return v != nil && v.record != nil
}

// Text returns the free text, or the compact JSON form of a record.
func (v *Value) Text() string {
	if v == nil {
		return ""
	}
	if v.record != nil {
		return string(v.record)
	}
	return v.text
}

// String implements fmt.Stringer.
func (v *Value) String() string {
	return v.Text()
}

// Record returns the structured form. Text that itself holds a JSON object or
// array (agents often stringify their tool payloads) is returned as a record too.
func (v *Value) Record() (json.RawMessage, bool) {
	if v == nil {
		return nil, false
	}
	if v.record != nil {
		return v.record, true
	}
	t := strings.TrimSpace(v.text)
	if (strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[")) && json.Valid([]byte(t)) {
		return json.RawMessage(t), true
	}
	return nil, false
}

// Decode unmarshals the structured form into dst.
func (v *Value) Decode(dst any) error {
	raw, ok := v.Record()
	if !ok {
		return ErrNotRecord
	}
	return json.Unmarshal(raw, dst)
}

// MarshalJSON emits text as a JSON string and records verbatim.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.record != nil {
		return v.record, nil
	}
	return json.Marshal(v.text)
}

// UnmarshalJSON keeps JSON strings as text and anything else as a record.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value{text: s}
		return nil
	}
	*v = *RecordValue(data)
	return nil
}
