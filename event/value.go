package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp formats t the way the collector stores times: UTC ISO-8601
// with millisecond precision and a Z suffix.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Safe returns v if it marshals cleanly to JSON, otherwise its string
// form. Recording never fails on an unserializable value; the offending
// value degrades instead.
func Safe(v any) any {
	if v == nil {
		return nil
	}
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return v
}

// EncodeJSON returns the JSON encoding of v, degrading to the JSON
// encoding of its string form when v itself cannot be marshaled.
func EncodeJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprintf("%v", v))
	}
	return string(data)
}
