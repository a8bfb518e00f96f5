package spancodec

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/agentrail/agentrail/event"
)

// eventTypeBySpan maps span names back to wire event types. Execution
// and api-call spans decode under the same type as their primary span;
// the collector is idempotent per event id, so the extra latency-only
// payloads are additive.
var eventTypeBySpan = map[string]event.Type{
	SpanLLMCompletion: event.TypeLLM,
	SpanLLMAPICall:    event.TypeLLM,
	SpanAgentAction:   event.TypeAction,
	SpanActionExec:    event.TypeAction,
	SpanAgentTool:     event.TypeTool,
	SpanToolExec:      event.TypeTool,
	SpanError:         event.TypeError,
}

// structuredKeys hold JSON-encoded string attributes that decode back
// into structured values.
var structuredKeys = map[string]bool{
	KeyParams:     true,
	KeyReturns:    true,
	KeyLogs:       true,
	KeyPrompt:     true,
	KeyCompletion: true,
	KeyDetails:    true,
	KeyTrigger:    true,
	KeyTags:       true,
}

// Decode turns an exported span back into a collector wire payload. It
// is best-effort: bookkeeping attributes are stripped, structured
// attributes are re-parsed (a malformed value degrades to its raw
// string), and required wire fields missing from the attribute set are
// synthesized rather than failing.
func Decode(sp sdktrace.ReadOnlySpan) map[string]any {
	payload := map[string]any{}
	eventType := ""

	for _, kv := range sp.Attributes() {
		key := string(kv.Key)
		if strings.HasPrefix(key, InternalPrefix) {
			continue
		}
		val := kv.Value.AsInterface()

		switch key {
		case KeyEventID:
			payload["id"] = val
		case KeyEventType:
			if s, ok := val.(string); ok {
				eventType = s
			}
		case KeyStartTime:
			payload["init_timestamp"] = val
		case KeyEndTime:
			payload["end_timestamp"] = val
		case KeySessionID:
			payload["session_id"] = val
		default:
			if structuredKeys[key] {
				payload[key] = parseMaybeJSON(val)
			} else {
				payload[key] = val
			}
		}
	}

	if eventType == "" {
		if t, ok := eventTypeBySpan[sp.Name()]; ok {
			eventType = string(t)
		} else {
			eventType = string(event.TypeGeneric)
		}
	}
	payload["event_type"] = eventType

	// Synthesize what the wire format requires but the span lacks.
	if _, ok := payload["id"]; !ok {
		payload["id"] = uuid.NewString()
	}
	if _, ok := payload["init_timestamp"]; !ok {
		payload["init_timestamp"] = event.Timestamp(sp.StartTime())
	}
	if _, ok := payload["end_timestamp"]; !ok && !sp.EndTime().IsZero() {
		payload["end_timestamp"] = event.Timestamp(sp.EndTime())
	}

	return payload
}

// parseMaybeJSON decodes a JSON-encoded string attribute. Non-string
// values and strings that fail to parse are returned unchanged.
func parseMaybeJSON(val any) any {
	s, ok := val.(string)
	if !ok {
		return val
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	switch trimmed[0] {
	case '{', '[', '"':
		var out any
		if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
			return s
		}
		return out
	default:
		return s
	}
}
