package spancodec

import (
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/agentrail/agentrail/event"
)

func testEnvelope(t *testing.T) event.Envelope {
	t.Helper()
	env := event.New()
	env.SessionID = "sess-test"
	env.End(env.StartedAt.Add(250 * time.Millisecond))
	return env
}

func TestEncodeLLMSpans(t *testing.T) {
	pt, ct := 120, 48
	cost := 0.0031
	ev := &event.LLM{
		Envelope:         testEnvelope(t),
		Model:            "gpt-4o-mini",
		Prompt:           "summarize the report",
		Completion:       "done",
		PromptTokens:     &pt,
		CompletionTokens: &ct,
		Cost:             &cost,
		AgentID:          "agent-7",
	}

	defs := Encode(ev)
	if len(defs) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(defs))
	}

	completion, apiCall := defs[0], defs[1]
	if completion.Name != SpanLLMCompletion {
		t.Errorf("expected %s, got %s", SpanLLMCompletion, completion.Name)
	}
	if apiCall.Name != SpanLLMAPICall {
		t.Errorf("expected %s, got %s", SpanLLMAPICall, apiCall.Name)
	}
	if apiCall.Kind != trace.SpanKindClient {
		t.Errorf("expected client kind for api call span, got %v", apiCall.Kind)
	}
	if apiCall.Parent != SpanLLMCompletion {
		t.Errorf("expected parent %s, got %s", SpanLLMCompletion, apiCall.Parent)
	}

	attrs := completion.Attributes
	if attrs[KeyModel] != "gpt-4o-mini" {
		t.Errorf("model = %v", attrs[KeyModel])
	}
	if attrs[KeyPromptTokens] != int64(120) {
		t.Errorf("prompt_tokens = %v", attrs[KeyPromptTokens])
	}
	if attrs[KeyCompletionTokens] != int64(48) {
		t.Errorf("completion_tokens = %v", attrs[KeyCompletionTokens])
	}
	if attrs[KeyCost] != cost {
		t.Errorf("cost = %v", attrs[KeyCost])
	}
	if attrs[KeySessionID] != "sess-test" {
		t.Errorf("session id = %v", attrs[KeySessionID])
	}
	if apiCall.Attributes[KeyModel] != "gpt-4o-mini" {
		t.Errorf("api call model = %v", apiCall.Attributes[KeyModel])
	}
	if _, ok := apiCall.Attributes[KeyPrompt]; ok {
		t.Error("api call span must not carry prompt content")
	}
}

// The reference scenario: a named action with params, returns, and logs
// produces exactly the action/execution span pair.
func TestEncodeActionScenario(t *testing.T) {
	ev := &event.Action{
		Envelope:   testEnvelope(t),
		ActionType: "process_data",
		Logs:       "ok",
	}
	ev.Params = map[string]any{"input_file": "data.csv"}
	ev.Returns = "100 rows processed"

	defs := Encode(ev)
	if len(defs) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(defs))
	}
	action, exec := defs[0], defs[1]
	if action.Name != SpanAgentAction || exec.Name != SpanActionExec {
		t.Fatalf("unexpected span names %s, %s", action.Name, exec.Name)
	}
	if exec.Parent != SpanAgentAction {
		t.Errorf("execution parent = %q, want %q", exec.Parent, SpanAgentAction)
	}
	if action.Attributes[KeyActionType] != "process_data" {
		t.Errorf("action_type = %v", action.Attributes[KeyActionType])
	}
	if action.Attributes[KeyParams] != `{"input_file":"data.csv"}` {
		t.Errorf("params = %v", action.Attributes[KeyParams])
	}
	if action.Attributes[KeyReturns] != "100 rows processed" {
		t.Errorf("returns = %v", action.Attributes[KeyReturns])
	}
	if action.Attributes[KeyLogs] != "ok" {
		t.Errorf("logs = %v", action.Attributes[KeyLogs])
	}
	if _, ok := exec.Attributes[KeyStartTime]; !ok {
		t.Error("execution span missing start time")
	}
}

func TestEncodeActionTypeFallback(t *testing.T) {
	ev := &event.Action{Envelope: testEnvelope(t)}
	defs := Encode(ev)
	if got := defs[0].Attributes[KeyActionType]; got != string(event.TypeAction) {
		t.Errorf("expected fallback action_type %q, got %v", event.TypeAction, got)
	}
}

func TestEncodeNilOmission(t *testing.T) {
	ev := &event.Action{Envelope: testEnvelope(t), ActionType: "noop"}

	attrs := Encode(ev)[0].Attributes
	for _, key := range []string{KeyParams, KeyReturns, KeyLogs} {
		if _, present := attrs[key]; present {
			t.Errorf("nil %s must be omitted, found %v", key, attrs[key])
		}
	}
}

func TestEncodeToolSpans(t *testing.T) {
	ev := &event.Tool{Envelope: testEnvelope(t), Name: "file_read", Logs: "read 4 KiB"}
	ev.Params = map[string]any{"path": "/data/report.csv"}
	ev.Returns = "csv contents"

	defs := Encode(ev)
	if len(defs) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(defs))
	}
	tool, exec := defs[0], defs[1]
	if tool.Name != SpanAgentTool || exec.Name != SpanToolExec {
		t.Fatalf("unexpected span names %s, %s", tool.Name, exec.Name)
	}
	if exec.Parent != SpanAgentTool {
		t.Errorf("execution parent = %q", exec.Parent)
	}
	if tool.Attributes[KeyToolName] != "file_read" {
		t.Errorf("name = %v", tool.Attributes[KeyToolName])
	}
	// Tool payloads are JSON-encoded regardless of shape.
	if tool.Attributes[KeyReturns] != `"csv contents"` {
		t.Errorf("returns = %v", tool.Attributes[KeyReturns])
	}
	if tool.Attributes[KeyLogs] != `"read 4 KiB"` {
		t.Errorf("logs = %v", tool.Attributes[KeyLogs])
	}
}

func TestEncodeErrorSpan(t *testing.T) {
	trigger := &event.Tool{Envelope: testEnvelope(t), Name: "file_read"}
	ev := &event.Error{
		Envelope:  testEnvelope(t),
		ErrorType: "FileNotFound",
		Details:   "no such file: data.csv",
		Trigger:   trigger,
	}

	defs := Encode(ev)
	if len(defs) != 1 {
		t.Fatalf("expected 1 span, got %d", len(defs))
	}
	attrs := defs[0].Attributes
	if defs[0].Name != SpanError {
		t.Errorf("span name = %s", defs[0].Name)
	}
	if attrs[KeyError] != true {
		t.Errorf("error flag = %v", attrs[KeyError])
	}
	if attrs[KeyErrorType] != "FileNotFound" {
		t.Errorf("error_type = %v", attrs[KeyErrorType])
	}
	if attrs[KeyEventType] != string(event.TypeError) {
		t.Errorf("event_type = %v", attrs[KeyEventType])
	}
	snap, ok := attrs[KeyTrigger].(string)
	if !ok || snap == "" {
		t.Fatalf("trigger snapshot = %v", attrs[KeyTrigger])
	}
}

func TestEncodeUnknownKindNeverFails(t *testing.T) {
	ev := &event.Generic{Envelope: testEnvelope(t), EventType: "checkpoints"}
	ev.Params = map[string]any{"step": 3}

	defs := Encode(ev)
	if len(defs) != 1 {
		t.Fatalf("expected 1 span, got %d", len(defs))
	}
	if defs[0].Name != SpanGeneric {
		t.Errorf("span name = %s", defs[0].Name)
	}
	if defs[0].Attributes[KeyEventType] != "checkpoints" {
		t.Errorf("event_type = %v", defs[0].Attributes[KeyEventType])
	}
}

func TestEncodeIsPure(t *testing.T) {
	ev := &event.Tool{Envelope: testEnvelope(t), Name: "search"}
	ev.Params = map[string]any{"q": "weather"}

	first := Encode(ev)
	second := Encode(ev)
	if len(first) != len(second) {
		t.Fatalf("encode not deterministic: %d vs %d spans", len(first), len(second))
	}
	for i := range first {
		if first[i].Name != second[i].Name || first[i].Parent != second[i].Parent {
			t.Errorf("span %d differs between encodes", i)
		}
		if len(first[i].Attributes) != len(second[i].Attributes) {
			t.Errorf("span %d attribute count differs", i)
		}
	}
}
