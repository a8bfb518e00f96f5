// Package spancodec converts agentrail events into span definitions and
// exported spans back into collector wire payloads. Encode and Decode
// are structural inverses for every non-derived event field.
package spancodec

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/agentrail/agentrail/event"
)

// Span names, one vocabulary shared by encoder and decoder.
const (
	SpanLLMCompletion = "llm.completion"
	SpanLLMAPICall    = "llm.api.call"
	SpanAgentAction   = "agent.action"
	SpanActionExec    = "action.execution"
	SpanAgentTool     = "agent.tool"
	SpanToolExec      = "tool.execution"
	SpanError         = "error"
	SpanGeneric       = "event"
)

// Attribute keys. Keys under the agentrail. namespace are SDK
// bookkeeping and are stripped by Decode.
const (
	KeyEventID          = "event.id"
	KeyEventType        = "event.type"
	KeyStartTime        = "event.start_time"
	KeyEndTime          = "event.end_time"
	KeySessionID        = "session.id"
	KeyTags             = "tags"
	KeyModel            = "model"
	KeyPrompt           = "prompt"
	KeyCompletion       = "completion"
	KeyPromptTokens     = "prompt_tokens"
	KeyCompletionTokens = "completion_tokens"
	KeyCost             = "cost"
	KeyAgentID          = "agent_id"
	KeyActionType       = "action_type"
	KeyToolName         = "name"
	KeyParams           = "params"
	KeyReturns          = "returns"
	KeyLogs             = "logs"
	KeyError            = "error"
	KeyErrorType        = "error_type"
	KeyDetails          = "details"
	KeyTrigger          = "trigger_event"

	// InternalPrefix namespaces bookkeeping attributes added at span
	// realization time.
	InternalPrefix = "agentrail."
)

// Definition describes one span to realize for an event. Parent names a
// sibling Definition produced by the same Encode call; the realization
// layer resolves it, the encoder never touches span ids.
type Definition struct {
	Name       string
	Kind       trace.SpanKind
	Parent     string
	Attributes map[string]any
	StartTime  time.Time
	EndTime    time.Time
}

// Encode maps one event to its span definitions. It is pure and total:
// an event kind without a dedicated rule encodes through the generic
// rule rather than failing.
func Encode(ev event.Event) []Definition {
	switch e := ev.(type) {
	case *event.LLM:
		return encodeLLM(e)
	case *event.Action:
		return encodeAction(e)
	case *event.Tool:
		return encodeTool(e)
	case *event.Error:
		return encodeError(e)
	default:
		return encodeGeneric(ev)
	}
}

func encodeLLM(e *event.LLM) []Definition {
	attrs := commonAttrs(&e.Envelope, event.TypeLLM)
	putString(attrs, KeyModel, e.Model)
	putFreeform(attrs, KeyPrompt, e.Prompt)
	putFreeform(attrs, KeyCompletion, e.Completion)
	if e.PromptTokens != nil {
		attrs[KeyPromptTokens] = int64(*e.PromptTokens)
	}
	if e.CompletionTokens != nil {
		attrs[KeyCompletionTokens] = int64(*e.CompletionTokens)
	}
	if e.Cost != nil {
		attrs[KeyCost] = *e.Cost
	}
	putString(attrs, KeyAgentID, e.AgentID)

	apiAttrs := timingAttrs(&e.Envelope)
	putString(apiAttrs, KeyModel, e.Model)

	return []Definition{
		{
			Name:       SpanLLMCompletion,
			Kind:       trace.SpanKindInternal,
			Attributes: attrs,
			StartTime:  e.StartedAt,
			EndTime:    e.EndedAt,
		},
		{
			Name:       SpanLLMAPICall,
			Kind:       trace.SpanKindClient,
			Parent:     SpanLLMCompletion,
			Attributes: apiAttrs,
			StartTime:  e.StartedAt,
			EndTime:    e.EndedAt,
		},
	}
}

func encodeAction(e *event.Action) []Definition {
	attrs := commonAttrs(&e.Envelope, event.TypeAction)
	actionType := e.ActionType
	if actionType == "" {
		// Deliberate fallback, not an error: unnamed actions inherit
		// the generic type label.
		actionType = string(event.TypeAction)
	}
	attrs[KeyActionType] = actionType
	putJSON(attrs, KeyParams, e.Params)
	putFreeform(attrs, KeyReturns, e.Returns)
	putFreeform(attrs, KeyLogs, e.Logs)

	return []Definition{
		{
			Name:       SpanAgentAction,
			Kind:       trace.SpanKindInternal,
			Attributes: attrs,
			StartTime:  e.StartedAt,
			EndTime:    e.EndedAt,
		},
		{
			Name:       SpanActionExec,
			Kind:       trace.SpanKindInternal,
			Parent:     SpanAgentAction,
			Attributes: timingAttrs(&e.Envelope),
			StartTime:  e.StartedAt,
			EndTime:    e.EndedAt,
		},
	}
}

func encodeTool(e *event.Tool) []Definition {
	attrs := commonAttrs(&e.Envelope, event.TypeTool)
	putString(attrs, KeyToolName, e.Name)
	putJSON(attrs, KeyParams, e.Params)
	putJSON(attrs, KeyReturns, e.Returns)
	putJSON(attrs, KeyLogs, e.Logs)

	return []Definition{
		{
			Name:       SpanAgentTool,
			Kind:       trace.SpanKindInternal,
			Attributes: attrs,
			StartTime:  e.StartedAt,
			EndTime:    e.EndedAt,
		},
		{
			Name:       SpanToolExec,
			Kind:       trace.SpanKindInternal,
			Parent:     SpanAgentTool,
			Attributes: timingAttrs(&e.Envelope),
			StartTime:  e.StartedAt,
			EndTime:    e.EndedAt,
		},
	}
}

func encodeError(e *event.Error) []Definition {
	attrs := commonAttrs(&e.Envelope, event.TypeError)
	attrs[KeyError] = true
	putString(attrs, KeyErrorType, e.ErrorType)
	putFreeform(attrs, KeyDetails, e.Details)
	if e.Trigger != nil {
		attrs[KeyTrigger] = event.EncodeJSON(triggerSnapshot(e.Trigger))
	}

	return []Definition{{
		Name:       SpanError,
		Kind:       trace.SpanKindInternal,
		Attributes: attrs,
		StartTime:  e.StartedAt,
		EndTime:    e.EndedAt,
	}}
}

func encodeGeneric(ev event.Event) []Definition {
	env := ev.Env()
	attrs := commonAttrs(env, ev.Kind())
	putFreeform(attrs, KeyParams, env.Params)
	putFreeform(attrs, KeyReturns, env.Returns)

	return []Definition{{
		Name:       SpanGeneric,
		Kind:       trace.SpanKindInternal,
		Attributes: attrs,
		StartTime:  env.StartedAt,
		EndTime:    env.EndedAt,
	}}
}

// commonAttrs builds the envelope attributes every span carries.
// Optional fields are omitted when unset, never emitted as null.
func commonAttrs(env *event.Envelope, typ event.Type) map[string]any {
	attrs := map[string]any{
		KeyEventType: string(typ),
	}
	putString(attrs, KeyEventID, env.ID)
	putString(attrs, KeySessionID, env.SessionID)
	if !env.StartedAt.IsZero() {
		attrs[KeyStartTime] = event.Timestamp(env.StartedAt)
	}
	if env.Ended() {
		attrs[KeyEndTime] = event.Timestamp(env.EndedAt)
	}
	if len(env.Tags) > 0 {
		attrs[KeyTags] = event.EncodeJSON(env.Tags)
	}
	return attrs
}

// timingAttrs builds the start/end-only attribute set of execution and
// api-call child spans.
func timingAttrs(env *event.Envelope) map[string]any {
	attrs := map[string]any{}
	if !env.StartedAt.IsZero() {
		attrs[KeyStartTime] = event.Timestamp(env.StartedAt)
	}
	if env.Ended() {
		attrs[KeyEndTime] = event.Timestamp(env.EndedAt)
	}
	return attrs
}

func putString(attrs map[string]any, key, val string) {
	if val != "" {
		attrs[key] = val
	}
}

// putFreeform stores a free-form value: strings pass through, anything
// structured is JSON-encoded.
func putFreeform(attrs map[string]any, key string, val any) {
	if val == nil {
		return
	}
	if s, ok := val.(string); ok {
		attrs[key] = s
		return
	}
	attrs[key] = event.EncodeJSON(val)
}

// putJSON stores a value JSON-encoded regardless of shape.
func putJSON(attrs map[string]any, key string, val any) {
	if val == nil {
		return
	}
	attrs[key] = event.EncodeJSON(val)
}

// triggerSnapshot flattens the triggering event into a plain mapping so
// the error span carries a self-contained copy.
func triggerSnapshot(ev event.Event) map[string]any {
	env := ev.Env()
	snap := map[string]any{
		"id":         env.ID,
		"event_type": string(ev.Kind()),
	}
	if env.SessionID != "" {
		snap["session_id"] = env.SessionID
	}
	if !env.StartedAt.IsZero() {
		snap["init_timestamp"] = event.Timestamp(env.StartedAt)
	}
	if env.Ended() {
		snap["end_timestamp"] = event.Timestamp(env.EndedAt)
	}
	if env.Params != nil {
		snap["params"] = event.Safe(env.Params)
	}
	if env.Returns != nil {
		snap["returns"] = event.Safe(env.Returns)
	}
	return snap
}
