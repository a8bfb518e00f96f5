// Package mcptool extracts tool telemetry from MCP tool calls and
// offers a handler wrapper that records every invocation against a
// session.
package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentrail/agentrail/adapters"
	"github.com/agentrail/agentrail/event"
)

// ExtractCallInfo builds a tool event from one MCP tool call.
// started/ended bound the handler execution.
func ExtractCallInfo(params *mcpsdk.CallToolParams, res *mcpsdk.CallToolResult, started, ended time.Time) *event.Tool {
	ev := &event.Tool{Envelope: event.New()}
	ev.StartedAt = started.UTC()
	ev.End(ended)

	if params != nil {
		ev.Name = params.Name
		ev.Params = argumentsValue(params.Arguments)
	}
	if res != nil {
		ev.Returns = contentText(res.Content)
		if res.IsError {
			ev.Logs = "tool reported error"
		}
	}
	return ev
}

// Handler mirrors the MCP SDK's untyped tool handler signature.
type Handler func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error)

// Wrap returns a handler that records a tool event for every call. A
// handler error additionally records an error event owning a snapshot
// of the tool event that triggered it. Recording failures never affect
// the wrapped handler's result.
func Wrap(rec adapters.Recorder, h Handler) Handler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		started := time.Now().UTC()
		res, err := h(ctx, req)
		ended := time.Now().UTC()

		var params *mcpsdk.CallToolParams
		if req != nil {
			params = req.Params
		}
		ev := ExtractCallInfo(params, res, started, ended)
		_ = rec.Record(ev)

		if err != nil {
			errEv := &event.Error{Envelope: event.New()}
			errEv.StartedAt = ended
			errEv.End(ended)
			errEv.ErrorType = "ToolExecutionError"
			errEv.Details = err.Error()
			errEv.Trigger = ev
			_ = rec.Record(errEv)
		}
		return res, err
	}
}

// argumentsValue normalizes tool arguments: raw JSON decodes into a
// structured value, anything else passes through the JSON-safety
// filter. A decode failure degrades to the raw string.
func argumentsValue(args any) any {
	if raw, ok := args.(json.RawMessage); ok {
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return string(raw)
		}
		return out
	}
	return event.Safe(args)
}

// contentText flattens result content into a single string. Non-text
// content is summarized by type rather than dropped.
func contentText(content []mcpsdk.Content) any {
	if len(content) == 0 {
		return nil
	}
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case *mcpsdk.TextContent:
			parts = append(parts, v.Text)
		default:
			parts = append(parts, fmt.Sprintf("[%T]", c))
		}
	}
	return strings.Join(parts, "\n")
}

// Adapter is the registry form of this package.
type Adapter struct{}

// Name implements adapters.Adapter.
func (Adapter) Name() string { return "mcptool" }

// ExtractCallInfo implements adapters.Adapter. It expects a
// (*mcpsdk.CallToolParams, *mcpsdk.CallToolResult) pair.
func (Adapter) ExtractCallInfo(req, resp any) (event.Event, error) {
	params, ok := req.(*mcpsdk.CallToolParams)
	if !ok && req != nil {
		return nil, fmt.Errorf("mcptool: unsupported request type %T", req)
	}
	res, ok := resp.(*mcpsdk.CallToolResult)
	if !ok && resp != nil {
		return nil, fmt.Errorf("mcptool: unsupported response type %T", resp)
	}
	now := time.Now().UTC()
	return ExtractCallInfo(params, res, now, now), nil
}
