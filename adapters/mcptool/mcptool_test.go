package mcptool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentrail/agentrail/event"
)

type captureRecorder struct {
	events []event.Event
}

func (c *captureRecorder) Record(ev event.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func TestExtractCallInfo(t *testing.T) {
	started := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	ended := started.Add(40 * time.Millisecond)

	params := &mcpsdk.CallToolParams{
		Name:      "file_read",
		Arguments: json.RawMessage(`{"path":"data.csv"}`),
	}
	res := &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "csv contents"}},
	}

	ev := ExtractCallInfo(params, res, started, ended)
	if ev.Name != "file_read" {
		t.Errorf("name = %s", ev.Name)
	}
	args, ok := ev.Params.(map[string]any)
	if !ok || args["path"] != "data.csv" {
		t.Errorf("params = %#v", ev.Params)
	}
	if ev.Returns != "csv contents" {
		t.Errorf("returns = %v", ev.Returns)
	}
	if !ev.StartedAt.Equal(started) || !ev.EndedAt.Equal(ended) {
		t.Errorf("timestamps = %v / %v", ev.StartedAt, ev.EndedAt)
	}
}

func TestExtractMalformedArgumentsDegrade(t *testing.T) {
	now := time.Now().UTC()
	params := &mcpsdk.CallToolParams{
		Name:      "file_read",
		Arguments: json.RawMessage(`{"broken":`),
	}

	ev := ExtractCallInfo(params, nil, now, now)
	if ev.Params != `{"broken":` {
		t.Errorf("params = %#v", ev.Params)
	}
}

func TestExtractErrorResult(t *testing.T) {
	now := time.Now().UTC()
	res := &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "permission denied"}},
	}

	ev := ExtractCallInfo(&mcpsdk.CallToolParams{Name: "rm"}, res, now, now)
	if ev.Logs != "tool reported error" {
		t.Errorf("logs = %v", ev.Logs)
	}
	if ev.Returns != "permission denied" {
		t.Errorf("returns = %v", ev.Returns)
	}
}

func TestWrapRecordsToolEvent(t *testing.T) {
	rec := &captureRecorder{}
	inner := func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "ok"}},
		}, nil
	}

	wrapped := Wrap(rec, inner)
	req := &mcpsdk.CallToolRequest{
		Params: &mcpsdk.CallToolParams{Name: "search"},
	}
	res, err := wrapped(context.Background(), req)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res == nil || res.IsError {
		t.Fatalf("result = %+v", res)
	}

	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.events))
	}
	tool, ok := rec.events[0].(*event.Tool)
	if !ok || tool.Name != "search" {
		t.Fatalf("event = %#v", rec.events[0])
	}
}

func TestWrapRecordsErrorOnFailure(t *testing.T) {
	rec := &captureRecorder{}
	boom := errors.New("tool exploded")
	inner := func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		return nil, boom
	}

	wrapped := Wrap(rec, inner)
	req := &mcpsdk.CallToolRequest{
		Params: &mcpsdk.CallToolParams{Name: "search"},
	}
	_, err := wrapped(context.Background(), req)
	if !errors.Is(err, boom) {
		t.Fatalf("handler error not passed through: %v", err)
	}

	if len(rec.events) != 2 {
		t.Fatalf("expected tool + error events, got %d", len(rec.events))
	}
	errEv, ok := rec.events[1].(*event.Error)
	if !ok {
		t.Fatalf("second event = %#v", rec.events[1])
	}
	if errEv.ErrorType != "ToolExecutionError" {
		t.Errorf("error type = %s", errEv.ErrorType)
	}
	if errEv.Trigger != rec.events[0] {
		t.Error("error event does not reference the triggering tool event")
	}
}

func TestAdapterRegistryForm(t *testing.T) {
	var a Adapter
	if a.Name() != "mcptool" {
		t.Errorf("name = %s", a.Name())
	}
	ev, err := a.ExtractCallInfo(&mcpsdk.CallToolParams{Name: "x"}, nil)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if ev.Kind() != event.TypeTool {
		t.Errorf("kind = %s", ev.Kind())
	}
	if _, err := a.ExtractCallInfo(42, nil); err == nil {
		t.Error("unsupported request type must fail")
	}
}
