// Package openaicompat extracts LLM telemetry from calls against
// OpenAI-compatible chat completion APIs (the wire shapes served by
// OpenAI, local routers, and most inference gateways).
package openaicompat

import (
	"fmt"
	"time"

	"github.com/agentrail/agentrail/event"
)

// ChatRequest is the request body of a chat completion call.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the response body of a chat completion call.
type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is one returned completion.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ExtractCallInfo builds an LLM event from one completed call. The
// response model takes precedence over the requested one (routers may
// substitute). started/ended bound the network call.
func ExtractCallInfo(req *ChatRequest, resp *ChatResponse, started, ended time.Time) *event.LLM {
	ev := &event.LLM{Envelope: event.New()}
	ev.StartedAt = started.UTC()
	ev.End(ended)

	if req != nil {
		ev.Model = req.Model
		ev.Prompt = promptValue(req.Messages)
	}
	if resp != nil {
		if resp.Model != "" {
			ev.Model = resp.Model
		}
		if len(resp.Choices) > 0 {
			ev.Completion = resp.Choices[0].Message.Content
		}
		if resp.Usage != nil {
			pt, ct := resp.Usage.PromptTokens, resp.Usage.CompletionTokens
			ev.PromptTokens = &pt
			ev.CompletionTokens = &ct
		}
	}
	return ev
}

// promptValue keeps a single user message as plain text and anything
// longer as the structured message sequence.
func promptValue(messages []Message) any {
	if len(messages) == 1 && messages[0].Role == "user" {
		return messages[0].Content
	}
	if len(messages) == 0 {
		return nil
	}
	return messages
}

// Adapter is the registry form of this package.
type Adapter struct{}

// Name implements adapters.Adapter.
func (Adapter) Name() string { return "openaicompat" }

// ExtractCallInfo implements adapters.Adapter. It expects a
// (*ChatRequest, *ChatResponse) pair; the call timestamps default to
// now since the registry form carries no timing.
func (Adapter) ExtractCallInfo(req, resp any) (event.Event, error) {
	r, ok := req.(*ChatRequest)
	if !ok && req != nil {
		return nil, fmt.Errorf("openaicompat: unsupported request type %T", req)
	}
	p, ok := resp.(*ChatResponse)
	if !ok && resp != nil {
		return nil, fmt.Errorf("openaicompat: unsupported response type %T", resp)
	}
	now := time.Now().UTC()
	return ExtractCallInfo(r, p, now, now), nil
}
