// Package event defines the records agentrail captures for an agent
// session: LLM completions, tool invocations, actions, errors, and
// free-form generic events. Every record shares the Envelope identity
// fields; kind-specific data lives on the concrete types.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of record an event carries on the wire.
type Type string

const (
	TypeLLM     Type = "llms"
	TypeAction  Type = "actions"
	TypeTool    Type = "tools"
	TypeError   Type = "errors"
	TypeGeneric Type = "generics"
)

// Event is implemented by every record kind.
type Event interface {
	// Env exposes the shared identity and timing fields.
	Env() *Envelope
	// Kind returns the wire event type.
	Kind() Type
}

// Envelope holds the fields common to all events. ID is assigned at
// creation and never changes. SessionID is set when the event is first
// recorded against a session and never reassigned. EndedAt stays zero
// until the operation completes.
type Envelope struct {
	ID        string
	SessionID string
	StartedAt time.Time
	EndedAt   time.Time
	Params    any
	Returns   any
	Tags      []string
}

// New returns an envelope stamped with a fresh id and start time.
func New() Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
}

// Env implements Event.
func (e *Envelope) Env() *Envelope { return e }

// End stamps the completion time. A completion earlier than the start is
// clamped to the start so the end timestamp never precedes it.
func (e *Envelope) End(t time.Time) {
	t = t.UTC()
	if t.Before(e.StartedAt) {
		t = e.StartedAt
	}
	e.EndedAt = t
}

// Ended reports whether the operation has completed.
func (e *Envelope) Ended() bool { return !e.EndedAt.IsZero() }

// LLM records a single model completion call.
type LLM struct {
	Envelope
	Model            string
	Prompt           any // plain text or a structured chat-message sequence
	Completion       any
	PromptTokens     *int
	CompletionTokens *int
	Cost             *float64
	AgentID          string // caller context reference, never owning
}

// Kind implements Event.
func (*LLM) Kind() Type { return TypeLLM }

// Action records one discrete agent action.
type Action struct {
	Envelope
	ActionType string // falls back to the generic type label when empty
	Logs       any
}

// Kind implements Event.
func (*Action) Kind() Type { return TypeAction }

// Tool records one tool invocation.
type Tool struct {
	Envelope
	Name string
	Logs any
}

// Kind implements Event.
func (*Tool) Kind() Type { return TypeTool }

// Error records a failure during the handling of another event. Trigger
// owns a snapshot reference to that event for the error's lifetime.
type Error struct {
	Envelope
	ErrorType string
	Details   any
	Trigger   Event
}

// Kind implements Event.
func (*Error) Kind() Type { return TypeError }

// Generic is the catch-all record for event kinds without a dedicated
// type. EventType carries the caller's label; empty means TypeGeneric.
type Generic struct {
	Envelope
	EventType string
}

// Kind implements Event.
func (g *Generic) Kind() Type {
	if g.EventType != "" {
		return Type(g.EventType)
	}
	return TypeGeneric
}
