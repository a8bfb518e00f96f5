package agentrail

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentrail/agentrail/event"
	"github.com/agentrail/agentrail/internal/api"
	"github.com/agentrail/agentrail/internal/spancodec"
	"github.com/agentrail/agentrail/internal/telemetry"
)

// EndState is the terminal disposition of a session.
type EndState string

const (
	EndStateSuccess       EndState = "Success"
	EndStateFail          EndState = "Fail"
	EndStateIndeterminate EndState = "Indeterminate"
)

// Session is one recording context. A single producer goroutine calls
// Record and End; EventCounts may be read concurrently from others.
type Session struct {
	id        uuid.UUID
	tags      []string
	startedAt time.Time
	api       *api.Client
	pipe      *telemetry.Pipeline
	log       *slog.Logger

	mu        sync.Mutex
	counts    map[string]int
	ended     bool
	endedAt   time.Time
	endState  EndState
	endReason string
}

// ID returns the immutable session id.
func (s *Session) ID() string { return s.id.String() }

// Tags returns the session's tags.
func (s *Session) Tags() []string { return append([]string{}, s.tags...) }

// Record ingests one event: it stamps any identity fields still blank,
// bumps the event count for its kind, and hands the encoded spans to
// the batching buffer. It returns after local state mutation — network
// I/O never happens on the caller's path. Recording on an ended session
// fails with *SessionEndedError; start a new session to keep recording.
func (s *Session) Record(ev event.Event) error {
	if ev == nil {
		return &UsageError{Op: "record", Reason: "nil event"}
	}

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		s.log.Warn("record on ended session rejected", "session_id", s.ID())
		return &SessionEndedError{SessionID: s.ID()}
	}

	env := ev.Env()
	now := time.Now().UTC()
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if env.StartedAt.IsZero() {
		env.StartedAt = now
	}
	if env.SessionID == "" {
		env.SessionID = s.ID()
	}
	if !env.Ended() {
		env.End(now)
	}

	s.counts[string(ev.Kind())]++
	s.mu.Unlock()

	s.pipe.Submit(spancodec.Encode(ev))
	return nil
}

// EventCounts returns a copy of the per-kind event counts. Safe to call
// while the producer is recording.
func (s *Session) EventCounts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Ended reports whether the session has reached its terminal state.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// End transitions the session to its terminal state, drains the span
// pipeline, shuts the exporter down, and reports the final state to the
// collector. Ending an already-ended session warns and changes nothing.
func (s *Session) End(ctx context.Context, state EndState, reason string) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		s.log.Warn("session already ended", "session_id", s.ID())
		return
	}
	s.ended = true
	s.endedAt = time.Now().UTC()
	if state == "" {
		state = EndStateIndeterminate
	}
	s.endState = state
	s.endReason = reason
	s.mu.Unlock()

	if !s.pipe.Flush(ctx) {
		s.log.Warn("span pipeline drain incomplete", "session_id", s.ID())
	}
	if err := s.pipe.Shutdown(ctx); err != nil {
		s.log.Warn("span pipeline shutdown failed", "session_id", s.ID(), "error", err)
	}

	if err := s.api.UpdateSession(ctx, s.payload()); err != nil {
		s.log.Warn("session update failed", "session_id", s.ID(), "error", err)
	}
}

// Flush synchronously drains buffered spans to the exporter. It reports
// true once everything buffered at call time has been handed off, in
// both the recording and the ending states.
func (s *Session) Flush(ctx context.Context) bool {
	return s.pipe.Flush(ctx)
}

// payload snapshots the session for the collector API.
func (s *Session) payload() api.SessionPayload {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := api.SessionPayload{
		ID:            s.ID(),
		Tags:          s.tags,
		InitTimestamp: event.Timestamp(s.startedAt),
	}
	if s.ended {
		p.EndTimestamp = event.Timestamp(s.endedAt)
		p.EndState = string(s.endState)
		p.EndStateReason = s.endReason
		p.EventCounts = make(map[string]int, len(s.counts))
		for k, v := range s.counts {
			p.EventCounts[k] = v
		}
	}
	return p
}
