package agentrail

import "fmt"

// SessionEndedError reports a Record call on an ended session. It is
// recoverable: start a new session and keep recording.
type SessionEndedError struct {
	SessionID string
}

func (e *SessionEndedError) Error() string {
	return fmt.Sprintf("session %s has ended; start a new session to record", e.SessionID)
}

// UsageError reports an invalid call into the SDK. It is never fatal to
// the process.
type UsageError struct {
	Op     string
	Reason string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("agentrail %s: %s", e.Op, e.Reason)
}
