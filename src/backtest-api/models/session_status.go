package models

import "fmt"

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
	SessionStatusFailed    SessionStatus = "failed"
)

func (s SessionStatus) Validate() error {
	switch s {
	case SessionStatusPending, SessionStatusRunning, SessionStatusCompleted, SessionStatusCancelled, SessionStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid session status: %s", s)
	}
}

func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusCancelled, SessionStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo encodes the session lifecycle: pending -> running ->
// {completed, cancelled, failed}. Terminal states have no exits. A pending
// session may also be cancelled or failed before its first day runs.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if s.IsTerminal() {
		return false
	}

	switch s {
	case SessionStatusPending:
		return next == SessionStatusRunning || next == SessionStatusCancelled || next == SessionStatusFailed
	case SessionStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}
