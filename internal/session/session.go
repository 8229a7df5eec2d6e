// Package session defines the lifecycle state machine for recording sessions.
//
// A session moves through recording, processing, ready_for_claiming and
// completed, with failed reachable only from processing. Completed and failed
// are terminal.
package session

import "fmt"

// Status is the lifecycle state of a recording session.
type Status string

const (
	// StatusRecording means the session is accepting audio chunk uploads.
	StatusRecording Status = "recording"
	// StatusProcessing means the session has been ended and a pipeline job is
	// queued or running.
	StatusProcessing Status = "processing"
	// StatusReadyForClaiming means diarized speakers and word counts are
	// persisted and waiting to be attributed.
	StatusReadyForClaiming Status = "ready_for_claiming"
	// StatusCompleted means every speaker has been claimed.
	StatusCompleted Status = "completed"
	// StatusFailed means the pipeline gave up on the session.
	StatusFailed Status = "failed"
)

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusRecording, StatusProcessing, StatusReadyForClaiming, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// transitions maps each status to the set of statuses it may move to.
var transitions = map[Status][]Status{
	StatusRecording:        {StatusProcessing},
	StatusProcessing:       {StatusReadyForClaiming, StatusFailed},
	StatusReadyForClaiming: {StatusCompleted},
	StatusCompleted:        nil,
	StatusFailed:           nil,
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a descriptive error when the transition from one
// status to another is not allowed, and nil otherwise.
func CheckTransition(from, to Status) error {
	if !from.Valid() {
		return fmt.Errorf("session: unknown status %q", from)
	}
	if !to.Valid() {
		return fmt.Errorf("session: unknown status %q", to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("session: invalid transition %s -> %s", from, to)
	}
	return nil
}
