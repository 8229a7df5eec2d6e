package session_test

import (
	"testing"

	"github.com/wagmirep/lahstats/internal/session"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to session.Status
		want     bool
	}{
		{session.StatusRecording, session.StatusProcessing, true},
		{session.StatusProcessing, session.StatusReadyForClaiming, true},
		{session.StatusProcessing, session.StatusFailed, true},
		{session.StatusReadyForClaiming, session.StatusCompleted, true},

		{session.StatusRecording, session.StatusReadyForClaiming, false},
		{session.StatusRecording, session.StatusFailed, false},
		{session.StatusReadyForClaiming, session.StatusFailed, false},
		{session.StatusCompleted, session.StatusRecording, false},
		{session.StatusCompleted, session.StatusProcessing, false},
		{session.StatusFailed, session.StatusProcessing, false},
		{session.StatusFailed, session.StatusRecording, false},
	}
	for _, tc := range cases {
		if got := session.CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCheckTransition(t *testing.T) {
	t.Parallel()

	if err := session.CheckTransition(session.StatusRecording, session.StatusProcessing); err != nil {
		t.Errorf("CheckTransition(recording, processing) = %v, want nil", err)
	}
	if err := session.CheckTransition(session.StatusCompleted, session.StatusRecording); err == nil {
		t.Error("CheckTransition(completed, recording) = nil, want error")
	}
	if err := session.CheckTransition("bogus", session.StatusProcessing); err == nil {
		t.Error("CheckTransition(bogus, processing) = nil, want error")
	}
}

func TestTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range []session.Status{session.StatusCompleted, session.StatusFailed} {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range []session.Status{session.StatusRecording, session.StatusProcessing, session.StatusReadyForClaiming} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}
