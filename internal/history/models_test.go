package history_test

import (
	"testing"
	"time"

	"segue/internal/history"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from history.State
		to   history.State
		want bool
	}{
		{history.StateIdle, history.StateChecking, true},
		{history.StateChecking, history.StateUpdateAvailable, true},
		{history.StateChecking, history.StateIdle, true},
		{history.StateChecking, history.StateCancelled, true},
		{history.StateChecking, history.StateDownloading, false},
		{history.StateUpdateAvailable, history.StateDownloading, true},
		{history.StateUpdateAvailable, history.StateIdle, true},
		{history.StateUpdateAvailable, history.StateCancelled, false},
		{history.StateDownloading, history.StateVerified, true},
		{history.StateDownloading, history.StateCancelled, true},
		{history.StateDownloading, history.StateInstalling, false},
		{history.StateVerified, history.StateInstalling, true},
		{history.StateVerified, history.StateCancelled, false},
		{history.StateInstalling, history.StateRestartPending, true},
		{history.StateInstalling, history.StateCancelled, false},
		{history.StateRestartPending, history.StateIdle, true},
		{history.StateFailed, history.StateIdle, true},
		{history.StateCancelled, history.StateIdle, true},
		{history.StateChecking, history.StateFailed, true},
		{history.StateUpdateAvailable, history.StateFailed, true},
		{history.StateDownloading, history.StateFailed, true},
		{history.StateVerified, history.StateFailed, true},
		{history.StateInstalling, history.StateFailed, true},
		{history.StateIdle, history.StateFailed, false},
		{history.StateFailed, history.StateFailed, false},
	}
	for _, tc := range cases {
		if got := history.CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestParseState(t *testing.T) {
	state, ok := history.ParseState("  Restart_Pending ")
	if !ok || state != history.StateRestartPending {
		t.Fatalf("expected restart_pending, got %q ok=%v", state, ok)
	}
	if _, ok := history.ParseState("exploded"); ok {
		t.Fatal("expected unknown state to be rejected")
	}
	if _, ok := history.ParseState(""); ok {
		t.Fatal("expected empty state to be rejected")
	}
}

func TestSessionOutcome(t *testing.T) {
	finished := time.Now().UTC()
	cases := []struct {
		name    string
		session history.Session
		want    string
	}{
		{"installed", history.Session{State: history.StateRestartPending, FinishedAt: &finished}, history.OutcomeInstalled},
		{"failed", history.Session{State: history.StateFailed, FinishedAt: &finished}, history.OutcomeFailed},
		{"cancelled", history.Session{State: history.StateCancelled, FinishedAt: &finished}, history.OutcomeCancelled},
		{"dismissed", history.Session{State: history.StateUpdateAvailable, FinishedAt: &finished}, history.OutcomeDismissed},
		{"up to date", history.Session{State: history.StateChecking, FinishedAt: &finished}, history.OutcomeUpToDate},
		{"in progress", history.Session{State: history.StateDownloading}, history.OutcomeInProgress},
	}
	for _, tc := range cases {
		if got := tc.session.Outcome(); got != tc.want {
			t.Errorf("%s: Outcome() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestSessionProgressAndActivity(t *testing.T) {
	session := history.Session{State: history.StateDownloading}
	session.SetProgress(256, 1024)
	if session.Progress != 0.25 {
		t.Fatalf("expected progress 0.25, got %f", session.Progress)
	}
	if session.BytesDone != 256 || session.BytesTotal != 1024 {
		t.Fatalf("unexpected counters: %d/%d", session.BytesDone, session.BytesTotal)
	}

	session.SetProgress(10, 0)
	if session.Progress != 0.25 {
		t.Fatalf("expected unknown total to leave progress unchanged, got %f", session.Progress)
	}

	if !session.IsActive() {
		t.Fatal("expected downloading session to be active")
	}
	session.MarkFinished(time.Now())
	if session.IsActive() {
		t.Fatal("expected finished session to be inactive")
	}

	failed := history.Session{State: history.StateChecking}
	failed.SetFailed("feed unreachable", "download_error")
	if failed.State != history.StateFailed {
		t.Fatalf("expected failed state, got %q", failed.State)
	}
	if failed.ErrorMessage != "feed unreachable" || failed.ErrorKind != "download_error" {
		t.Fatalf("unexpected failure fields: %q %q", failed.ErrorMessage, failed.ErrorKind)
	}
}
