package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"segue/internal/api"
	"segue/internal/history"
)

func seedFinishedSession(t *testing.T, env *cliTestEnv, state history.State, mutate func(*history.Session)) *history.Session {
	t.Helper()
	now := time.Now().UTC()
	session := &history.Session{
		ID:             uuid.NewString(),
		Trigger:        history.TriggerManual,
		Channel:        "stable",
		CurrentVersion: "1.0.0",
		State:          state,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	session.MarkFinished(now)
	if mutate != nil {
		mutate(session)
	}
	if err := env.store.SaveSession(context.Background(), session); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	return session
}

func TestCLIHistoryEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"history"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	requireContains(t, stdout, "No update sessions recorded")
}

func TestCLIHistoryListsSessions(t *testing.T) {
	env := setupCLITestEnv(t)
	now := time.Now().UTC()

	seedFinishedSession(t, env, history.StateRestartPending, func(s *history.Session) {
		s.CandidateVersion = "2.0.0"
		s.BytesTotal = 4 << 20
		s.BytesDone = 4 << 20
		s.CreatedAt = now.Add(-2 * time.Hour)
	})
	seedFinishedSession(t, env, history.StateFailed, func(s *history.Session) {
		s.CandidateVersion = "2.1.0"
		s.ErrorMessage = "connection reset"
		s.ErrorKind = "network"
		s.CreatedAt = now.Add(-1 * time.Hour)
	})

	stdout, _, err := runCLI(t, []string{"history"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	requireContains(t, stdout, "manual")
	requireContains(t, stdout, "1.0.0 -> 2.0.0")
	requireContains(t, stdout, "installed")
	requireContains(t, stdout, "4.0 MiB")
	requireContains(t, stdout, "1.0.0 -> 2.1.0")
	requireContains(t, stdout, "failed: connection reset")
}

func TestCLIHistoryHonorsLimit(t *testing.T) {
	env := setupCLITestEnv(t)
	now := time.Now().UTC()

	seedFinishedSession(t, env, history.StateRestartPending, func(s *history.Session) {
		s.CandidateVersion = "2.0.0"
		s.CreatedAt = now.Add(-2 * time.Hour)
	})
	seedFinishedSession(t, env, history.StateCancelled, func(s *history.Session) {
		s.CandidateVersion = "2.1.0"
		s.CreatedAt = now.Add(-1 * time.Hour)
	})

	stdout, _, err := runCLI(t, []string{"history", "--limit", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	requireContains(t, stdout, "2.1.0")
	if strings.Contains(stdout, "2.0.0") {
		t.Fatalf("expected the older session to be cut off, got:\n%s", stdout)
	}
}

func TestCLIHistoryJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	seedFinishedSession(t, env, history.StateRestartPending, func(s *history.Session) {
		s.CandidateVersion = "2.0.0"
	})

	stdout, _, err := runCLI(t, []string{"history", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("history --json failed: %v", err)
	}
	var payload api.HistoryResponse
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		t.Fatalf("decoding history JSON failed: %v\noutput:\n%s", err, stdout)
	}
	if len(payload.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(payload.Sessions))
	}
	session := payload.Sessions[0]
	if session.Outcome != history.OutcomeInstalled {
		t.Fatalf("expected outcome %q, got %q", history.OutcomeInstalled, session.Outcome)
	}
	if session.CandidateVersion != "2.0.0" {
		t.Fatalf("unexpected candidate version %q", session.CandidateVersion)
	}
}
