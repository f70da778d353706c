package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"segue/internal/config"
	"segue/internal/history"
)

// MustOpenStore opens a history.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewSession persists a fresh session in the given state for tests.
func NewSession(t testing.TB, store *history.Store, state history.State) *history.Session {
	t.Helper()

	session := &history.Session{
		ID:             uuid.NewString(),
		Trigger:        history.TriggerManual,
		Channel:        "stable",
		CurrentVersion: "1.0.0",
		State:          state,
	}
	if err := store.SaveSession(context.Background(), session); err != nil {
		t.Fatalf("store.SaveSession: %v", err)
	}
	return session
}
