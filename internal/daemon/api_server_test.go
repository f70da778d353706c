package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"segue/internal/api"
	"segue/internal/download"
	"segue/internal/feed"
	"segue/internal/history"
	"segue/internal/logging"
	"segue/internal/notifications"
	"segue/internal/orchestrator"
	"segue/internal/testsupport"
	"segue/internal/version"
)

type gatedSource struct {
	release chan struct{}
}

func (s *gatedSource) Fetch(ctx context.Context) ([]feed.Candidate, error) {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, nil
}

type nopStager struct{}

func (nopStager) Stage(context.Context, feed.Candidate, string, download.Progress) (string, error) {
	return "", nil
}

type nopInstaller struct{}

func (nopInstaller) Apply(context.Context, string) error { return nil }
func (nopInstaller) Verify(context.Context) error        { return nil }
func (nopInstaller) Rollback(context.Context) error      { return nil }
func (nopInstaller) RecordVersion(version.Version) error { return nil }
func (nopInstaller) Restart(context.Context) error       { return nil }

func newHandlerHarness(t *testing.T, source orchestrator.FeedSource) *apiServer {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	if source == nil {
		source = &gatedSource{}
	}
	logger := logging.NewNop()
	notifier := notifications.NewService(cfg)
	orch := orchestrator.New(cfg, store, source, nopStager{}, nopInstaller{}, notifier, logger)
	d, err := New(cfg, store, orch, notifier, logger, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return &apiServer{daemon: d, logger: logger}
}

func drainSessions(t *testing.T, srv *apiServer) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if srv.daemon.Status(context.Background()).Session == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session still active after deadline")
}

func TestHandleStatusReportsDaemon(t *testing.T) {
	srv := newHandlerHarness(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	srv.handleStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var view api.StatusView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !view.Running {
		t.Fatal("expected running daemon in status view")
	}
	if view.AppName != "demo" {
		t.Fatalf("app name = %q, want demo", view.AppName)
	}
	if view.CurrentVersion != "1.0.0" {
		t.Fatalf("current version = %q, want 1.0.0", view.CurrentVersion)
	}
	if view.PID <= 0 {
		t.Fatalf("pid = %d, want positive", view.PID)
	}
}

func TestHandleStatusRejectsPost(t *testing.T) {
	srv := newHandlerHarness(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/status", nil)
	w := httptest.NewRecorder()
	srv.handleStatus(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestHandleCheckStartsAndConflicts(t *testing.T) {
	source := &gatedSource{release: make(chan struct{})}
	srv := newHandlerHarness(t, source)

	req := httptest.NewRequest(http.MethodPost, "/api/check", nil)
	w := httptest.NewRecorder()
	srv.handleCheck(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.CheckResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Session.State != string(history.StateChecking) {
		t.Fatalf("session state = %q, want checking", resp.Session.State)
	}

	w = httptest.NewRecorder()
	srv.handleCheck(w, httptest.NewRequest(http.MethodPost, "/api/check", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while a session is active, got %d", w.Code)
	}

	close(source.release)
	drainSessions(t, srv)
}

func TestHandleHistoryReturnsSessions(t *testing.T) {
	srv := newHandlerHarness(t, nil)

	w := httptest.NewRecorder()
	srv.handleCheck(w, httptest.NewRequest(http.MethodPost, "/api/check", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("check failed: %d", w.Code)
	}
	drainSessions(t, srv)

	req := httptest.NewRequest(http.MethodGet, "/api/history?limit=5", nil)
	w = httptest.NewRecorder()
	srv.handleHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.HistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Sessions) == 0 {
		t.Fatal("expected at least one session in history")
	}
	if resp.Sessions[0].Trigger != history.TriggerManual {
		t.Fatalf("trigger = %q, want manual", resp.Sessions[0].Trigger)
	}

	w = httptest.NewRecorder()
	srv.handleHistory(w, httptest.NewRequest(http.MethodGet, "/api/history?limit=abc", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid limit, got %d", w.Code)
	}
}

func TestHandleCancel(t *testing.T) {
	source := &gatedSource{release: make(chan struct{})}
	srv := newHandlerHarness(t, source)

	w := httptest.NewRecorder()
	srv.handleCancel(w, httptest.NewRequest(http.MethodPost, "/api/cancel", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 without a session, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	srv.handleCheck(w, httptest.NewRequest(http.MethodPost, "/api/check", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("check failed: %d", w.Code)
	}

	w = httptest.NewRecorder()
	srv.handleCancel(w, httptest.NewRequest(http.MethodPost, "/api/cancel", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "cancelling" {
		t.Fatalf("unexpected payload: %v", resp)
	}

	close(source.release)
	drainSessions(t, srv)
}

func TestHandleHealthz(t *testing.T) {
	srv := newHandlerHarness(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.handleHealthz(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("unexpected healthz payload: %v", resp)
	}
}

func TestAuthMiddleware(t *testing.T) {
	handler := authMiddleware("secret", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", w.Code)
	}

	open := authMiddleware("", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	w = httptest.NewRecorder()
	open(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected pass-through with empty token, got %d", w.Code)
	}
}
