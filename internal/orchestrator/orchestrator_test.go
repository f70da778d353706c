package orchestrator_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"segue/internal/config"
	"segue/internal/download"
	"segue/internal/feed"
	"segue/internal/history"
	"segue/internal/logging"
	"segue/internal/notifications"
	"segue/internal/orchestrator"
	"segue/internal/services"
	"segue/internal/testsupport"
	"segue/internal/version"
)

type fakeSource struct {
	mu         sync.Mutex
	candidates []feed.Candidate
	err        error
	release    chan struct{}
	calls      int
}

func (f *fakeSource) Fetch(ctx context.Context) ([]feed.Candidate, error) {
	f.mu.Lock()
	f.calls++
	candidates := f.candidates
	err := f.err
	release := f.release
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

func (f *fakeSource) fetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStager struct {
	mu      sync.Mutex
	err     error
	started chan struct{}
	block   bool
	calls   int
}

func (f *fakeStager) Stage(ctx context.Context, candidate feed.Candidate, dir string, progress download.Progress) (string, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	started := f.started
	block := f.block
	f.mu.Unlock()

	path := filepath.Join(dir, "artifact.bin")
	if writeErr := os.WriteFile(path, []byte("new build"), 0o600); writeErr != nil {
		return "", writeErr
	}
	if progress != nil {
		progress(candidate.Size/2, candidate.Size)
	}
	if started != nil {
		close(started)
	}
	if block {
		<-ctx.Done()
		_ = os.Remove(path)
		return "", ctx.Err()
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	if progress != nil {
		progress(candidate.Size, candidate.Size)
	}
	return path, nil
}

func (f *fakeStager) stageCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeInstaller struct {
	mu          sync.Mutex
	applyErr    error
	verifyErr   error
	rollbackErr error
	restartErr  error
	applyGate   chan struct{}
	applied     []string
	verifies    int
	rollbacks   int
	restarts    int
	recorded    []string
}

func (f *fakeInstaller) Apply(ctx context.Context, stagedPath string) error {
	f.mu.Lock()
	f.applied = append(f.applied, stagedPath)
	gate := f.applyGate
	err := f.applyErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeInstaller) Verify(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifies++
	return f.verifyErr
}

func (f *fakeInstaller) Rollback(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollbacks++
	return f.rollbackErr
}

func (f *fakeInstaller) RecordVersion(v version.Version) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, v.String())
	return nil
}

func (f *fakeInstaller) Restart(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	return f.restartErr
}

func (f *fakeInstaller) snapshot() (applied []string, verifies, rollbacks, restarts int, recorded []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.applied...), f.verifies, f.rollbacks, f.restarts, append([]string(nil), f.recorded...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(ctx context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) Enabled() bool { return true }

func (r *recordingNotifier) recordedEvents() []notifications.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Event(nil), r.events...)
}

type harness struct {
	cfg       *config.Config
	store     *history.Store
	source    *fakeSource
	stager    *fakeStager
	installer *fakeInstaller
	notifier  *recordingNotifier
	orch      *orchestrator.Orchestrator
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{
		cfg:       cfg,
		store:     store,
		source:    &fakeSource{},
		stager:    &fakeStager{},
		installer: &fakeInstaller{},
		notifier:  &recordingNotifier{},
	}
	h.orch = orchestrator.New(cfg, store, h.source, h.stager, h.installer, h.notifier, logging.NewNop())
	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatalf("start orchestrator: %v", err)
	}
	t.Cleanup(h.orch.Stop)
	return h
}

func candidateFor(ver string, size int64) feed.Candidate {
	return feed.Candidate{
		Version: version.MustParse(ver),
		URL:     "https://releases.example.com/app-" + ver + ".bin",
		Size:    size,
	}
}

func waitFor(t *testing.T, events <-chan orchestrator.Event, what string, accept func(orchestrator.Event) bool) orchestrator.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event stream closed waiting for %s", what)
			}
			if accept(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func waitForState(t *testing.T, events <-chan orchestrator.Event, state history.State) orchestrator.Event {
	t.Helper()
	return waitFor(t, events, string(state), func(ev orchestrator.Event) bool {
		return ev.Kind == orchestrator.EventState && ev.Session.State == state
	})
}

func waitForFinished(t *testing.T, events <-chan orchestrator.Event) orchestrator.Event {
	t.Helper()
	return waitFor(t, events, "a finished session", func(ev orchestrator.Event) bool {
		return ev.Kind == orchestrator.EventState && ev.Session.FinishedAt != nil
	})
}

// waitIdle blocks until the session slot is free again. Terminal events are
// published before the slot is released, so tests that need the follow-up
// cleanup wait on this.
func waitIdle(t *testing.T, h *harness) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h.orch.Snapshot().Session == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("orchestrator still busy after terminal state")
}

func assertStagingEmpty(t *testing.T, cfg *config.Config) {
	t.Helper()
	entries, err := os.ReadDir(cfg.Paths.StagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		t.Fatalf("read staging dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("staging dir not empty: %d entries", len(entries))
	}
}

func TestSessionInstallsEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.source.candidates = []feed.Candidate{candidateFor("1.2.0", 4096)}

	events, unsubscribe := h.orch.Subscribe(64)
	defer unsubscribe()

	started, err := h.orch.Check(context.Background(), history.TriggerManual)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if started.State != history.StateChecking {
		t.Fatalf("Check returned state %s, want checking", started.State)
	}
	if started.CurrentVersion != "1.0.0" {
		t.Fatalf("current version = %s, want 1.0.0", started.CurrentVersion)
	}

	offer := waitForState(t, events, history.StateUpdateAvailable)
	if offer.Session.CandidateVersion != "1.2.0" {
		t.Fatalf("candidate version = %s, want 1.2.0", offer.Session.CandidateVersion)
	}

	if err := h.orch.Proceed(context.Background()); err != nil {
		t.Fatalf("Proceed: %v", err)
	}

	downloading := waitForState(t, events, history.StateDownloading)
	if downloading.Session.BytesTotal != 4096 {
		t.Fatalf("bytes total = %d, want 4096", downloading.Session.BytesTotal)
	}
	waitFor(t, events, "a progress event", func(ev orchestrator.Event) bool {
		return ev.Kind == orchestrator.EventProgress && ev.Session.BytesDone > 0
	})

	verified := waitForState(t, events, history.StateVerified)
	if verified.Session.StagedPath == "" {
		t.Fatalf("verified session has no staged path")
	}
	waitForState(t, events, history.StateInstalling)

	installed := waitForState(t, events, history.StateRestartPending)
	if installed.Session.FinishedAt == nil {
		t.Fatalf("restart_pending session not finished")
	}
	if got := installed.Session.Outcome(); got != history.OutcomeInstalled {
		t.Fatalf("outcome = %s, want %s", got, history.OutcomeInstalled)
	}

	applied, verifies, rollbacks, _, recorded := h.installer.snapshot()
	if len(applied) != 1 || applied[0] != verified.Session.StagedPath {
		t.Fatalf("applied paths = %v, want [%s]", applied, verified.Session.StagedPath)
	}
	if verifies != 1 || rollbacks != 0 {
		t.Fatalf("verifies = %d rollbacks = %d, want 1 and 0", verifies, rollbacks)
	}
	if len(recorded) != 1 || recorded[0] != "1.2.0" {
		t.Fatalf("recorded versions = %v, want [1.2.0]", recorded)
	}

	stored, err := h.store.GetSession(context.Background(), started.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if stored.State != history.StateRestartPending || stored.FinishedAt == nil {
		t.Fatalf("stored session state = %s finished = %v", stored.State, stored.FinishedAt)
	}

	want := []notifications.Event{
		notifications.EventUpdateAvailable,
		notifications.EventDownloadCompleted,
		notifications.EventUpdateInstalled,
	}
	got := h.notifier.recordedEvents()
	if len(got) != len(want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("notification %d = %s, want %s", i, got[i], want[i])
		}
	}

	waitIdle(t, h)
	assertStagingEmpty(t, h.cfg)
}

func TestCheckWhileSessionActiveIsRejected(t *testing.T) {
	h := newHarness(t)
	h.source.release = make(chan struct{})

	events, unsubscribe := h.orch.Subscribe(16)
	defer unsubscribe()

	first, err := h.orch.Check(context.Background(), history.TriggerManual)
	if err != nil {
		t.Fatalf("first Check: %v", err)
	}

	if _, err := h.orch.Check(context.Background(), history.TriggerScheduled); !errors.Is(err, services.ErrSessionActive) {
		t.Fatalf("second Check error = %v, want session-active marker", err)
	}

	close(h.source.release)
	finished := waitForFinished(t, events)
	if finished.Session.ID != first.ID {
		t.Fatalf("finished session %s, want %s", finished.Session.ID, first.ID)
	}
	if got := finished.Session.Outcome(); got != history.OutcomeUpToDate {
		t.Fatalf("outcome = %s, want %s", got, history.OutcomeUpToDate)
	}

	// The slot frees up once the session winds down.
	waitIdle(t, h)
	if _, err := h.orch.Check(context.Background(), history.TriggerManual); err != nil {
		t.Fatalf("Check after finish: %v", err)
	}
}

func TestUpToDateSessionEndsQuietly(t *testing.T) {
	h := newHarness(t, testsupport.WithCurrentVersion("2.0.0"))
	h.source.candidates = []feed.Candidate{candidateFor("1.9.0", 4096)}

	events, unsubscribe := h.orch.Subscribe(16)
	defer unsubscribe()

	if _, err := h.orch.Check(context.Background(), history.TriggerScheduled); err != nil {
		t.Fatalf("Check: %v", err)
	}

	finished := waitForFinished(t, events)
	if finished.Session.State != history.StateChecking {
		t.Fatalf("finished in state %s, want checking", finished.Session.State)
	}
	if got := finished.Session.Outcome(); got != history.OutcomeUpToDate {
		t.Fatalf("outcome = %s, want %s", got, history.OutcomeUpToDate)
	}
	if events := h.notifier.recordedEvents(); len(events) != 0 {
		t.Fatalf("up-to-date session sent notifications: %v", events)
	}
	if h.stager.stageCalls() != 0 {
		t.Fatalf("up-to-date session staged an artifact")
	}
}

func TestDismissEndsSessionWithoutDownload(t *testing.T) {
	h := newHarness(t)
	h.source.candidates = []feed.Candidate{candidateFor("1.2.0", 4096)}

	events, unsubscribe := h.orch.Subscribe(16)
	defer unsubscribe()

	if _, err := h.orch.Check(context.Background(), history.TriggerManual); err != nil {
		t.Fatalf("Check: %v", err)
	}
	waitForState(t, events, history.StateUpdateAvailable)

	if err := h.orch.Dismiss(context.Background()); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}

	finished := waitForFinished(t, events)
	if got := finished.Session.Outcome(); got != history.OutcomeDismissed {
		t.Fatalf("outcome = %s, want %s", got, history.OutcomeDismissed)
	}
	if h.stager.stageCalls() != 0 {
		t.Fatalf("dismissed session staged an artifact")
	}
}

func TestCancelDuringDownloadRemovesStaging(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoDownload(true))
	h.source.candidates = []feed.Candidate{candidateFor("1.2.0", 1 << 20)}
	h.stager.block = true
	h.stager.started = make(chan struct{})

	events, unsubscribe := h.orch.Subscribe(32)
	defer unsubscribe()

	started, err := h.orch.Check(context.Background(), history.TriggerManual)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	select {
	case <-h.stager.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("download never started")
	}

	if err := h.orch.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	cancelled := waitForState(t, events, history.StateCancelled)
	if cancelled.Session.FinishedAt == nil {
		t.Fatalf("cancelled session not finished")
	}

	stored, err := h.store.GetSession(context.Background(), started.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if stored.State != history.StateCancelled {
		t.Fatalf("stored state = %s, want cancelled", stored.State)
	}

	for _, ev := range h.notifier.recordedEvents() {
		if ev == notifications.EventUpdateFailed {
			t.Fatalf("cancellation raised a failure notification")
		}
	}

	waitIdle(t, h)
	assertStagingEmpty(t, h.cfg)
}

func TestCancelRefusedOnceInstalling(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoDownload(true))
	h.source.candidates = []feed.Candidate{candidateFor("1.2.0", 4096)}
	h.installer.applyGate = make(chan struct{})

	events, unsubscribe := h.orch.Subscribe(32)
	defer unsubscribe()

	if _, err := h.orch.Check(context.Background(), history.TriggerManual); err != nil {
		t.Fatalf("Check: %v", err)
	}
	waitForState(t, events, history.StateInstalling)

	if err := h.orch.Cancel(context.Background()); !errors.Is(err, orchestrator.ErrNotCancellable) {
		t.Fatalf("Cancel during install = %v, want ErrNotCancellable", err)
	}

	close(h.installer.applyGate)
	waitForState(t, events, history.StateRestartPending)
}

func TestApplyFailureRollsBack(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoDownload(true))
	h.source.candidates = []feed.Candidate{candidateFor("1.2.0", 4096)}
	h.installer.applyErr = services.Wrap(services.ErrInstall, "install", "apply", "copy replacement", errors.New("disk full"))

	events, unsubscribe := h.orch.Subscribe(32)
	defer unsubscribe()

	if _, err := h.orch.Check(context.Background(), history.TriggerManual); err != nil {
		t.Fatalf("Check: %v", err)
	}

	failed := waitForState(t, events, history.StateFailed)
	if failed.Session.ErrorKind != string(services.KindInstall) {
		t.Fatalf("error kind = %s, want %s", failed.Session.ErrorKind, services.KindInstall)
	}

	_, _, rollbacks, _, _ := h.installer.snapshot()
	if rollbacks != 1 {
		t.Fatalf("rollbacks = %d, want 1", rollbacks)
	}

	got := h.notifier.recordedEvents()
	if len(got) == 0 || got[len(got)-1] != notifications.EventRolledBack {
		t.Fatalf("notifications = %v, want rolled-back last", got)
	}
}

func TestRollbackFailureIsFatal(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoDownload(true))
	h.source.candidates = []feed.Candidate{candidateFor("1.2.0", 4096)}
	h.installer.applyErr = services.Wrap(services.ErrInstall, "install", "apply", "copy replacement", errors.New("disk full"))
	h.installer.rollbackErr = errors.New("backup missing")

	events, unsubscribe := h.orch.Subscribe(32)
	defer unsubscribe()

	if _, err := h.orch.Check(context.Background(), history.TriggerManual); err != nil {
		t.Fatalf("Check: %v", err)
	}

	failed := waitForState(t, events, history.StateFailed)
	if failed.Session.ErrorKind != string(services.KindFatal) {
		t.Fatalf("error kind = %s, want %s", failed.Session.ErrorKind, services.KindFatal)
	}

	got := h.notifier.recordedEvents()
	if len(got) == 0 || got[len(got)-1] != notifications.EventUpdateFailed {
		t.Fatalf("notifications = %v, want update-failed last", got)
	}
}

func TestVerifyFailureIsFatalWithoutRollback(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoDownload(true))
	h.source.candidates = []feed.Candidate{candidateFor("1.2.0", 4096)}
	h.installer.verifyErr = errors.New("binary is not executable")

	events, unsubscribe := h.orch.Subscribe(32)
	defer unsubscribe()

	if _, err := h.orch.Check(context.Background(), history.TriggerManual); err != nil {
		t.Fatalf("Check: %v", err)
	}

	failed := waitForState(t, events, history.StateFailed)
	if failed.Session.ErrorKind != string(services.KindFatal) {
		t.Fatalf("error kind = %s, want %s", failed.Session.ErrorKind, services.KindFatal)
	}

	_, _, rollbacks, _, _ := h.installer.snapshot()
	if rollbacks != 0 {
		t.Fatalf("verify failure triggered a rollback")
	}
}

func TestSkippedVersionsAreFiltered(t *testing.T) {
	h := newHarness(t)
	h.source.candidates = []feed.Candidate{candidateFor("1.2.0", 4096)}
	if err := h.store.SkipVersion(context.Background(), "1.2.0"); err != nil {
		t.Fatalf("SkipVersion: %v", err)
	}

	events, unsubscribe := h.orch.Subscribe(16)
	defer unsubscribe()

	if _, err := h.orch.Check(context.Background(), history.TriggerManual); err != nil {
		t.Fatalf("Check: %v", err)
	}

	finished := waitForFinished(t, events)
	if got := finished.Session.Outcome(); got != history.OutcomeUpToDate {
		t.Fatalf("outcome = %s, want %s", got, history.OutcomeUpToDate)
	}
	if h.source.fetchCalls() != 1 {
		t.Fatalf("fetch calls = %d, want 1", h.source.fetchCalls())
	}
}

func TestFeedFailureEndsSessionFailed(t *testing.T) {
	h := newHarness(t)
	h.source.err = services.Wrap(services.ErrFeedParse, "feed", "fetch", "malformed document", nil)

	events, unsubscribe := h.orch.Subscribe(16)
	defer unsubscribe()

	if _, err := h.orch.Check(context.Background(), history.TriggerManual); err != nil {
		t.Fatalf("Check: %v", err)
	}

	failed := waitForState(t, events, history.StateFailed)
	if failed.Session.ErrorKind != string(services.KindFeedParse) {
		t.Fatalf("error kind = %s, want %s", failed.Session.ErrorKind, services.KindFeedParse)
	}

	got := h.notifier.recordedEvents()
	if len(got) != 1 || got[0] != notifications.EventUpdateFailed {
		t.Fatalf("notifications = %v, want a single update-failed", got)
	}
}

func TestRestartFailureKeepsInstalledOutcome(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoDownload(true), testsupport.WithAutoRestart(true))
	h.source.candidates = []feed.Candidate{candidateFor("1.2.0", 4096)}
	h.installer.restartErr = errors.New("service manager unreachable")

	events, unsubscribe := h.orch.Subscribe(32)
	defer unsubscribe()

	started, err := h.orch.Check(context.Background(), history.TriggerManual)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	waitForState(t, events, history.StateRestartPending)
	waitIdle(t, h)

	stored, err := h.store.GetSession(context.Background(), started.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if stored.State != history.StateRestartPending {
		t.Fatalf("stored state = %s, want restart_pending", stored.State)
	}
	if got := stored.Outcome(); got != history.OutcomeInstalled {
		t.Fatalf("outcome = %s, want %s", got, history.OutcomeInstalled)
	}
	if stored.ErrorMessage == "" {
		t.Fatalf("restart failure left no trace on the session")
	}

	_, _, _, restarts, _ := h.installer.snapshot()
	if restarts != 1 {
		t.Fatalf("restarts = %d, want 1", restarts)
	}
}

func TestControlCallsWithoutSession(t *testing.T) {
	h := newHarness(t)

	if err := h.orch.Proceed(context.Background()); !errors.Is(err, orchestrator.ErrNoSession) {
		t.Fatalf("Proceed = %v, want ErrNoSession", err)
	}
	if err := h.orch.Dismiss(context.Background()); !errors.Is(err, orchestrator.ErrNoSession) {
		t.Fatalf("Dismiss = %v, want ErrNoSession", err)
	}
	if err := h.orch.Cancel(context.Background()); !errors.Is(err, orchestrator.ErrNoSession) {
		t.Fatalf("Cancel = %v, want ErrNoSession", err)
	}
}

func TestCheckRejectsMalformedCurrentVersion(t *testing.T) {
	h := newHarness(t, testsupport.WithCurrentVersion("not-a-version"))

	_, err := h.orch.Check(context.Background(), history.TriggerManual)
	if !errors.Is(err, services.ErrMalformedVersion) {
		t.Fatalf("Check = %v, want malformed-version marker", err)
	}

	recent, err := h.store.RecentSessions(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(recent) != 0 {
		t.Fatalf("a session row was written for a rejected check")
	}
}

func TestStopInterruptsActiveSession(t *testing.T) {
	h := newHarness(t)
	h.source.release = make(chan struct{})

	started, err := h.orch.Check(context.Background(), history.TriggerManual)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	// Stop cancels the fetch and waits for the session goroutine. The row
	// stays open so the next start can mark it interrupted.
	h.orch.Stop()

	stored, err := h.store.GetSession(context.Background(), started.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if stored.FinishedAt != nil {
		t.Fatalf("shutdown finalized the session; recovery owns that")
	}
	if stored.State != history.StateChecking {
		t.Fatalf("stored state = %s, want checking", stored.State)
	}

	if _, err := h.orch.Check(context.Background(), history.TriggerManual); !errors.Is(err, orchestrator.ErrNotRunning) {
		t.Fatalf("Check after Stop = %v, want ErrNotRunning", err)
	}
}
