package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"segue/internal/config"
	"segue/internal/daemon"
	"segue/internal/download"
	"segue/internal/feed"
	"segue/internal/history"
	"segue/internal/ipc"
	"segue/internal/logging"
	"segue/internal/notifications"
	"segue/internal/orchestrator"
	"segue/internal/testsupport"
	"segue/internal/version"
)

// stubFeedSource serves canned release candidates to the orchestrator.
type stubFeedSource struct {
	mu         sync.Mutex
	candidates []feed.Candidate
	err        error
}

func (s *stubFeedSource) Fetch(context.Context) ([]feed.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]feed.Candidate(nil), s.candidates...), nil
}

func (s *stubFeedSource) set(candidates ...feed.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = candidates
}

// stubStager fakes a download by writing a small artifact into the staging
// directory and reporting full progress.
type stubStager struct{}

func (stubStager) Stage(_ context.Context, candidate feed.Candidate, dir string, progress download.Progress) (string, error) {
	if progress != nil {
		progress(candidate.Size, candidate.Size)
	}
	staged := filepath.Join(dir, "artifact")
	if err := os.WriteFile(staged, []byte("artifact"), 0o755); err != nil {
		return "", err
	}
	return staged, nil
}

// stubInstaller accepts every staged artifact without touching the binary.
type stubInstaller struct{}

func (stubInstaller) Apply(context.Context, string) error { return nil }
func (stubInstaller) Verify(context.Context) error        { return nil }
func (stubInstaller) Rollback(context.Context) error      { return nil }
func (stubInstaller) RecordVersion(version.Version) error { return nil }
func (stubInstaller) Restart(context.Context) error       { return nil }

type cliTestEnv struct {
	cfg        *config.Config
	store      *history.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	source     *stubFeedSource
	socketPath string
	configPath string
	baseDir    string
	logPath    string
	cancel     context.CancelFunc
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t)
	cfg.Updates.CheckInterval = 0

	logPath := filepath.Join(cfg.Paths.LogDir, "segue-test.log")
	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir log dir: %v", err)
	}
	if _, err := os.Stat(logPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(logPath, nil, 0o644); err != nil {
			t.Fatalf("create log file: %v", err)
		}
	}

	configPath := filepath.Join(homeDir, ".config", "segue", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)

	logger := logging.NewNop()
	source := &stubFeedSource{}
	notifier := notifications.NewService(cfg)
	orch := orchestrator.New(cfg, store, source, stubStager{}, stubInstaller{}, notifier, logger)

	d, err := daemon.New(cfg, store, orch, notifier, logger, logPath)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon.Start: %v", err)
	}

	socketPath := filepath.Join(cfg.Paths.LogDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		d.Close()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		server:     srv,
		source:     source,
		socketPath: socketPath,
		configPath: configPath,
		baseDir:    base,
		logPath:    logPath,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

// waitForNoSession blocks until the daemon reports no active update session.
func waitForNoSession(t *testing.T, env *cliTestEnv) {
	t.Helper()
	waitFor(t, 5*time.Second, func() bool {
		view := env.daemon.StatusView(context.Background())
		return view.Session == nil
	})
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// syncBuffer is a thread-safe bytes.Buffer for commands running in a goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ io.Writer = (*syncBuffer)(nil)
