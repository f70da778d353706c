package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"segue/internal/config"
	"segue/internal/history"
	"segue/internal/logging"
	"segue/internal/notifications"
	"segue/internal/orchestrator"
	"segue/internal/preflight"
	"segue/internal/version"
)

// preflightCacheTTL bounds how often Status re-runs the environment checks.
// Clients following session progress poll Status several times a second.
const preflightCacheTTL = 30 * time.Second

// Daemon owns the long-running segue process: the update orchestrator, the
// scheduled check loop, and the optional HTTP API, all behind a file lock
// that keeps each machine to a single instance.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *history.Store
	orch     *orchestrator.Orchestrator
	notifier notifications.Service
	logPath  string

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	preflightMu  sync.Mutex
	preflightAt  time.Time
	preflightRes []preflight.Result
}

// Status is a point-in-time snapshot of the daemon for status surfaces.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockPath     string
	Session      *history.Session
	LastSession  *history.Session
	Stats        map[history.State]int
	Preflight    []preflight.Result
}

// New assembles a daemon from its collaborators. The HTTP API server is
// constructed here but not bound; Start brings it up alongside the
// orchestrator.
func New(cfg *config.Config, store *history.Store, orch *orchestrator.Orchestrator, notifier notifications.Service, logger *slog.Logger, logPath string) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if store == nil {
		return nil, errors.New("history store is required")
	}
	if orch == nil {
		return nil, errors.New("orchestrator is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		orch:       orch,
		notifier:   notifier,
		logPath:    logPath,
		lockPath:   filepath.Join(cfg.Paths.LogDir, "segued.lock"),
		shutdownCh: make(chan struct{}),
	}
	d.lock = flock.New(d.lockPath)

	apiSrv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = apiSrv
	return d, nil
}

// Start acquires the instance lock, runs the environment preflight, starts
// the orchestrator, and launches the scheduled check loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !ok {
		return errors.New("another segue daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	for _, failure := range preflight.Failures(d.Preflight(d.ctx)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", failure.Name),
			logging.String("detail", failure.Detail),
			logging.String(logging.FieldImpact, "update sessions may fail until resolved"),
		)
	}

	if err := d.orch.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start orchestrator: %w", err)
	}

	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			logging.WarnWithContext(d.logger, "http api failed to start", "api_start_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the api.bind address in the config"),
				logging.String(logging.FieldImpact, "daemon is reachable over the socket only"),
			)
		}
	}

	d.startScheduler()

	d.running.Store(true)
	d.logger.Info("segue daemon started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.store.Path()),
		logging.Duration("check_interval", d.cfg.CheckInterval()),
	)
	return nil
}

// Stop halts the scheduler, the orchestrator, and the HTTP API, then
// releases the instance lock. Safe to call more than once.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.orch.Stop()
	d.wg.Wait()
	if d.api != nil {
		d.api.stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("segue daemon stopped")
}

// Close stops the daemon and releases the history store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// RequestShutdown asks the hosting process to exit. The daemon never calls
// os.Exit itself; the run loop watches ShutdownRequested.
func (d *Daemon) RequestShutdown() {
	d.shutdownOnce.Do(func() {
		close(d.shutdownCh)
	})
}

// ShutdownRequested is closed once a client or internal path has asked the
// process to terminate.
func (d *Daemon) ShutdownRequested() <-chan struct{} {
	return d.shutdownCh
}

// Running reports whether Start has completed and Stop has not.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath returns the active run log file, if the host process set one.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status snapshots the daemon, the live session, and recent history.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockPath:     d.lockPath,
		Preflight:    d.Preflight(ctx),
	}
	if snapshot := d.orch.Snapshot(); snapshot.Session != nil {
		status.Session = snapshot.Session
	}
	if stats, err := d.store.Stats(ctx); err == nil {
		status.Stats = stats
	}
	if recent, err := d.store.RecentSessions(ctx, 1); err == nil && len(recent) > 0 {
		status.LastSession = recent[0]
	}
	return status
}

// Preflight returns the environment check results, re-running them when the
// cached set is older than preflightCacheTTL.
func (d *Daemon) Preflight(ctx context.Context) []preflight.Result {
	d.preflightMu.Lock()
	defer d.preflightMu.Unlock()
	if d.preflightRes != nil && time.Since(d.preflightAt) < preflightCacheTTL {
		return d.preflightRes
	}
	d.preflightRes = preflight.RunAll(ctx, d.cfg, d.store)
	d.preflightAt = time.Now()
	return d.preflightRes
}

// Check starts a new update session with the given trigger.
func (d *Daemon) Check(ctx context.Context, trigger string) (history.Session, error) {
	if strings.TrimSpace(trigger) == "" {
		trigger = history.TriggerManual
	}
	return d.orch.Check(ctx, trigger)
}

// Proceed accepts the currently offered update.
func (d *Daemon) Proceed(ctx context.Context) error {
	return d.orch.Proceed(ctx)
}

// Dismiss declines the currently offered update.
func (d *Daemon) Dismiss(ctx context.Context) error {
	return d.orch.Dismiss(ctx)
}

// Cancel aborts the active session if it is in a cancellable phase.
func (d *Daemon) Cancel(ctx context.Context) error {
	return d.orch.Cancel(ctx)
}

// History returns the most recent update sessions, newest first.
func (d *Daemon) History(ctx context.Context, limit int) ([]*history.Session, error) {
	if d.store == nil {
		return nil, errors.New("history store unavailable")
	}
	return d.store.RecentSessions(ctx, limit)
}

// Skip records a version so future checks ignore it. The input is parsed
// and build metadata dropped so the stored key matches the form candidates
// are compared against.
func (d *Daemon) Skip(ctx context.Context, raw string) (string, error) {
	v, err := version.Parse(raw)
	if err != nil {
		return "", err
	}
	canonical := v.WithoutBuild().String()
	if err := d.store.SkipVersion(ctx, canonical); err != nil {
		return "", err
	}
	d.logger.Info("version skipped", logging.String("version", canonical))
	return canonical, nil
}

// Unskip removes a version from the skip list and reports whether an entry
// was actually removed.
func (d *Daemon) Unskip(ctx context.Context, raw string) (bool, error) {
	v, err := version.Parse(raw)
	if err != nil {
		return false, err
	}
	canonical := v.WithoutBuild().String()
	removed, err := d.store.UnskipVersion(ctx, canonical)
	if err != nil {
		return false, err
	}
	if removed {
		d.logger.Info("version unskipped", logging.String("version", canonical))
	}
	return removed, nil
}

// Skipped lists the versions excluded from update offers.
func (d *Daemon) Skipped(ctx context.Context) ([]history.SkippedVersion, error) {
	if d.store == nil {
		return nil, errors.New("history store unavailable")
	}
	return d.store.SkippedVersions(ctx)
}

// TestNotification sends a test event through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.notifier == nil || !d.notifier.Enabled() {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, notifications.Payload{
		"app": d.cfg.App.Name,
	}); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// CurrentVersion resolves the installed version label, preferring the
// version file when one is configured and readable.
func (d *Daemon) CurrentVersion() string {
	if path := strings.TrimSpace(d.cfg.App.VersionFile); path != "" {
		if expanded, err := config.ExpandPath(path); err == nil {
			if raw, err := os.ReadFile(expanded); err == nil {
				if trimmed := strings.TrimSpace(string(raw)); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return strings.TrimSpace(d.cfg.App.CurrentVersion)
}
