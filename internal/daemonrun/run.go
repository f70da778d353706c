package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"segue/internal/config"
	"segue/internal/daemon"
	"segue/internal/download"
	"segue/internal/feed"
	"segue/internal/history"
	"segue/internal/install"
	"segue/internal/ipc"
	"segue/internal/logging"
	"segue/internal/notifications"
	"segue/internal/orchestrator"
	"segue/internal/staging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	SocketPath  string
	Development bool
}

// Run starts the segue daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("segue-%s.log", runID))

	logger, err := logging.New(logging.Options{
		Level:            opts.LogLevel,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logTargetSnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update segue.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "segue-*.log", Exclude: []string{logPath}},
	)

	pidPath := filepath.Join(cfg.Paths.LogDir, "segued.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := history.Open(cfg)
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		return err
	}
	defer store.Close()

	recoverInterruptedSessions(signalCtx, cfg, store, logger)

	notifier := notifications.NewService(cfg)
	source := feed.NewClient(feed.Config{
		URL:            cfg.Feed.URL,
		Platform:       cfg.Feed.Platform,
		TimeoutSeconds: cfg.Network.RequestTimeout,
	}, feed.WithLogger(logger))
	stager := download.NewStager(
		download.WithLogger(logger),
		download.WithChunkSize(cfg.ChunkSize()),
		download.WithRetryMaxAttempts(cfg.Network.RetryMaxAttempts),
		download.WithRetryBackoff(cfg.RetryBackoff(), 0),
	)
	installer := install.New(cfg, logger)
	orch := orchestrator.New(cfg, store, source, stager, installer, notifier, logger)

	d, err := daemon.New(cfg, store, orch, notifier, logger, logPath)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = filepath.Join(cfg.Paths.LogDir, "segue.sock")
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and history database access"),
			logging.String(logging.FieldImpact, "daemon will not check for updates"),
		)
	}

	select {
	case <-signalCtx.Done():
	case <-d.ShutdownRequested():
	}
	logger.Info("segue daemon shutting down")
	return nil
}

// recoverInterruptedSessions closes sessions a previous process left
// unfinished and removes staging directories no live session owns.
func recoverInterruptedSessions(ctx context.Context, cfg *config.Config, store *history.Store, logger *slog.Logger) {
	closed, err := store.CloseStaleSessions(ctx)
	if err != nil {
		logger.Warn("failed to close interrupted sessions",
			logging.Error(err),
			logging.String(logging.FieldEventType, "session_recovery_failed"),
			logging.String(logging.FieldErrorHint, "inspect the history database"),
			logging.String(logging.FieldImpact, "stale sessions may appear active in status output"),
		)
	} else if closed > 0 {
		logger.Info("closed interrupted sessions",
			logging.Int64("count", closed),
			logging.String(logging.FieldEventType, "session_recovery"),
		)
	}

	active := make(map[string]struct{})
	if session, err := store.ActiveSession(ctx); err == nil && session != nil {
		active[session.ID] = struct{}{}
	}
	staging.Sweep(ctx, cfg.Paths.StagingDir, active, 0, logger)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "segue.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logTargetSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	binary := strings.TrimSpace(cfg.App.BinaryPath)
	versionFile := strings.TrimSpace(cfg.App.VersionFile)
	logger.Info("update target snapshot",
		logging.String(logging.FieldEventType, "target_snapshot"),
		logging.String("app", cfg.App.Name),
		logging.String("binary_path", binary),
		logging.Bool("binary_present", fileExists(binary)),
		logging.String("channel", string(cfg.Channel())),
		logging.String("feed_url", cfg.Feed.URL),
		logging.String("platform", cfg.Feed.Platform),
		logging.Bool("auto_download", cfg.Updates.AutoDownload),
		logging.Bool("auto_restart", cfg.Updates.AutoRestart),
		logging.Bool("version_file_present", versionFile != "" && fileExists(versionFile)),
		logging.Bool("restart_command_set", len(cfg.App.RestartCommand) > 0),
	)
}

func fileExists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
