// Package install applies staged artifacts to the managed binary. The
// previous binary is backed up next to the target before the replacement is
// renamed into place, so a failed install can be rolled back.
package install

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"segue/internal/config"
	"segue/internal/fileutil"
	"segue/internal/logging"
	"segue/internal/services"
	"segue/internal/version"
)

var commandContext = exec.CommandContext

const binaryMode = 0o755

// Installer holds the target binary settings for one managed application.
type Installer struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New constructs an installer for the configured binary.
func New(cfg *config.Config, logger *slog.Logger) *Installer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Installer{cfg: cfg, logger: logging.NewComponentLogger(logger, "install")}
}

// Target returns the managed binary path.
func (i *Installer) Target() string {
	return i.cfg.App.BinaryPath
}

// BackupPath returns where the previous binary is kept during an install.
func (i *Installer) BackupPath() string {
	return i.cfg.App.BinaryPath + ".backup"
}

// Apply copies the staged artifact into the target directory and renames it
// over the managed binary. The previous binary is copied to BackupPath first
// so Rollback can restore it.
func (i *Installer) Apply(ctx context.Context, stagedPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(stagedPath) == "" {
		return services.Wrap(services.ErrInstall, "install", "apply", "staged path required", nil)
	}
	if _, err := os.Stat(stagedPath); err != nil {
		return services.Wrap(services.ErrInstall, "install", "apply", "staged artifact missing", err)
	}

	target := i.Target()
	backup := i.BackupPath()
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return services.Wrap(services.ErrInstall, "install", "create target directory", "", err)
	}

	if info, err := os.Stat(target); err == nil {
		if err := fileutil.CopyFileMode(target, backup, info.Mode().Perm()); err != nil {
			return services.Wrap(services.ErrInstall, "install", "back up previous binary", "", err)
		}
	} else if os.IsNotExist(err) {
		// First install. A leftover backup from an earlier run must not be
		// restorable over a binary it never matched.
		_ = os.Remove(backup)
	} else {
		return services.Wrap(services.ErrInstall, "install", "stat target", "", err)
	}

	// The replacement is written inside the target directory so the final
	// rename never crosses filesystems.
	pending := target + ".new"
	if err := fileutil.CopyFileVerified(stagedPath, pending); err != nil {
		_ = os.Remove(pending)
		return services.Wrap(services.ErrInstall, "install", "copy artifact", "", err)
	}
	if err := os.Chmod(pending, binaryMode); err != nil {
		_ = os.Remove(pending)
		return services.Wrap(services.ErrInstall, "install", "chmod artifact", "", err)
	}
	if err := syncFile(pending); err != nil {
		_ = os.Remove(pending)
		return services.Wrap(services.ErrInstall, "install", "sync artifact", "", err)
	}
	if err := os.Rename(pending, target); err != nil {
		_ = os.Remove(pending)
		return services.Wrap(services.ErrInstall, "install", "replace binary", "", err)
	}

	logging.WithContext(ctx, i.logger).Info("binary replaced",
		logging.String("target", target),
		logging.String("backup", backup),
	)
	return nil
}

// Verify checks the installed binary structurally: present, executable, and
// every configured required file in place.
func (i *Installer) Verify(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := i.Target()
	info, err := os.Stat(target)
	if err != nil {
		return services.Wrap(services.ErrInstall, "install", "verify", "installed binary missing", err)
	}
	if info.IsDir() || info.Size() == 0 {
		return services.Wrap(services.ErrInstall, "install", "verify", fmt.Sprintf("%s is not a usable binary", target), nil)
	}
	if err := unix.Access(target, unix.X_OK); err != nil {
		return services.Wrap(services.ErrInstall, "install", "verify", fmt.Sprintf("%s is not executable", target), err)
	}
	for _, required := range i.cfg.App.RequiredFiles {
		if _, err := os.Stat(required); err != nil {
			return services.Wrap(services.ErrInstall, "install", "verify", fmt.Sprintf("required file %s missing", required), err)
		}
	}
	return nil
}

// Rollback restores the backup over the managed binary.
func (i *Installer) Rollback(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	backup := i.BackupPath()
	if _, err := os.Stat(backup); err != nil {
		return services.Wrap(services.ErrInstall, "install", "rollback", "no backup to restore", err)
	}
	if err := os.Rename(backup, i.Target()); err != nil {
		return services.Wrap(services.ErrInstall, "install", "rollback", "", err)
	}
	if err := os.Chmod(i.Target(), binaryMode); err != nil {
		return services.Wrap(services.ErrInstall, "install", "rollback chmod", "", err)
	}
	logging.WithContext(ctx, i.logger).Info("previous binary restored", logging.String("target", i.Target()))
	return nil
}

// RecordVersion rewrites the configured version file after a successful
// install. An unset version_file is a no-op.
func (i *Installer) RecordVersion(v version.Version) error {
	path := strings.TrimSpace(i.cfg.App.VersionFile)
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	if err := os.WriteFile(path, []byte(v.String()+"\n"), 0o644); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return nil
}

// Restart launches the configured restart command and waits for it. A
// failure does not undo the install; the caller decides how to report it.
func (i *Installer) Restart(ctx context.Context) error {
	argv := i.cfg.App.RestartCommand
	if len(argv) == 0 {
		return nil
	}
	cmd := commandContext(ctx, argv[0], argv[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("restart command %q: %w (output: %s)", argv[0], err, strings.TrimSpace(string(output)))
	}
	i.logger.Info("restart command completed", logging.String("command", argv[0]))
	return nil
}

func syncFile(path string) error {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer file.Close()
	return file.Sync()
}
