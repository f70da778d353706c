package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"segue/internal/config"
	"segue/internal/history"
	"segue/internal/integrity"
)

// minStagingBytes is the free-space floor for the staging filesystem.
const minStagingBytes = 256 << 20

// CheckConfig validates the loaded configuration document.
func CheckConfig(cfg *config.Config) Result {
	const name = "Configuration"
	if err := cfg.Validate(); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "valid"}
}

// CheckFeedURL verifies the feed endpoint satisfies the transport policy.
func CheckFeedURL(rawURL string) Result {
	const name = "Feed URL"
	if res := integrity.VerifyTransport(rawURL); !res.OK {
		return Result{Name: name, Detail: res.Detail}
	}
	return Result{Name: name, Passed: true, Detail: rawURL}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckManagedBinary reports whether the binary under management exists and
// is executable. A missing binary is normal before the first install; the
// check fails so operators see it, but nothing gates on it.
func CheckManagedBinary(path string) Result {
	const name = "Managed binary"
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (not installed yet)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not executable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckDatabase verifies the history database answers queries. With a nil
// store it opens its own connection against the configured path.
func CheckDatabase(ctx context.Context, cfg *config.Config, store *history.Store) Result {
	const name = "History database"

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if store == nil {
		opened, err := history.Open(cfg)
		if err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("open failed: %v", err)}
		}
		defer opened.Close()
		store = opened
	}

	health, err := store.CheckHealth(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health query failed: %v", err)}
	}
	if health.Error != "" {
		return Result{Name: name, Detail: health.Error}
	}
	if !health.IntegrityCheck {
		return Result{Name: name, Detail: "integrity check failed"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d sessions)", store.Path(), health.TotalSessions)}
}

// CheckDiskSpace verifies the staging filesystem has room for an artifact.
func CheckDiskSpace(path string) Result {
	const name = "Disk space"

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("statfs %s: %v", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < minStagingBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s free on %s, need at least %s",
			humanize.IBytes(free), path, humanize.IBytes(uint64(minStagingBytes)))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s free on %s", humanize.IBytes(free), path)}
}
