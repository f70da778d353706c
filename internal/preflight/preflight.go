package preflight

import (
	"context"
	"path/filepath"

	"segue/internal/config"
	"segue/internal/history"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config. The store may
// be nil; the database check then opens a short-lived connection of its own.
func RunAll(ctx context.Context, cfg *config.Config, store *history.Store) []Result {
	if cfg == nil {
		return nil
	}

	return []Result{
		CheckConfig(cfg),
		CheckFeedURL(cfg.Feed.URL),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Install directory", filepath.Dir(cfg.App.BinaryPath)),
		CheckManagedBinary(cfg.App.BinaryPath),
		CheckDatabase(ctx, cfg, store),
		CheckDiskSpace(cfg.Paths.StagingDir),
	}
}

// AllPassed reports whether every check in results passed.
func AllPassed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}

// Failures returns the checks that did not pass.
func Failures(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}
