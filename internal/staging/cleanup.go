package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"segue/internal/logging"
)

// SweepResult lists what a staging sweep removed and what it could not.
type SweepResult struct {
	Removed []string
	Failed  []SweepError
}

// SweepError pairs a path with the error that kept it on disk.
type SweepError struct {
	Path string
	Err  error
}

// Sweep removes session staging directories that no live session owns.
// Directories whose session ID is listed in keep always survive. A positive
// maxAge additionally spares directories modified after the cutoff, so a
// sweep during normal operation only reclaims abandoned downloads. Entries
// without the session prefix are never touched.
func Sweep(ctx context.Context, stagingDir string, keep map[string]struct{}, maxAge time.Duration, logger *slog.Logger) SweepResult {
	var result SweepResult

	dirs, err := sessionDirs(stagingDir)
	if err != nil {
		result.Failed = append(result.Failed, SweepError{Path: strings.TrimSpace(stagingDir), Err: err})
		return result
	}
	cutoff := time.Now().Add(-maxAge)

	for _, dir := range dirs {
		if ctx.Err() != nil {
			return result
		}
		if _, active := keep[dir.id]; active {
			continue
		}
		if maxAge > 0 {
			info, err := dir.entry.Info()
			if err != nil {
				result.Failed = append(result.Failed, SweepError{Path: dir.path, Err: err})
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
		}
		if err := os.RemoveAll(dir.path); err != nil {
			result.Failed = append(result.Failed, SweepError{Path: dir.path, Err: err})
			if logger != nil {
				logger.Warn("failed to remove staging directory",
					logging.String("path", dir.path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "staging_sweep_failed"),
					logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, dir.path)
		if logger != nil {
			logger.Info("removed staging directory",
				logging.String("path", dir.path),
				logging.String(logging.FieldEventType, "staging_sweep"),
			)
		}
	}
	return result
}

// DirInfo describes one session staging directory.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// ListDirectories reports every session staging directory with its total
// content size. Sizes are best effort; unreadable entries count as zero.
func ListDirectories(stagingDir string) ([]DirInfo, error) {
	dirs, err := sessionDirs(stagingDir)
	if err != nil {
		return nil, err
	}
	var out []DirInfo
	for _, dir := range dirs {
		info, err := dir.entry.Info()
		if err != nil {
			continue
		}
		out = append(out, DirInfo{
			Name:    dir.name,
			Path:    dir.path,
			ModTime: info.ModTime(),
			Size:    dirSize(dir.path),
		})
	}
	return out, nil
}

type sessionDir struct {
	id    string
	name  string
	path  string
	entry os.DirEntry
}

// sessionDirs returns the session-prefixed directories under the staging
// root. A missing root is treated as empty.
func sessionDirs(stagingDir string) ([]sessionDir, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dirs []sessionDir
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, ok := SessionID(entry.Name())
		if !ok {
			continue
		}
		dirs = append(dirs, sessionDir{
			id:    id,
			name:  entry.Name(),
			path:  filepath.Join(stagingDir, entry.Name()),
			entry: entry,
		})
	}
	return dirs, nil
}

func dirSize(path string) int64 {
	var size int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}
