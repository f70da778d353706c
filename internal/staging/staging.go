// Package staging manages the private download area where update artifacts
// land before they are verified and installed. Each session owns a
// session-<id> subdirectory; nothing outside this package writes into the
// staging root.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const dirPrefix = "session-"

// DirName returns the directory name for a session's staging area.
func DirName(sessionID string) string {
	return dirPrefix + sessionID
}

// SessionID extracts the session identifier from a staging directory name.
func SessionID(dirName string) (string, bool) {
	if !strings.HasPrefix(dirName, dirPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(dirName, dirPrefix)
	if id == "" {
		return "", false
	}
	return id, true
}

// Create makes the private staging directory for a session and returns its
// path. The directory is owner-only so a partially downloaded artifact is
// never world readable.
func Create(stagingDir, sessionID string) (string, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return "", fmt.Errorf("staging dir is empty")
	}
	if strings.TrimSpace(sessionID) == "" {
		return "", fmt.Errorf("session id is empty")
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return "", fmt.Errorf("create staging root: %w", err)
	}
	dir := filepath.Join(stagingDir, DirName(sessionID))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create session staging dir: %w", err)
	}
	return dir, nil
}

// Remove deletes a session's staging directory and everything in it.
func Remove(stagingDir, sessionID string) error {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" || strings.TrimSpace(sessionID) == "" {
		return nil
	}
	dir := filepath.Join(stagingDir, DirName(sessionID))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove session staging dir: %w", err)
	}
	return nil
}
