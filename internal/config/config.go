package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"segue/internal/version"
)

//go:embed sample_config.toml
var sampleConfig string

// App describes the managed application segue keeps up to date.
type App struct {
	Name           string   `toml:"name"`
	BinaryPath     string   `toml:"binary_path"`
	CurrentVersion string   `toml:"current_version"`
	VersionFile    string   `toml:"version_file"`
	Channel        string   `toml:"channel"`
	RequiredFiles  []string `toml:"required_files"`
	RestartCommand []string `toml:"restart_command"`
}

// Feed contains the release feed endpoint configuration.
type Feed struct {
	URL      string `toml:"url"`
	Platform string `toml:"platform"`
}

// Updates contains scheduling and automation behaviour.
type Updates struct {
	CheckInterval int  `toml:"check_interval"`
	AutoDownload  bool `toml:"auto_download"`
	AutoRestart   bool `toml:"auto_restart"`
}

// Network contains HTTP client tuning shared by feed fetches and downloads.
type Network struct {
	RequestTimeout      int `toml:"request_timeout"`
	RetryMaxAttempts    int `toml:"retry_max_attempts"`
	RetryBackoffSeconds int `toml:"retry_backoff_seconds"`
	ChunkSizeKiB        int `toml:"chunk_size_kib"`
}

// Paths contains directory and database locations.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	Database   string `toml:"database"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	NtfyServer     string `toml:"ntfy_server"`
	RequestTimeout int    `toml:"request_timeout"`
	Available      bool   `toml:"available"`
	Downloaded     bool   `toml:"downloaded"`
	Installed      bool   `toml:"installed"`
	Failures       bool   `toml:"failures"`
}

// API contains the optional HTTP status API configuration.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for segue.
//
// Configuration sections by subsystem:
//   - App: the managed binary, its version source, channel, and restart hook
//   - Feed: release feed URL and platform selector
//   - Updates: check scheduling and auto download/restart switches
//   - Network: HTTP timeouts, retry budget, and download chunking
//   - Paths: staging/log directories and the history database
//   - Notifications: ntfy push notification settings
//   - API: optional HTTP status endpoint
//   - Logging: log format, level, and retention
type Config struct {
	App           App           `toml:"app"`
	Feed          Feed          `toml:"feed"`
	Updates       Updates       `toml:"updates"`
	Network       Network       `toml:"network"`
	Paths         Paths         `toml:"paths"`
	Notifications Notifications `toml:"notifications"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/segue/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// ResolvePath reports the configuration file Load would read for the given
// override path, and whether that file currently exists.
func ResolvePath(path string) (string, bool, error) {
	return resolveConfigPath(path)
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/segue/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("segue.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StagingDir, c.Paths.LogDir}
	if db := strings.TrimSpace(c.Paths.Database); db != "" {
		dirs = append(dirs, filepath.Dir(db))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Channel returns the parsed release channel. Load rejects unknown values, so
// the stable fallback only matters for configs built by hand.
func (c *Config) Channel() version.Channel {
	if channel, ok := version.ParseChannel(c.App.Channel); ok {
		return channel
	}
	return version.ChannelStable
}

// CheckInterval returns the scheduled check cadence. Zero disables scheduling.
func (c *Config) CheckInterval() time.Duration {
	if c.Updates.CheckInterval <= 0 {
		return 0
	}
	return time.Duration(c.Updates.CheckInterval) * time.Second
}

// RequestTimeout returns the per-request HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Network.RequestTimeout) * time.Second
}

// RetryBackoff returns the base delay for download retry backoff.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Network.RetryBackoffSeconds) * time.Second
}

// ChunkSize returns the download copy chunk size in bytes.
func (c *Config) ChunkSize() int {
	return c.Network.ChunkSizeKiB * 1024
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
