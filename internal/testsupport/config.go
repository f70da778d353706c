package testsupport

import (
	"path/filepath"
	"testing"

	"segue/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.App.Name = "demo"
	cfgVal.App.BinaryPath = filepath.Join(base, "bin", "demo")
	cfgVal.App.CurrentVersion = "1.0.0"
	cfgVal.Feed.URL = "https://releases.example.com/feed.json"
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.Database = filepath.Join(base, "segue.db")
	cfgVal.API.Bind = ""
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithCurrentVersion sets the installed version on the test config.
func WithCurrentVersion(ver string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.App.CurrentVersion = ver
	}
}

// WithChannel sets the release channel on the test config.
func WithChannel(channel string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.App.Channel = channel
	}
}

// WithFeedURL sets the feed endpoint on the test config.
func WithFeedURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Feed.URL = url
	}
}

// WithAutoDownload toggles automatic downloads on the test config.
func WithAutoDownload(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Updates.AutoDownload = enabled
	}
}

// WithAutoRestart toggles the post-install restart on the test config.
func WithAutoRestart(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Updates.AutoRestart = enabled
	}
}

// WithManagedBinary writes an executable stub at the configured binary path
// so install flows have something to replace.
func WithManagedBinary(contents string) ConfigOption {
	return func(b *configBuilder) {
		WriteExecutable(b.t, b.cfg.App.BinaryPath, contents)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
