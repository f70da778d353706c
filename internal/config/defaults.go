package config

import (
	"fmt"
	"runtime"
)

// Default configuration values.
const (
	DefaultChannel             = "stable"
	DefaultCheckInterval       = 3600
	DefaultRequestTimeout      = 30
	DefaultRetryMaxAttempts    = 4
	DefaultRetryBackoffSeconds = 2
	DefaultChunkSizeKiB        = 256
	DefaultStagingDir          = "~/.local/share/segue/staging"
	DefaultLogDir              = "~/.local/share/segue/logs"
	DefaultDatabase            = "~/.local/share/segue/segue.db"
	DefaultNtfyServer          = "https://ntfy.sh"
	DefaultNotifyTimeout       = 10
	DefaultAPIBind             = "127.0.0.1:7617"
	DefaultLogFormat           = "console"
	DefaultLogLevel            = "info"
	DefaultLogRetentionDays    = 60
)

// DefaultPlatform returns the feed platform selector for the running host.
func DefaultPlatform() string {
	return fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)
}

// Default returns a Config populated with default values. The result is not
// usable until the caller fills in the feed URL and managed binary path.
func Default() Config {
	return Config{
		App: App{
			Channel: DefaultChannel,
		},
		Feed: Feed{
			Platform: DefaultPlatform(),
		},
		Updates: Updates{
			CheckInterval: DefaultCheckInterval,
			AutoDownload:  true,
			AutoRestart:   false,
		},
		Network: Network{
			RequestTimeout:      DefaultRequestTimeout,
			RetryMaxAttempts:    DefaultRetryMaxAttempts,
			RetryBackoffSeconds: DefaultRetryBackoffSeconds,
			ChunkSizeKiB:        DefaultChunkSizeKiB,
		},
		Paths: Paths{
			StagingDir: DefaultStagingDir,
			LogDir:     DefaultLogDir,
			Database:   DefaultDatabase,
		},
		Notifications: Notifications{
			NtfyServer:     DefaultNtfyServer,
			RequestTimeout: DefaultNotifyTimeout,
			Available:      true,
			Downloaded:     true,
			Installed:      true,
			Failures:       true,
		},
		API: API{
			Bind: DefaultAPIBind,
		},
		Logging: Logging{
			Format:        DefaultLogFormat,
			Level:         DefaultLogLevel,
			RetentionDays: DefaultLogRetentionDays,
		},
	}
}
