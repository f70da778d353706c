package config

import (
	"errors"
	"fmt"
	"strings"

	"segue/internal/version"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateFeed(); err != nil {
		return err
	}
	if err := c.validateApp(); err != nil {
		return err
	}
	if err := c.validateUpdates(); err != nil {
		return err
	}
	if err := c.validateNetwork(); err != nil {
		return err
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateFeed() error {
	if c.Feed.URL == "" {
		return errors.New("feed.url is required. Set it in the config file or the SEGUE_FEED_URL environment variable")
	}
	if !strings.HasPrefix(strings.ToLower(c.Feed.URL), "https://") {
		return fmt.Errorf("feed.url must use https, got %q", c.Feed.URL)
	}
	if c.Feed.Platform == "" {
		return errors.New("feed.platform cannot be empty")
	}
	return nil
}

func (c *Config) validateApp() error {
	if c.App.BinaryPath == "" {
		return errors.New("app.binary_path is required. Point it at the binary segue manages")
	}
	if _, ok := version.ParseChannel(c.App.Channel); !ok {
		return fmt.Errorf("app.channel must be one of %s, got %q", strings.Join(channelNames(), ", "), c.App.Channel)
	}
	if c.App.CurrentVersion == "" && c.App.VersionFile == "" {
		return errors.New("app.current_version or app.version_file must be set so the installed version is known")
	}
	if c.App.CurrentVersion != "" {
		if _, err := version.Parse(c.App.CurrentVersion); err != nil {
			return fmt.Errorf("app.current_version: %w", err)
		}
	}
	return nil
}

func channelNames() []string {
	channels := version.AllChannels()
	names := make([]string, len(channels))
	for i, channel := range channels {
		names[i] = string(channel)
	}
	return names
}

func (c *Config) validateUpdates() error {
	if c.Updates.CheckInterval < 0 {
		return errors.New("updates.check_interval cannot be negative; use zero to disable scheduled checks")
	}
	return nil
}

func (c *Config) validateNetwork() error {
	return ensurePositiveMap(map[string]int{
		"network.request_timeout (seconds)": c.Network.RequestTimeout,
		"network.retry_max_attempts":        c.Network.RetryMaxAttempts,
		"network.retry_backoff_seconds":     c.Network.RetryBackoffSeconds,
		"network.chunk_size_kib":            c.Network.ChunkSizeKiB,
	})
}

func (c *Config) validatePaths() error {
	if c.Paths.StagingDir == "" {
		return errors.New("paths.staging_dir cannot be empty")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir cannot be empty")
	}
	if c.Paths.Database == "" {
		return errors.New("paths.database cannot be empty")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for label, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be greater than zero", label)
		}
	}
	return nil
}
