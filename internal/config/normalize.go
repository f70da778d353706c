package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeApp(); err != nil {
		return err
	}
	if err := c.normalizeFeed(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeNotifications(); err != nil {
		return err
	}
	if err := c.normalizeAPI(); err != nil {
		return err
	}
	if err := c.normalizeLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalizeApp() error {
	c.App.Name = strings.TrimSpace(c.App.Name)
	c.App.CurrentVersion = strings.TrimSpace(c.App.CurrentVersion)

	channel := strings.ToLower(strings.TrimSpace(c.App.Channel))
	if channel == "" {
		channel = DefaultChannel
	}
	c.App.Channel = channel

	if trimmed := strings.TrimSpace(c.App.BinaryPath); trimmed != "" {
		expanded, err := expandPath(trimmed)
		if err != nil {
			return fmt.Errorf("app.binary_path: %w", err)
		}
		c.App.BinaryPath = expanded
	} else {
		c.App.BinaryPath = ""
	}

	if trimmed := strings.TrimSpace(c.App.VersionFile); trimmed != "" {
		expanded, err := expandPath(trimmed)
		if err != nil {
			return fmt.Errorf("app.version_file: %w", err)
		}
		c.App.VersionFile = expanded
	} else {
		c.App.VersionFile = ""
	}

	cleanedFiles := make([]string, 0, len(c.App.RequiredFiles))
	seen := make(map[string]struct{}, len(c.App.RequiredFiles))
	for _, entry := range c.App.RequiredFiles {
		trimmed := strings.TrimSpace(entry)
		if trimmed == "" {
			continue
		}
		expanded, err := expandPath(trimmed)
		if err != nil {
			return fmt.Errorf("app.required_files: %w", err)
		}
		if _, exists := seen[expanded]; exists {
			continue
		}
		seen[expanded] = struct{}{}
		cleanedFiles = append(cleanedFiles, expanded)
	}
	c.App.RequiredFiles = cleanedFiles

	command := make([]string, 0, len(c.App.RestartCommand))
	for _, arg := range c.App.RestartCommand {
		trimmed := strings.TrimSpace(arg)
		if trimmed == "" {
			continue
		}
		command = append(command, trimmed)
	}
	c.App.RestartCommand = command

	return nil
}

func (c *Config) normalizeFeed() error {
	c.Feed.URL = strings.TrimSpace(c.Feed.URL)
	if fromEnv, ok := os.LookupEnv("SEGUE_FEED_URL"); ok && strings.TrimSpace(fromEnv) != "" {
		c.Feed.URL = strings.TrimSpace(fromEnv)
	}

	c.Feed.Platform = strings.TrimSpace(c.Feed.Platform)
	if c.Feed.Platform == "" {
		c.Feed.Platform = DefaultPlatform()
	}
	return nil
}

func (c *Config) normalizePaths() error {
	expandedStaging, err := expandPath(c.Paths.StagingDir)
	if err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	c.Paths.StagingDir = expandedStaging

	expandedLog, err := expandPath(c.Paths.LogDir)
	if err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.LogDir = expandedLog

	expandedDatabase, err := expandPath(c.Paths.Database)
	if err != nil {
		return fmt.Errorf("paths.database: %w", err)
	}
	c.Paths.Database = expandedDatabase

	return nil
}

func (c *Config) normalizeNotifications() error {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if fromEnv, ok := os.LookupEnv("SEGUE_NTFY_TOPIC"); ok && strings.TrimSpace(fromEnv) != "" {
		c.Notifications.NtfyTopic = strings.TrimSpace(fromEnv)
	}

	c.Notifications.NtfyServer = strings.TrimRight(strings.TrimSpace(c.Notifications.NtfyServer), "/")
	if c.Notifications.NtfyServer == "" {
		c.Notifications.NtfyServer = DefaultNtfyServer
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = DefaultNotifyTimeout
	}
	return nil
}

func (c *Config) normalizeAPI() error {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.Token = strings.TrimSpace(c.API.Token)
	if fromEnv, ok := os.LookupEnv("SEGUE_API_TOKEN"); ok && strings.TrimSpace(fromEnv) != "" {
		c.API.Token = strings.TrimSpace(fromEnv)
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "":
		format = DefaultLogFormat
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = DefaultLogLevel
	}
	c.Logging.Level = level

	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = DefaultLogRetentionDays
	}
	return nil
}
