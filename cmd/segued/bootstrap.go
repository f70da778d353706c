package main

import (
	"strings"

	"segue/internal/config"
	"segue/internal/daemonrun"
)

func buildRunOptions(cfg *config.Config, logLevel, socketPath string) daemonrun.Options {
	return daemonrun.Options{
		LogLevel:   resolveLogLevel(logLevel, cfg),
		SocketPath: strings.TrimSpace(socketPath),
	}
}

// resolveLogLevel prefers the command-line override and falls back to the
// configured level.
func resolveLogLevel(override string, cfg *config.Config) string {
	if trimmed := strings.TrimSpace(override); trimmed != "" {
		return trimmed
	}
	if cfg == nil {
		return ""
	}
	return cfg.Logging.Level
}
