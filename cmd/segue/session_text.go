package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"segue/internal/api"
)

// parseAPITime decodes the RFC3339 timestamps carried in API payloads.
func parseAPITime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// formatWhen renders a session timestamp as a relative age for table output.
func formatWhen(value string) string {
	parsed, ok := parseAPITime(value)
	if !ok {
		return "-"
	}
	return humanize.Time(parsed)
}

func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytes))
}

// formatVersionChange renders "current -> candidate", or just the current
// version when the session never found a candidate.
func formatVersionChange(session api.SessionView) string {
	from := strings.TrimSpace(session.CurrentVersion)
	if from == "" {
		from = "?"
	}
	to := strings.TrimSpace(session.CandidateVersion)
	if to == "" {
		return from
	}
	return fmt.Sprintf("%s -> %s", from, to)
}

func formatProgress(session api.SessionView) string {
	if session.BytesTotal <= 0 {
		return fmt.Sprintf("%.0f%%", session.Progress*100)
	}
	return fmt.Sprintf("%.0f%% (%s of %s)",
		session.Progress*100,
		formatSize(session.BytesDone),
		formatSize(session.BytesTotal))
}

func formatStagingUsage(usage api.StagingView) string {
	noun := "directories"
	if usage.Directories == 1 {
		noun = "directory"
	}
	size := int64(0)
	if usage.Bytes > 0 {
		size = usage.Bytes
	}
	return fmt.Sprintf("%d %s, %s", usage.Directories, noun, humanize.IBytes(uint64(size)))
}

// sessionOutcomeText renders an outcome with its error detail when one was
// recorded.
func sessionOutcomeText(session api.SessionView) string {
	outcome := strings.TrimSpace(session.Outcome)
	if outcome == "" {
		outcome = session.State
	}
	if message := strings.TrimSpace(session.ErrorMessage); message != "" {
		return fmt.Sprintf("%s: %s", outcome, message)
	}
	return outcome
}

// sessionFailureText renders the recorded failure message with its kind label.
func sessionFailureText(session api.SessionView) string {
	message := strings.TrimSpace(session.ErrorMessage)
	if message == "" {
		message = "unknown error"
	}
	if kind := strings.TrimSpace(session.ErrorKind); kind != "" {
		return fmt.Sprintf("%s (%s)", message, kind)
	}
	return message
}
