package logging

import (
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type infoField struct {
	label string
	value string
}

const infoAttrLimit = 8

var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	FieldDecisionType,
	"state",
	"current_version",
	"candidate_version",
	"display_version",
	"channel",
	FieldProgressPercent,
	FieldProgressETA,
	"bytes_done",
	"bytes_total",
	"artifact_size_bytes",
	"error_message",
	FieldErrorCode,
	FieldErrorHint,
	"status",
	"decision_result",
	"decision_reason",
	"candidates_total",
	"candidates_skipped",
	"attempt",
	"max_attempts",
	"backoff",
	// Phase summary fields
	"phase_duration",
	"check_duration",
	"download_duration",
	"install_duration",
	"feed_format",
	"entries",
	"skipped_entries",
	"restart_scheduled",
	"rollback",
	"reason",
}

// selectInfoFields returns formatted info-level fields and a count of hidden entries.
// limit=0 means no limit. includeDebug controls whether debug-only keys are allowed.
func selectInfoFields(attrs []kv, limit int, includeDebug bool) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	if limit < 0 {
		limit = 0
	}
	used := make([]bool, len(attrs))
	formatted := make([]string, len(attrs))
	formattedSet := make([]bool, len(attrs))
	ensureValue := func(idx int) string {
		if !formattedSet[idx] {
			formatted[idx] = formatValueForKeyWithAttrs(attrs[idx].key, attrs[idx].value, attrs)
			formattedSet[idx] = true
		}
		return formatted[idx]
	}
	result := make([]infoField, 0, infoAttrLimit)
	hidden := 0

	for _, key := range infoHighlightKeys {
		if limit > 0 && len(result) >= limit {
			break
		}
		for idx, attr := range attrs {
			if used[idx] || attr.key != key {
				continue
			}
			used[idx] = true
			if skipInfoKey(attr.key) {
				break
			}
			if !includeDebug && isDebugOnlyKey(attr.key) {
				hidden++
				break
			}
			val := ensureValue(idx)
			if !includeDebug && shouldHideInfoValue(attr.key, val) {
				hidden++
				break
			}
			result = append(result, infoField{label: displayLabel(attr.key), value: val})
			break
		}
	}

	for idx, attr := range attrs {
		if used[idx] {
			continue
		}
		used[idx] = true
		if skipInfoKey(attr.key) {
			continue
		}
		if !includeDebug && isDebugOnlyKey(attr.key) {
			hidden++
			continue
		}
		val := ensureValue(idx)
		if !includeDebug && shouldHideInfoValue(attr.key, val) {
			hidden++
			continue
		}
		if limit <= 0 || len(result) < limit {
			result = append(result, infoField{label: displayLabel(attr.key), value: val})
		} else if limit > 0 {
			hidden++
		}
	}

	return result, hidden
}

// formatValueForKeyWithAttrs applies smart formatting based on the key name.
func formatValueForKeyWithAttrs(key string, v slog.Value, attrs []kv) string {
	v = v.Resolve()

	if isByteSizeKey(key) && (v.Kind() == slog.KindInt64 || v.Kind() == slog.KindUint64) {
		var bytes int64
		if v.Kind() == slog.KindInt64 {
			bytes = v.Int64()
		} else {
			bytes = int64(v.Uint64())
		}
		return formatBytes(bytes)
	}

	if isDurationKey(key) && v.Kind() == slog.KindDuration {
		return formatDurationHuman(v.Duration())
	}

	if isPercentKey(key) && v.Kind() == slog.KindFloat64 {
		return formatPercent(v.Float64())
	}

	if v.Kind() == slog.KindBool {
		if v.Bool() {
			return "yes"
		}
		return "no"
	}

	value := formatValue(v)
	if key == "error" || key == "error_message" {
		value = truncateErrorValue(value)
	}
	return value
}

func formatBytes(bytes int64) string {
	if bytes < 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(bytes))
}

func formatDurationHuman(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

func formatPercent(value float64) string {
	switch {
	case value < 0:
		return "unknown"
	case value > 100:
		value = 100
	}
	return humanize.FtoaWithDigits(value, 1) + "%"
}

// isByteSizeKey returns true if the key represents a byte size.
func isByteSizeKey(key string) bool {
	return strings.HasSuffix(key, "_bytes") ||
		strings.HasSuffix(key, "_size") ||
		key == "size"
}

// isDurationKey returns true if the key represents a duration.
func isDurationKey(key string) bool {
	return strings.HasSuffix(key, "_duration") ||
		strings.HasSuffix(key, "_elapsed") ||
		strings.HasSuffix(key, "_latency") ||
		key == "elapsed" ||
		key == "duration" ||
		key == "backoff"
}

// isPercentKey returns true if the key represents a percentage.
func isPercentKey(key string) bool {
	return strings.HasSuffix(key, "_percent") || key == FieldProgressPercent
}

func truncateErrorValue(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	const maxLen = 200
	if len(value) > maxLen {
		value = value[:maxLen] + "..."
	}
	return value
}

func skipInfoKey(key string) bool {
	switch key {
	case "", FieldSessionID, FieldPhase, FieldTrigger, FieldComponent:
		return true
	default:
		return false
	}
}

func isDebugOnlyKey(key string) bool {
	if key == "" {
		return true
	}
	switch key {
	case FieldCorrelationID,
		FieldRunID,
		"url",
		"feed_url",
		"notes_url",
		"sha256",
		"checksum",
		"user_agent",
		"pid",
		"socket",
		"chunk_size",
		"http_status":
		return true
	}
	if strings.Contains(key, "correlation") {
		return true
	}
	if strings.HasSuffix(key, "_id") && key != FieldSessionID {
		return true
	}
	if strings.Contains(key, "_path") || strings.Contains(key, "_dir") || strings.Contains(key, "_file") {
		return true
	}
	return false
}

func shouldHideInfoValue(key, value string) bool {
	switch key {
	case "error_message", "error", "reason", "decision_reason":
		return false
	}
	return len(value) > 120
}

func displayLabel(key string) string {
	switch key {
	case FieldAlert:
		return "Alert"
	case FieldEventType:
		return "Event"
	case FieldDecisionType:
		return "Decision"
	case FieldErrorCode:
		return "Error Code"
	case FieldErrorHint:
		return "Hint"
	case FieldSessionID:
		return "Session"
	case FieldPhase:
		return "Phase"
	case FieldProgressPercent:
		return "Progress"
	case FieldProgressETA:
		return "ETA"
	case "state":
		return "State"
	case "current_version":
		return "Current"
	case "candidate_version":
		return "Candidate"
	case "display_version":
		return "Version"
	case "channel":
		return "Channel"
	case "bytes_done":
		return "Downloaded"
	case "bytes_total":
		return "Total"
	case "artifact_size_bytes":
		return "Artifact Size"
	case "candidates_total":
		return "Candidates"
	case "candidates_skipped":
		return "Skipped"
	case "skipped_entries":
		return "Skipped Entries"
	case "entries":
		return "Entries"
	case "feed_format":
		return "Feed Format"
	case "attempt":
		return "Attempt"
	case "max_attempts":
		return "Attempt Budget"
	case "backoff":
		return "Backoff"
	// Phase summary fields - concise labels
	case "phase_duration":
		return "Duration"
	case "check_duration":
		return "Check Time"
	case "download_duration":
		return "Download Time"
	case "install_duration":
		return "Install Time"
	case "decision_result":
		return "Decision"
	case "decision_reason":
		return "Reason"
	case "decision_selected":
		return "Selected"
	case "restart_scheduled":
		return "Restart Scheduled"
	case "rollback":
		return "Rolled Back"
	case "reason":
		return "Reason"
	default:
		return titleizeKey(key)
	}
}

func titleizeKey(key string) string {
	if key == "" {
		return ""
	}
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-'
	})
	if len(parts) == 0 {
		return strings.ToUpper(key[:1]) + strings.ToLower(key[1:])
	}
	for i, part := range parts {
		parts[i] = capitalizeASCII(part)
	}
	return strings.Join(parts, " ")
}

func capitalizeASCII(value string) string {
	switch len(value) {
	case 0:
		return ""
	case 1:
		return strings.ToUpper(value)
	default:
		lower := strings.ToLower(value)
		return strings.ToUpper(lower[:1]) + lower[1:]
	}
}

func infoSummaryKey(component, sessionID string, attrs []kv) string {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		if state := attrValue(attrs, "state"); state != "" {
			sessionID = "state:" + state
		} else if component != "" {
			sessionID = component
		}
	}
	return sessionID
}

func attrValue(attrs []kv, key string) string {
	for _, kv := range attrs {
		if kv.key == key {
			return attrString(kv.value)
		}
	}
	return ""
}
