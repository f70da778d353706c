package ipc

import "segue/internal/api"

// SessionView mirrors the HTTP API session DTO for IPC callers.
type SessionView = api.SessionView

// StatusView mirrors the HTTP API status DTO for IPC callers.
type StatusView = api.StatusView

// SkippedVersionView mirrors the HTTP API skip entry DTO for IPC callers.
type SkippedVersionView = api.SkippedVersionView

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse carries the combined daemon and session status.
type StatusResponse struct {
	Status StatusView `json:"status"`
}

// CheckRequest starts an update session. An empty trigger is recorded as a
// manual check.
type CheckRequest struct {
	Trigger string `json:"trigger,omitempty"`
}

// CheckResponse reports the session the check started.
type CheckResponse struct {
	Session SessionView `json:"session"`
}

// ProceedRequest accepts the offered update.
type ProceedRequest struct{}

// ProceedResponse acknowledges the decision.
type ProceedResponse struct {
	Message string `json:"message"`
}

// DismissRequest declines the offered update.
type DismissRequest struct{}

// DismissResponse acknowledges the decision.
type DismissResponse struct {
	Message string `json:"message"`
}

// CancelRequest aborts the active session.
type CancelRequest struct{}

// CancelResponse acknowledges the cancellation request.
type CancelResponse struct {
	Message string `json:"message"`
}

// HistoryRequest fetches recent sessions. Limit <= 0 uses the store default.
type HistoryRequest struct {
	Limit int `json:"limit,omitempty"`
}

// HistoryResponse lists recent sessions, newest first.
type HistoryResponse struct {
	Sessions []SessionView `json:"sessions"`
}

// SkipRequest excludes a version from future update offers.
type SkipRequest struct {
	Version string `json:"version"`
}

// SkipResponse returns the canonical form the skip was stored under.
type SkipResponse struct {
	Version string `json:"version"`
}

// UnskipRequest removes a version from the skip list.
type UnskipRequest struct {
	Version string `json:"version"`
}

// UnskipResponse reports whether an entry was removed.
type UnskipResponse struct {
	Removed bool `json:"removed"`
}

// SkippedRequest lists the skip set.
type SkippedRequest struct{}

// SkippedResponse carries the skip set.
type SkippedResponse struct {
	Versions []SkippedVersionView `json:"versions"`
}

// LogTailRequest fetches daemon log lines based on offset and follow
// semantics. A negative offset tails the end of the file.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next read offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// StopRequest asks the daemon process to shut down.
type StopRequest struct{}

// StopResponse acknowledges the shutdown request.
type StopResponse struct {
	Stopped bool   `json:"stopped"`
	Message string `json:"message"`
}
