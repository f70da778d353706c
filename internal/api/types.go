package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SessionView describes an update session in a transport-friendly format.
type SessionView struct {
	ID               string  `json:"id"`
	Trigger          string  `json:"trigger"`
	Channel          string  `json:"channel"`
	CurrentVersion   string  `json:"currentVersion"`
	CandidateVersion string  `json:"candidateVersion,omitempty"`
	State            string  `json:"state"`
	Outcome          string  `json:"outcome"`
	Progress         float64 `json:"progress"`
	BytesTotal       int64   `json:"bytesTotal,omitempty"`
	BytesDone        int64   `json:"bytesDone,omitempty"`
	StagedPath       string  `json:"stagedPath,omitempty"`
	ErrorMessage     string  `json:"errorMessage,omitempty"`
	ErrorKind        string  `json:"errorKind,omitempty"`
	CreatedAt        string  `json:"createdAt,omitempty"`
	UpdatedAt        string  `json:"updatedAt,omitempty"`
	FinishedAt       string  `json:"finishedAt,omitempty"`
}

// PreflightView mirrors a single readiness check.
type PreflightView struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// SkippedVersionView describes a version excluded from candidate selection.
type SkippedVersionView struct {
	Version   string `json:"version"`
	SkippedAt string `json:"skippedAt,omitempty"`
}

// StagingView summarizes the staging area's disk footprint.
type StagingView struct {
	Directories int   `json:"directories"`
	Bytes       int64 `json:"bytes"`
}

// StatusView aggregates daemon runtime information for API consumers.
type StatusView struct {
	Running        bool            `json:"running"`
	PID            int             `json:"pid"`
	AppName        string          `json:"appName"`
	Channel        string          `json:"channel"`
	CurrentVersion string          `json:"currentVersion"`
	DatabasePath   string          `json:"databasePath"`
	Staging        *StagingView    `json:"staging,omitempty"`
	Session        *SessionView    `json:"session,omitempty"`
	LastSession    *SessionView    `json:"lastSession,omitempty"`
	Stats          map[string]int  `json:"stats,omitempty"`
	Preflight      []PreflightView `json:"preflight,omitempty"`
}

// HistoryResponse wraps a collection of session rows.
type HistoryResponse struct {
	Sessions []SessionView `json:"sessions"`
}

// SkippedResponse wraps the skip set.
type SkippedResponse struct {
	Versions []SkippedVersionView `json:"versions"`
}

// CheckResponse reports the session started by a check request.
type CheckResponse struct {
	Session SessionView `json:"session"`
}
