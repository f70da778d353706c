package api

import (
	"time"

	"segue/internal/history"
	"segue/internal/preflight"
	"segue/internal/staging"
)

// FromSession converts a session row to its API representation.
func FromSession(session *history.Session) SessionView {
	if session == nil {
		return SessionView{}
	}

	view := SessionView{
		ID:               session.ID,
		Trigger:          session.Trigger,
		Channel:          session.Channel,
		CurrentVersion:   session.CurrentVersion,
		CandidateVersion: session.CandidateVersion,
		State:            string(session.State),
		Outcome:          session.Outcome(),
		Progress:         session.Progress,
		BytesTotal:       session.BytesTotal,
		BytesDone:        session.BytesDone,
		StagedPath:       session.StagedPath,
		ErrorMessage:     session.ErrorMessage,
		ErrorKind:        session.ErrorKind,
		CreatedAt:        FormatTime(session.CreatedAt),
		UpdatedAt:        FormatTime(session.UpdatedAt),
	}
	if session.FinishedAt != nil {
		view.FinishedAt = FormatTime(*session.FinishedAt)
	}
	return view
}

// FromSessions converts session rows into API views, newest first as stored.
func FromSessions(sessions []*history.Session) []SessionView {
	if len(sessions) == 0 {
		return nil
	}
	out := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, FromSession(session))
	}
	return out
}

// FromPreflight converts readiness checks into API views.
func FromPreflight(results []preflight.Result) []PreflightView {
	if len(results) == 0 {
		return nil
	}
	out := make([]PreflightView, 0, len(results))
	for _, result := range results {
		out = append(out, PreflightView{
			Name:   result.Name,
			Passed: result.Passed,
			Detail: result.Detail,
		})
	}
	return out
}

// FromStaging totals session staging directories into a usage summary. Nil
// is returned when the staging area is empty so the field can be omitted.
func FromStaging(dirs []staging.DirInfo) *StagingView {
	if len(dirs) == 0 {
		return nil
	}
	view := &StagingView{Directories: len(dirs)}
	for _, dir := range dirs {
		view.Bytes += dir.Size
	}
	return view
}

// FromSkipped converts the skip set into API views.
func FromSkipped(rows []history.SkippedVersion) []SkippedVersionView {
	if len(rows) == 0 {
		return nil
	}
	out := make([]SkippedVersionView, 0, len(rows))
	for _, row := range rows {
		out = append(out, SkippedVersionView{
			Version:   row.Version,
			SkippedAt: FormatTime(row.SkippedAt),
		})
	}
	return out
}

// SessionStats produces a string-keyed representation of per-state counts.
func SessionStats(stats map[history.State]int) map[string]int {
	if len(stats) == 0 {
		return nil
	}
	out := make(map[string]int, len(stats))
	for state, count := range stats {
		out[string(state)] = count
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns an empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
