package logging

// Standardized structured logging keys shared across segue components.
const (
	// FieldComponent names the subsystem emitting the record.
	FieldComponent = "component"
	// FieldSessionID carries the update session identifier.
	FieldSessionID = "session_id"
	// FieldRunID carries the daemon run identifier stamped on every record.
	FieldRunID = "run_id"
	// FieldPhase names the session phase (check, download, install).
	FieldPhase = "phase"
	// FieldTrigger records how a session started (manual, scheduled).
	FieldTrigger = "trigger"
	// FieldCorrelationID carries request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags warnings or anomalies that should stand out.
	FieldAlert = "alert"
	// FieldEventType classifies the record for downstream filtering.
	FieldEventType = "event_type"
	// FieldErrorCode carries the failure kind recorded on a session.
	FieldErrorCode = "error_code"
	// FieldErrorHint suggests the next operator action after a failure.
	FieldErrorHint = "error_hint"
	// FieldImpact states the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType labels eligibility and selection decisions.
	FieldDecisionType = "decision_type"
	// FieldProgressPercent carries download progress as 0-100.
	FieldProgressPercent = "progress_percent"
	// FieldProgressETA carries the estimated time remaining for a download.
	FieldProgressETA = "progress_eta"
)
