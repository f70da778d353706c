// Package services defines shared utilities consumed by the update
// orchestrator and its collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, phase names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the kinds the history store, notifier, and CLI report.
//
// Use these helpers when wiring new session logic so operational behaviour
// (error handling, observability) stays uniform across the update flow.
package services
