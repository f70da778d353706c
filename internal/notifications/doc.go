// Package notifications delivers update session events via pluggable
// notifiers.
//
// The default implementation publishes to ntfy using the server and topic
// configured in config.toml and gracefully degrades to a no-op when
// notifications are disabled. Enumerated event types cover the session
// milestones so the orchestrator can emit consistent, user-friendly messages
// without duplicating HTTP glue. Per-event toggles in the config suppress
// individual events before any request is made.
//
// Extend this package if you need alternative transports; all orchestration
// code depends only on the simple Service interface.
package notifications
