// Package history persists update sessions in SQLite and owns the session
// state model.
//
// The Store manages database connections, schema initialization, session
// upserts, recent-history queries, stale-session recovery, and the
// user-managed skip set consulted before a candidate is offered. Sessions
// capture the candidate version, progress counters, staged artifact path,
// and failure details so status output works without extra state.
//
// Treat this package as the single source of truth for session semantics;
// when you add new states or columns, update schema.sql and bump
// schemaVersion.
package history
