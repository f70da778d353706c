// Package logs provides file tailing and offset helpers shared by the CLI
// and the daemon's LogTail endpoint.
//
// It streams log files with bounded memory usage, supports negative offsets
// for "tail last N lines" reads, and powers follow mode for
// `segue logs --follow`. Callers supply context deadlines so background
// polling shuts down cleanly when the CLI exits.
package logs
