// Package api defines the transport-facing views of segue's domain types
// and the converters that build them. The IPC server and the HTTP API both
// serialize these shapes, so the CLI and remote callers see one contract.
package api
