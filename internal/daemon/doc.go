// Package daemon coordinates the long-running segue process.
//
// It wires configuration, the session history store, the update
// orchestrator, and the optional HTTP API into a single lifecycle with
// flock-based locking to prevent multiple instances. The daemon runs the
// scheduled check loop, answers status and control requests arriving over
// IPC or HTTP, and manages the version skip list.
//
// Keep coordination logic here: the mechanics of checking, downloading,
// verifying, and installing updates live in their own packages while the
// daemon focuses on startup, shutdown, and scheduling.
package daemon
