// Package orchestrator runs update sessions through their state machine:
// checking, update_available, downloading, verified, installing, and
// restart_pending, with failed and cancelled as the other terminal states.
//
// One session runs at a time on its own goroutine. Every transition is
// persisted to the history store and published to subscribers; terminal
// transitions additionally raise user notifications. Cancellation is honored
// while checking or downloading and refused once installing begins.
package orchestrator
