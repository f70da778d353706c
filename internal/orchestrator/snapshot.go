package orchestrator

import "segue/internal/history"

// Snapshot is a point-in-time view of the orchestrator.
type Snapshot struct {
	Running bool
	// Session is a copy of the active session, or nil when idle.
	Session *history.Session
}

// Snapshot reports whether the orchestrator accepts sessions and a copy of
// the one in flight, if any.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	snap := Snapshot{Running: o.running}
	if o.current != nil {
		copied := *o.current.session
		snap.Session = &copied
	}
	return snap
}
