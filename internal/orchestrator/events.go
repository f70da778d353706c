package orchestrator

import "segue/internal/history"

// EventKind distinguishes state changes from progress ticks.
type EventKind string

const (
	// EventState marks a state machine transition.
	EventState EventKind = "state"
	// EventProgress marks a download progress update within downloading.
	EventProgress EventKind = "progress"
)

// Event carries a point-in-time copy of the session. Consumers own the copy
// and may hold it across further transitions.
type Event struct {
	Kind    EventKind
	Session history.Session
}

// Subscribe registers an event channel with the given buffer size. The
// returned cancel func removes the subscription and closes the channel.
// Slow consumers lose events rather than stall a session; snapshots carry
// the authoritative state.
func (o *Orchestrator) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	o.subMu.Lock()
	id := o.nextSubID
	o.nextSubID++
	o.subscribers[id] = ch
	o.subMu.Unlock()

	cancel := func() {
		o.subMu.Lock()
		defer o.subMu.Unlock()
		if existing, ok := o.subscribers[id]; ok {
			delete(o.subscribers, id)
			close(existing)
		}
	}
	return ch, cancel
}

// publish delivers an event to every subscriber without blocking. Holding the
// read lock through the sends keeps close from racing a send.
func (o *Orchestrator) publish(event Event) {
	o.subMu.RLock()
	defer o.subMu.RUnlock()
	for _, ch := range o.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
