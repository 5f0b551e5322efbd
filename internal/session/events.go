package session

import "time"

// EventType names a lifecycle event.
type EventType string

const (
	Opened       EventType = "opened"
	StateChanged EventType = "state_changed"
	Released     EventType = "released"
)

// Event is delivered to every Observer, synchronously and in order per session.
type Event struct {
	Type      EventType
	SessionID string
	Kind      Kind
	From      State
	To        State
	At        time.Time
	// Set on Released only.
	Final   *Snapshot
	Results *Results
}

// Observer receives session lifecycle events. Implementations must not call
// back into the Store.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }
