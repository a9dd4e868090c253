package world

import "sync"

// EventKind classifies a chunk lifecycle notification.
type EventKind uint8

const (
	EventLoaded EventKind = iota
	EventUnloaded
	EventDirty
)

func (k EventKind) String() string {
	switch k {
	case EventLoaded:
		return "loaded"
	case EventUnloaded:
		return "unloaded"
	case EventDirty:
		return "dirty"
	}
	return "unknown"
}

// Event is a lifecycle notification for one chunk.
type Event struct {
	Kind  EventKind
	Coord ChunkCoord
}

// eventQueue collects events from any goroutine until the owner drains them.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
}

func (q *eventQueue) push(ev ...Event) {
	q.mu.Lock()
	q.events = append(q.events, ev...)
	q.mu.Unlock()
}

func (q *eventQueue) drain() []Event {
	q.mu.Lock()
	out := q.events
	q.events = nil
	q.mu.Unlock()
	return out
}
