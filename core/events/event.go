package events

import (
	"sync"

	"otcswap/core/types"
)

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Payload is implemented by events that carry a flat attribute record.
type Payload interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. the indexer or
// metrics).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(evt Event) { f(evt) }

// Fanout delivers every event to each registered emitter in registration
// order.
type Fanout struct {
	mu       sync.RWMutex
	emitters []Emitter
}

// Add registers an additional subscriber.
func (f *Fanout) Add(e Emitter) {
	if e == nil {
		return
	}
	f.mu.Lock()
	f.emitters = append(f.emitters, e)
	f.mu.Unlock()
}

func (f *Fanout) Emit(evt Event) {
	f.mu.RLock()
	emitters := f.emitters
	f.mu.RUnlock()
	for _, e := range emitters {
		e.Emit(evt)
	}
}

// Record unwraps the attribute payload of evt, or nil when it has none.
func Record(evt Event) *types.Event {
	if p, ok := evt.(Payload); ok {
		return p.Event()
	}
	return nil
}
