package workflow

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Reserved event names emitted by the core. The core only ever emits;
// it never subscribes to its own events.
const (
	// EventError carries an aggregated error as the event payload.
	EventError = "error"
	// EventInitialized is emitted after a node initializes successfully.
	EventInitialized = "initialized"
	// EventDestroyed is emitted after a node is destroyed.
	EventDestroyed = "destroyed"
)

// listenerCounter generates unique listener IDs.
var listenerCounter int64

// Event is a notification published by a component.
type Event struct {
	// Name is the event name listeners subscribed to.
	Name string
	// Component identifies the emitting component.
	Component string
	// Payload carries event-specific data.
	Payload any
	// Err is set for EventError notifications.
	Err error
}

// Handler receives events for a subscribed name.
type Handler func(Event)

// Emitter is the minimal publish surface exposed by pipelines, nodes,
// and graphs. Dispatch is synchronous on the emitting goroutine; a
// listener that panics is recovered and logged so it cannot break the
// emitting operation.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[string]map[string]Handler
	logger   *zap.Logger
}

func newEmitter(logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{
		handlers: make(map[string]map[string]Handler),
		logger:   logger,
	}
}

// AddListener subscribes a handler to an event name and returns the
// subscription ID.
func (e *Emitter) AddListener(name string, h Handler) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers[name] == nil {
		e.handlers[name] = make(map[string]Handler)
	}
	id := fmt.Sprintf("%s-%d", name, atomic.AddInt64(&listenerCounter, 1))
	e.handlers[name][id] = h
	return id
}

// RemoveListener cancels a subscription by ID.
func (e *Emitter) RemoveListener(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, handlers := range e.handlers {
		if _, ok := handlers[id]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(e.handlers, name)
			}
			return
		}
	}
}

// emit dispatches an event synchronously to every listener of its name.
func (e *Emitter) emit(ev Event) {
	e.mu.RLock()
	src := e.handlers[ev.Name]
	handlers := make([]Handler, 0, len(src))
	for _, h := range src {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()

	for _, h := range handlers {
		e.dispatch(h, ev)
	}
}

func (e *Emitter) dispatch(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event listener panicked",
				zap.String("event", ev.Name),
				zap.String("component", ev.Component),
				zap.Any("panic", r),
			)
		}
	}()
	h(ev)
}

// emitError publishes the reserved error event.
func (e *Emitter) emitError(component string, err error) {
	e.emit(Event{Name: EventError, Component: component, Err: err})
}
