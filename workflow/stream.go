package workflow

import "context"

// StreamEventType defines the type of a workflow stream event.
type StreamEventType string

const (
	// StreamEventNodeStart is emitted before a node processes a context.
	StreamEventNodeStart StreamEventType = "node_start"
	// StreamEventNodeComplete is emitted after a node run finishes successfully.
	StreamEventNodeComplete StreamEventType = "node_complete"
	// StreamEventNodeError is emitted when a node run fails.
	StreamEventNodeError StreamEventType = "node_error"
)

// StreamEvent carries information about a workflow execution event.
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	NodeID   string          `json:"node_id,omitempty"`
	NodeName string          `json:"node_name,omitempty"`
	State    any             `json:"state,omitempty"`
	Error    error           `json:"-"`
}

// StreamEmitter is a callback that receives workflow stream events.
type StreamEmitter func(StreamEvent)

// streamEmitterKey is the context key for StreamEmitter.
type streamEmitterKey struct{}

// WithStreamEmitter stores a StreamEmitter in the context. Node
// execution forwards node_start / node_complete / node_error events to
// it, including across the detached drain loop.
func WithStreamEmitter(ctx context.Context, emitter StreamEmitter) context.Context {
	if emitter == nil {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, streamEmitterKey{}, emitter)
}

// streamEmitterFromContext retrieves the StreamEmitter from context.
func streamEmitterFromContext(ctx context.Context) (StreamEmitter, bool) {
	if ctx == nil {
		return nil, false
	}
	v := ctx.Value(streamEmitterKey{})
	if v == nil {
		return nil, false
	}
	emit, ok := v.(StreamEmitter)
	return emit, ok && emit != nil
}

// emitStream sends an event to the context-carried emitter, if any.
func emitStream(ctx context.Context, ev StreamEvent) {
	if emit, ok := streamEmitterFromContext(ctx); ok {
		emit(ev)
	}
}
