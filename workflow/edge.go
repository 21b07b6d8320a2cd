package workflow

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/flowgraph/flowgraph/types"
	"github.com/google/uuid"
)

// Edge is a directed channel between two nodes. Source and target are
// immutable after construction; edges are constructed only through
// Graph.Connect and destroyed through Graph.Disconnect.
//
// An edge carries a one-shot write guard scoped to a single dispatch:
// while a write is outstanding a second Write is rejected without
// affecting the first. The node-mediated flush path serializes its
// deliveries, arming the guard for exactly one dispatch at a time and
// re-arming after that dispatch settles, so distinct contexts flushed
// concurrently onto the same edge all flow across it.
type Edge struct {
	id      string
	source  *Node
	target  *Node
	written atomic.Bool

	// deliverMu serializes node-mediated deliveries so concurrent
	// flushes of different contexts never collide on the write guard.
	deliverMu sync.Mutex
}

func newEdge(source, target *Node) *Edge {
	return &Edge{
		id:     uuid.New().String(),
		source: source,
		target: target,
	}
}

// ID returns the edge identifier.
func (e *Edge) ID() string {
	return e.id
}

// Source returns the node the edge flows from.
func (e *Edge) Source() *Node {
	return e.source
}

// Target returns the node the edge flows to.
func (e *Edge) Target() *Node {
	return e.target
}

// Write delivers a context to the target node's ingress. The guard
// rejects a second write while the edge is armed; any ingress failure
// is wrapped as an aggregate error.
func (e *Edge) Write(ctx context.Context, state any) error {
	if !e.written.CompareAndSwap(false, true) {
		return types.NewErrorf(types.ErrAlreadyWritten, "edge already written: %s", e.id)
	}
	if err := e.target.Read(ctx, e, state); err != nil {
		return types.NewAggregateError(types.ErrWriteFailed, "failed to write to edge", err)
	}
	return nil
}

// deliver is the node-mediated write path. Deliveries queue behind
// deliverMu, so each one owns the guard for the duration of its own
// dispatch and re-arms only the dispatch it armed. A delivery that
// loses the guard to a direct Write leaves that writer's guard intact.
func (e *Edge) deliver(ctx context.Context, state any) error {
	e.deliverMu.Lock()
	defer e.deliverMu.Unlock()

	if !e.written.CompareAndSwap(false, true) {
		return types.NewErrorf(types.ErrAlreadyWritten, "edge already written: %s", e.id)
	}
	defer e.rearm()

	if err := e.target.Read(ctx, e, state); err != nil {
		return types.NewAggregateError(types.ErrWriteFailed, "failed to write to edge", err)
	}
	return nil
}

// rearm clears the write guard after a delivery this path armed.
func (e *Edge) rearm() {
	e.written.Store(false)
}

// incidentTo reports whether the edge touches the given node.
func (e *Edge) incidentTo(n *Node) bool {
	return e.source == n || e.target == n
}
