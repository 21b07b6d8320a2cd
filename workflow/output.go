package workflow

import (
	"context"
	"sync"

	"github.com/flowgraph/flowgraph/types"
)

// Output is the per-run egress queue. Run logic never writes to edges
// directly: it queues outgoing edges on its Output and either lets the
// node auto-flush after the run completes or flushes explicitly.
// Flushing is terminal; edges already written stay written even when
// other writes in the same flush fail.
type Output struct {
	node  *Node
	state any

	mu        sync.Mutex
	queued    []*Edge
	flushed   bool
	autoFlush bool
}

func newOutput(n *Node, state any) *Output {
	return &Output{
		node:      n,
		state:     state,
		autoFlush: true,
	}
}

// Node returns the owning node.
func (o *Output) Node() *Node {
	return o.node
}

// State returns the context being processed by this run.
func (o *Output) State() any {
	return o.state
}

// Queue registers an outgoing edge for the flush. Queuing after a
// flush, queuing a duplicate edge, or queuing an edge not owned by this
// node as source are all errors.
func (o *Output) Queue(e *Edge) error {
	if e == nil {
		return types.NewError(types.ErrEdgeNotFound, "cannot queue nil edge")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.flushed {
		return types.NewError(types.ErrAlreadyFlushed, "output already flushed")
	}
	if e.source != o.node {
		return types.NewErrorf(types.ErrForeignEdge, "edge %s is not owned by node %s", e.id, o.node.Name())
	}
	for _, queued := range o.queued {
		if queued == e {
			return types.NewErrorf(types.ErrDuplicateEdge, "edge %s already queued", e.id)
		}
	}

	o.queued = append(o.queued, e)
	return nil
}

// DisableAutoFlush stops the node from flushing this output after the
// run logic completes; the run logic then owns the flush.
func (o *Output) DisableAutoFlush() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.autoFlush = false
}

// Flushed reports whether the output has been flushed.
func (o *Output) Flushed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flushed
}

// Edges returns a snapshot of the queued edges.
func (o *Output) Edges() []*Edge {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Edge(nil), o.queued...)
}

// Flush dispatches the context to every queued edge concurrently,
// settles all writes, and aggregates failures without rolling back the
// writes that succeeded. A second flush is an error.
func (o *Output) Flush(ctx context.Context) error {
	o.mu.Lock()
	if o.flushed {
		o.mu.Unlock()
		return types.NewError(types.ErrAlreadyFlushed, "output already flushed")
	}
	o.flushed = true
	edges := append([]*Edge(nil), o.queued...)
	o.mu.Unlock()

	if len(edges) == 0 {
		return nil
	}

	errs := make([]error, len(edges))
	var wg sync.WaitGroup
	for i, e := range edges {
		wg.Add(1)
		go func(i int, e *Edge) {
			defer wg.Done()
			errs[i] = o.node.Write(ctx, e, o.state)
		}(i, e)
	}
	wg.Wait()

	if agg := types.NewAggregateError(types.ErrWriteFailed, "failed to write to edges", errs...); agg != nil {
		return agg
	}
	return nil
}

// autoFlushEnabled reports whether the node should flush after run
// logic completes.
func (o *Output) autoFlushEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.autoFlush
}
