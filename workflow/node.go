package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/flowgraph/flowgraph/internal/metrics"
	"github.com/flowgraph/flowgraph/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the lifecycle state of a node.
type State int32

const (
	// StateUninitialized is the state between construction and Init.
	StateUninitialized State = iota
	// StateInitialized means the node accepts edges and contexts.
	StateInitialized
	// StateCorrupted is the sticky terminal state entered when the init
	// or destroy hook fails; every subsequent operation is refused.
	StateCorrupted
	// StateDestroyed is the terminal state entered by Destroy.
	StateDestroyed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateCorrupted:
		return "corrupted"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// RunContext is handed to the node's run logic for each context.
type RunContext struct {
	// Node is the executing node.
	Node *Node
	// State is the shared mutable context, lent by reference.
	State any
	// Output is the fresh egress queue for this run.
	Output *Output
}

// RunFunc is the user-supplied per-context run logic.
type RunFunc func(ctx context.Context, rc *RunContext) error

// NodeConfig configures a node.
type NodeConfig struct {
	// Name identifies the node; defaults to the generated ID.
	Name string
	// Concurrency bounds the number of contexts processed
	// simultaneously; 0 means unbounded.
	Concurrency int
	// Run is the per-context run logic. Equivalent to substituting
	// HookRun with a task that invokes it; an explicit HookRun override
	// in Hooks wins.
	Run RunFunc
	// Hooks substitutes workflows for lifecycle points.
	Hooks map[Hook]Workflow
	// QueueWarnDepth logs a warning when the pending-context queue
	// reaches this depth; 0 disables the warning.
	QueueWarnDepth int
	// Logger defaults to a nop logger.
	Logger *zap.Logger
	// Metrics is the optional collector; nil disables metrics.
	Metrics *metrics.Collector
}

// envelope is a queued context together with its provenance.
type envelope struct {
	edge  *Edge // nil for graph entry ingress
	state any
}

// invocation guards a logical run against executing twice.
type invocation struct {
	mu  sync.Mutex
	ran bool
}

// Node is a unit of DAG computation. It owns its incident edges, an
// internal FIFO queue of pending contexts, and a detached drain loop
// that processes the queue in bounded-concurrency batches. Producers
// enqueue and return immediately; the loop is the sole consumer.
type Node struct {
	id             string
	name           string
	concurrency    int
	queueWarnDepth int
	hookCfg        map[Hook]Workflow
	runFn          RunFunc
	baseLogger     *zap.Logger
	hooks          *HookSet
	emitter        *Emitter
	logger         *zap.Logger
	collector      *metrics.Collector

	mu      sync.Mutex
	state   State
	graph   *Graph
	edges   map[string]*Edge
	queue   []envelope
	looping bool

	regMu    sync.RWMutex
	registry map[string]any
}

// NewNode constructs a node in the uninitialized state. Callers must
// Init it before issuing edges or contexts.
func NewNode(cfg NodeConfig) *Node {
	id := uuid.New().String()
	name := cfg.Name
	if name == "" {
		name = id
	}
	base := cfg.Logger
	if base == nil {
		base = zap.NewNop()
	}
	logger := base.With(zap.String("component", "node"), zap.String("node", name))

	n := &Node{
		id:             id,
		name:           name,
		concurrency:    cfg.Concurrency,
		queueWarnDepth: cfg.QueueWarnDepth,
		hookCfg:        cfg.Hooks,
		runFn:          cfg.Run,
		baseLogger:     base,
		emitter:        newEmitter(logger),
		logger:         logger,
		collector:      cfg.Metrics,
		state:          StateUninitialized,
		edges:          make(map[string]*Edge),
		registry:       make(map[string]any),
	}

	overrides := make(map[Hook]Workflow, len(cfg.Hooks)+1)
	if cfg.Run != nil {
		fn := cfg.Run
		overrides[HookRun] = TaskWorkflow(func(ctx context.Context, state any, next Next) error {
			rc, ok := state.(*RunContext)
			if !ok {
				return types.NewError(types.ErrInvalidKind, "run hook state is not a RunContext")
			}
			if err := fn(ctx, rc); err != nil {
				return err
			}
			return next(ctx)
		})
	}
	for h, wf := range cfg.Hooks {
		overrides[h] = wf
	}
	n.hooks = NewHookSet(overrides)

	return n
}

// ID returns the node identifier.
func (n *Node) ID() string { return n.id }

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Concurrency returns the bound on simultaneous context processing.
func (n *Node) Concurrency() int { return n.concurrency }

// State returns the current lifecycle state.
func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Graph returns the owning graph, if any.
func (n *Node) Graph() *Graph {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.graph
}

// AddListener subscribes to the node's events.
func (n *Node) AddListener(name string, h Handler) string {
	return n.emitter.AddListener(name, h)
}

// RemoveListener cancels a subscription.
func (n *Node) RemoveListener(id string) {
	n.emitter.RemoveListener(id)
}

// Set stores a value in the node's registry. Init logic populates the
// registry; run logic reads it.
func (n *Node) Set(key string, value any) {
	n.regMu.Lock()
	defer n.regMu.Unlock()
	n.registry[key] = value
}

// Value retrieves a registry value.
func (n *Node) Value(key string) (any, bool) {
	n.regMu.RLock()
	defer n.regMu.RUnlock()
	v, ok := n.registry[key]
	return v, ok
}

// ensureReady rejects the operation unless the node is initialized.
func (n *Node) ensureReady() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ensureReadyLocked()
}

func (n *Node) ensureReadyLocked() error {
	switch n.state {
	case StateInitialized:
		return nil
	case StateCorrupted:
		return types.NewErrorf(types.ErrCorrupted, "node %s is corrupted", n.name)
	default:
		return types.NewErrorf(types.ErrNotInitialized, "node %s is not initialized", n.name)
	}
}

// Init runs the init hook and transitions the node to initialized.
// A hook failure marks the node corrupted, a sticky terminal state.
func (n *Node) Init(ctx context.Context) error {
	n.mu.Lock()
	switch n.state {
	case StateInitialized:
		n.mu.Unlock()
		return types.NewErrorf(types.ErrAlreadyRun, "node %s already initialized", n.name)
	case StateCorrupted:
		n.mu.Unlock()
		return types.NewErrorf(types.ErrCorrupted, "node %s is corrupted", n.name)
	case StateDestroyed:
		n.mu.Unlock()
		return types.NewErrorf(types.ErrNotInitialized, "node %s is destroyed", n.name)
	}
	n.mu.Unlock()

	if err := n.hooks.run(ctx, HookInit, n); err != nil {
		n.setState(StateCorrupted)
		wrapped := types.NewError(types.ErrInitFailed, "node initialization failed").WithCause(err)
		n.logger.Error("node initialization failed", zap.Error(err))
		n.emitter.emitError(n.name, wrapped)
		return wrapped
	}

	n.setState(StateInitialized)
	n.logger.Debug("node initialized")
	n.emitter.emit(Event{Name: EventInitialized, Component: n.name, Payload: n})
	return nil
}

// Destroy runs the destroy hook and transitions the node to the
// terminal destroyed state. Further operations fail as not initialized.
// A hook failure marks the node corrupted instead.
func (n *Node) Destroy(ctx context.Context) error {
	if err := n.ensureReady(); err != nil {
		return err
	}

	if err := n.hooks.run(ctx, HookDestroy, n); err != nil {
		n.setState(StateCorrupted)
		wrapped := types.NewError(types.ErrInitFailed, "node destruction failed").WithCause(err)
		n.logger.Error("node destruction failed", zap.Error(err))
		n.emitter.emitError(n.name, wrapped)
		return wrapped
	}

	n.setState(StateDestroyed)
	n.logger.Debug("node destroyed")
	n.emitter.emit(Event{Name: EventDestroyed, Component: n.name, Payload: n})
	return nil
}

func (n *Node) setState(s State) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
}

// AddEdge registers an incident edge after running the edge-add hook.
// Adding an already-present edge is an error. Passing commit=false runs
// the hook chain without committing the edge, supporting a
// validate-then-commit pattern.
func (n *Node) AddEdge(ctx context.Context, e *Edge, commit bool) error {
	if err := n.ensureReady(); err != nil {
		return err
	}
	if e == nil || !e.incidentTo(n) {
		return types.NewErrorf(types.ErrForeignEdge, "edge is not incident to node %s", n.name)
	}

	if commit {
		n.mu.Lock()
		_, exists := n.edges[e.id]
		n.mu.Unlock()
		if exists {
			return types.NewErrorf(types.ErrEdgeExists, "edge %s already present on node %s", e.id, n.name)
		}
	}

	if err := n.hooks.run(ctx, HookEdgeAdd, &EdgeChange{Node: n, Edge: e}); err != nil {
		return err
	}
	if !commit {
		return nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ensureReadyLocked(); err != nil {
		return err
	}
	if _, exists := n.edges[e.id]; exists {
		return types.NewErrorf(types.ErrEdgeExists, "edge %s already present on node %s", e.id, n.name)
	}
	n.edges[e.id] = e
	return nil
}

// RemoveEdge removes an incident edge after running the edge-remove
// hook. Removing an absent edge is an error; commit=false validates
// without removing.
func (n *Node) RemoveEdge(ctx context.Context, e *Edge, commit bool) error {
	if err := n.ensureReady(); err != nil {
		return err
	}
	if e == nil {
		return types.NewError(types.ErrEdgeNotFound, "cannot remove nil edge")
	}

	if commit {
		n.mu.Lock()
		_, exists := n.edges[e.id]
		n.mu.Unlock()
		if !exists {
			return types.NewErrorf(types.ErrEdgeNotFound, "edge %s not present on node %s", e.id, n.name)
		}
	}

	if err := n.hooks.run(ctx, HookEdgeRemove, &EdgeChange{Node: n, Edge: e}); err != nil {
		return err
	}
	if !commit {
		return nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.edges, e.id)
	return nil
}

// Edges returns a snapshot of the node's incident edges.
func (n *Node) Edges() []*Edge {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Edge, 0, len(n.edges))
	for _, e := range n.edges {
		out = append(out, e)
	}
	return out
}

// Outgoing returns the incident edges that flow out of this node.
func (n *Node) Outgoing() []*Edge {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Edge, 0, len(n.edges))
	for _, e := range n.edges {
		if e.source == n {
			out = append(out, e)
		}
	}
	return out
}

// Incoming returns the incident edges that flow into this node.
func (n *Node) Incoming() []*Edge {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Edge, 0, len(n.edges))
	for _, e := range n.edges {
		if e.target == n {
			out = append(out, e)
		}
	}
	return out
}

// QueueLen returns the number of pending contexts.
func (n *Node) QueueLen() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

// Idle reports whether the node has neither queued contexts nor a
// running drain loop.
func (n *Node) Idle() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue) == 0 && !n.looping
}

// Read is the ingress path: it appends the context to the internal
// queue with its provenance (source edge, or nil for a graph entry
// point) and starts the drain loop when one is not already running.
// Producers return immediately; they never block on processing.
func (n *Node) Read(ctx context.Context, e *Edge, state any) error {
	if err := n.ensureReady(); err != nil {
		return err
	}
	if e != nil && e.target != n {
		return types.NewErrorf(types.ErrForeignEdge, "edge %s does not target node %s", e.id, n.name)
	}

	if err := n.hooks.run(ctx, HookIncoming, &Ingress{Node: n, Edge: e, State: state}); err != nil {
		return err
	}

	n.mu.Lock()
	n.queue = append(n.queue, envelope{edge: e, state: state})
	depth := len(n.queue)
	start := !n.looping
	n.mu.Unlock()

	n.collector.SetQueueDepth(n.name, depth)
	if n.queueWarnDepth > 0 && depth >= n.queueWarnDepth {
		n.logger.Warn("node queue depth at or above threshold",
			zap.Int("depth", depth), zap.Int("threshold", n.queueWarnDepth))
	}

	if start {
		// Detach from the caller's cancellation but keep its values,
		// so the context-carried stream emitter survives into the loop.
		go func(dctx context.Context) {
			_ = n.loop(dctx)
		}(context.WithoutCancel(ctx))
	}
	return nil
}

// loop is the drain loop: while the queue is non-empty it dequeues up
// to Concurrency contexts (all, if unbounded), runs them concurrently,
// and aggregates any failures into a reported error without halting.
// The loop is single-flight per node; reentrant invocation is an error.
func (n *Node) loop(ctx context.Context) error {
	n.mu.Lock()
	if n.looping {
		n.mu.Unlock()
		return types.NewErrorf(types.ErrAlreadyLooping, "node %s is already draining", n.name)
	}
	n.looping = true
	n.mu.Unlock()

	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			n.looping = false
			n.mu.Unlock()
			return nil
		}
		size := len(n.queue)
		if n.concurrency > 0 && n.concurrency < size {
			size = n.concurrency
		}
		batch := append([]envelope(nil), n.queue[:size]...)
		n.queue = n.queue[size:]
		depth := len(n.queue)
		n.mu.Unlock()

		n.collector.SetQueueDepth(n.name, depth)

		errs := make([]error, len(batch))
		var wg sync.WaitGroup
		for i, env := range batch {
			wg.Add(1)
			go func(i int, env envelope) {
				defer wg.Done()
				errs[i] = n.runInvocation(ctx, &invocation{}, env.state, false)
			}(i, env)
		}
		wg.Wait()

		// A bad batch must not stall the node: report and continue.
		if agg := types.NewAggregateError(types.ErrRunFailed, "one or more edges failed to process", errs...); agg != nil {
			n.logger.Warn("batch failed", zap.Int("batch_size", len(batch)), zap.Error(agg))
			n.emitter.emitError(n.name, agg)
		}
	}
}

// RunFor executes the node's run logic once for the given context. A
// fresh Output is created; unless the run logic disabled auto-flush or
// flushed explicitly, queued outputs are flushed when it completes.
func (n *Node) RunFor(ctx context.Context, state any) error {
	return n.runInvocation(ctx, &invocation{}, state, false)
}

func (n *Node) runInvocation(ctx context.Context, inv *invocation, state any, rerun bool) error {
	if err := n.ensureReady(); err != nil {
		return err
	}

	inv.mu.Lock()
	if inv.ran && !rerun {
		inv.mu.Unlock()
		return types.NewErrorf(types.ErrAlreadyRun, "node %s invocation already ran", n.name)
	}
	inv.ran = true
	inv.mu.Unlock()

	emitStream(ctx, StreamEvent{Type: StreamEventNodeStart, NodeID: n.id, NodeName: n.name, State: state})

	out := newOutput(n, state)
	rc := &RunContext{Node: n, State: state, Output: out}

	start := time.Now()
	err := n.hooks.run(ctx, HookRun, rc)
	if err == nil && !out.Flushed() && out.autoFlushEnabled() {
		err = out.Flush(ctx)
	}
	duration := time.Since(start)

	if err != nil {
		n.collector.RecordNodeExecution(n.name, "failed", duration)
		wrapped := types.NewAggregateError(types.ErrRunFailed, "failed to process context", err)
		n.logger.Debug("node run failed", zap.Duration("duration", duration), zap.Error(err))
		emitStream(ctx, StreamEvent{Type: StreamEventNodeError, NodeID: n.id, NodeName: n.name, State: state, Error: wrapped})
		n.emitter.emitError(n.name, wrapped)
		return wrapped
	}

	n.collector.RecordNodeExecution(n.name, "completed", duration)
	n.logger.Debug("node run completed", zap.Duration("duration", duration))
	emitStream(ctx, StreamEvent{Type: StreamEventNodeComplete, NodeID: n.id, NodeName: n.name, State: state})
	return nil
}

// Write is the egress path: it sends a context across one outgoing edge
// via the outgoing hook and the edge's write. It is invoked by the
// output flush, not by external callers traversing edges.
func (n *Node) Write(ctx context.Context, e *Edge, state any) error {
	if err := n.ensureReady(); err != nil {
		return err
	}
	if e == nil || e.source != n {
		return types.NewErrorf(types.ErrForeignEdge, "edge is not an outgoing edge of node %s", n.name)
	}

	if err := n.hooks.run(ctx, HookOutgoing, &Egress{Node: n, Edge: e, State: state}); err != nil {
		return err
	}

	if err := e.deliver(ctx, state); err != nil {
		n.collector.RecordEdgeWrite("failed")
		return err
	}
	n.collector.RecordEdgeWrite("completed")
	return nil
}

// Duplicate recreates the node with the same configuration and runs its
// init hook. The registry starts empty; init logic repopulates it.
func (n *Node) Duplicate(ctx context.Context) (*Node, error) {
	dup := NewNode(NodeConfig{
		Name:           n.name,
		Concurrency:    n.concurrency,
		Run:            n.runFn,
		Hooks:          n.hookCfg,
		QueueWarnDepth: n.queueWarnDepth,
		Logger:         n.baseLogger,
		Metrics:        n.collector,
	})
	if err := dup.Init(ctx); err != nil {
		return nil, err
	}
	return dup, nil
}

// setGraph records the owning graph back-reference.
func (n *Node) setGraph(g *Graph) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.graph = g
}
