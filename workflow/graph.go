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

// GraphConfig configures a graph.
type GraphConfig struct {
	// Name identifies the graph; defaults to the generated ID.
	Name string
	// Logger defaults to a nop logger.
	Logger *zap.Logger
	// Metrics is the optional collector; nil disables metrics.
	Metrics *metrics.Collector
	// DefaultConcurrency is applied to nodes that declare no bound of
	// their own when the graph is built from a definition; 0 keeps
	// those nodes unbounded.
	DefaultConcurrency int
	// QueueWarnDepth is handed to built nodes: a node logs a warning
	// when its queue reaches this depth. 0 disables the warning.
	QueueWarnDepth int
}

// Graph is the DAG container. Its node and edge sets are mutated only
// through its own operations; edges exist only between member nodes.
// Entry nodes are derived from the topology — a node with no incoming
// edge — so there is no separate start-node designation to fall out of
// sync with edge additions and removals.
type Graph struct {
	id         string
	name       string
	emitter    *Emitter
	logger     *zap.Logger
	baseLogger *zap.Logger
	collector  *metrics.Collector

	mu    sync.RWMutex
	nodes map[string]*Node
	edges map[string]*Edge
}

// NewGraph constructs an empty graph.
func NewGraph(cfg GraphConfig) *Graph {
	id := uuid.New().String()
	name := cfg.Name
	if name == "" {
		name = id
	}
	base := cfg.Logger
	if base == nil {
		base = zap.NewNop()
	}
	logger := base.With(zap.String("component", "graph"), zap.String("graph", name))

	return &Graph{
		id:         id,
		name:       name,
		emitter:    newEmitter(logger),
		logger:     logger,
		baseLogger: base,
		collector:  cfg.Metrics,
		nodes:      make(map[string]*Node),
		edges:      make(map[string]*Edge),
	}
}

// ID returns the graph identifier.
func (g *Graph) ID() string { return g.id }

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// AddListener subscribes to the graph's events.
func (g *Graph) AddListener(name string, h Handler) string {
	return g.emitter.AddListener(name, h)
}

// RemoveListener cancels a subscription.
func (g *Graph) RemoveListener(id string) {
	g.emitter.RemoveListener(id)
}

// Nodes returns a snapshot of the graph's nodes.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// Edges returns a snapshot of the graph's edges.
func (g *Graph) Edges() []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	return out
}

// NodeByName returns the first member node with the given name.
func (g *Graph) NodeByName(name string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if n.name == name {
			return n, true
		}
	}
	return nil, false
}

// AddNode inserts a node into the graph and sets its back-reference.
// A node belongs to at most one graph at a time; adding an owned or
// already-present node is an error.
func (g *Graph) AddNode(ctx context.Context, n *Node) error {
	if n == nil {
		return types.NewError(types.ErrNodeNotFound, "cannot add nil node")
	}
	if owner := n.Graph(); owner != nil {
		return types.NewErrorf(types.ErrNodeOwned, "node %s already belongs to a graph", n.name)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[n.id]; exists {
		return types.NewErrorf(types.ErrNodeExists, "node %s already in graph %s", n.name, g.name)
	}
	g.nodes[n.id] = n
	n.setGraph(g)
	g.logger.Debug("node added", zap.String("node", n.name))
	return nil
}

// RemoveNode removes a node, cascading removal of every incident edge
// from both the graph's edge set and the neighboring nodes' edge sets,
// then clears the node's back-reference.
func (g *Graph) RemoveNode(ctx context.Context, n *Node) error {
	if n == nil {
		return types.NewError(types.ErrNodeNotFound, "cannot remove nil node")
	}
	g.mu.RLock()
	_, exists := g.nodes[n.id]
	incident := make([]*Edge, 0)
	for _, e := range g.edges {
		if e.incidentTo(n) {
			incident = append(incident, e)
		}
	}
	g.mu.RUnlock()
	if !exists {
		return types.NewErrorf(types.ErrNodeNotFound, "node %s not in graph %s", n.name, g.name)
	}

	var failures []error
	for _, e := range incident {
		if err := g.Disconnect(ctx, e); err != nil {
			failures = append(failures, err)
		}
	}
	if agg := types.NewAggregateError(types.ErrRunFailed, "failed to remove incident edges", failures...); agg != nil {
		return agg
	}

	g.mu.Lock()
	delete(g.nodes, n.id)
	g.mu.Unlock()
	n.setGraph(nil)
	g.logger.Debug("node removed", zap.String("node", n.name))
	return nil
}

// Connect constructs an edge from source to target and registers it
// with both endpoint nodes and the graph. Both endpoints must already
// be members. If the target registration fails the source registration
// is rolled back, so a failed connect leaves no partial edge behind.
func (g *Graph) Connect(ctx context.Context, source, target *Node) (*Edge, error) {
	g.mu.RLock()
	_, hasSource := g.nodes[source.id]
	_, hasTarget := g.nodes[target.id]
	g.mu.RUnlock()
	if !hasSource {
		return nil, types.NewErrorf(types.ErrNodeNotFound, "source node %s not in graph %s", source.name, g.name)
	}
	if !hasTarget {
		return nil, types.NewErrorf(types.ErrNodeNotFound, "target node %s not in graph %s", target.name, g.name)
	}

	e := newEdge(source, target)
	if err := source.AddEdge(ctx, e, true); err != nil {
		return nil, err
	}
	if err := target.AddEdge(ctx, e, true); err != nil {
		_ = source.RemoveEdge(ctx, e, true)
		return nil, err
	}

	g.mu.Lock()
	g.edges[e.id] = e
	g.mu.Unlock()
	g.logger.Debug("edge connected",
		zap.String("source", source.name),
		zap.String("target", target.name),
	)
	return e, nil
}

// Disconnect destroys an edge, removing it from both endpoint nodes'
// edge sets and the graph's edge set. Removal is symmetric: both
// endpoints are touched even when one of them fails.
func (g *Graph) Disconnect(ctx context.Context, e *Edge) error {
	if e == nil {
		return types.NewError(types.ErrEdgeNotFound, "cannot disconnect nil edge")
	}
	g.mu.RLock()
	_, exists := g.edges[e.id]
	g.mu.RUnlock()
	if !exists {
		return types.NewErrorf(types.ErrEdgeNotFound, "edge %s not in graph %s", e.id, g.name)
	}

	srcErr := e.source.RemoveEdge(ctx, e, true)
	tgtErr := e.target.RemoveEdge(ctx, e, true)

	g.mu.Lock()
	delete(g.edges, e.id)
	g.mu.Unlock()

	if agg := types.NewAggregateError(types.ErrRunFailed, "failed to disconnect edge", srcErr, tgtErr); agg != nil {
		return agg
	}
	g.logger.Debug("edge disconnected",
		zap.String("source", e.source.name),
		zap.String("target", e.target.name),
	)
	return nil
}

// EntryNodes returns the nodes with no incoming edge: the set a graph
// run starts from.
func (g *Graph) EntryNodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	hasIncoming := make(map[string]bool, len(g.nodes))
	for _, e := range g.edges {
		hasIncoming[e.target.id] = true
	}

	entries := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		if !hasIncoming[n.id] {
			entries = append(entries, n)
		}
	}
	return entries
}

// Idle reports whether every member node is idle.
func (g *Graph) Idle() bool {
	for _, n := range g.Nodes() {
		if !n.Idle() {
			return false
		}
	}
	return true
}

// Run fans the context out to every entry node concurrently and settles
// all dispatches. A graph with no entry nodes — including an empty
// graph — will never execute and is a hard error. Every dispatch
// failure is collected into one aggregate; processing continues
// asynchronously in the member nodes' drain loops.
func (g *Graph) Run(ctx context.Context, state any) error {
	entries := g.EntryNodes()
	if len(entries) == 0 {
		err := types.NewError(types.ErrNoEntryNodes, "graph has no input nodes")
		g.emitter.emitError(g.name, err)
		return err
	}

	g.logger.Debug("dispatching entry nodes", zap.Int("entries", len(entries)))
	start := time.Now()

	errs := make([]error, len(entries))
	var wg sync.WaitGroup
	for i, n := range entries {
		wg.Add(1)
		go func(i int, n *Node) {
			defer wg.Done()
			errs[i] = n.Read(ctx, nil, state)
		}(i, n)
	}
	wg.Wait()

	if agg := types.NewAggregateError(types.ErrRunFailed, "failed to run graph", errs...); agg != nil {
		g.collector.RecordGraphRun("failed", time.Since(start))
		g.emitter.emitError(g.name, agg)
		return agg
	}

	g.collector.RecordGraphRun("completed", time.Since(start))
	return nil
}

// Duplicate produces a new graph. Shallow duplication shares node and
// edge identity with the original; deep duplication recreates every
// node (running its init hook) and remaps every edge onto the
// duplicated endpoints, preserving topology with no shared identities.
func (g *Graph) Duplicate(ctx context.Context, deep bool) (*Graph, error) {
	dup := NewGraph(GraphConfig{
		Name:    g.name,
		Logger:  g.baseLogger,
		Metrics: g.collector,
	})

	g.mu.RLock()
	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	edges := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, e)
	}
	g.mu.RUnlock()

	if !deep {
		dup.mu.Lock()
		for _, n := range nodes {
			dup.nodes[n.id] = n
		}
		for _, e := range edges {
			dup.edges[e.id] = e
		}
		dup.mu.Unlock()
		return dup, nil
	}

	mapping := make(map[*Node]*Node, len(nodes))
	for _, n := range nodes {
		nn, err := n.Duplicate(ctx)
		if err != nil {
			return nil, err
		}
		if err := dup.AddNode(ctx, nn); err != nil {
			return nil, err
		}
		mapping[n] = nn
	}
	for _, e := range edges {
		if _, err := dup.Connect(ctx, mapping[e.source], mapping[e.target]); err != nil {
			return nil, err
		}
	}
	return dup, nil
}
