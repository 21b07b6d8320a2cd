package workflow

import (
	"context"
	"fmt"

	"github.com/flowgraph/flowgraph/internal/metrics"
	"go.uber.org/zap"
)

// GraphBuilder provides a fluent API for constructing graphs. Build
// validates the declared topology — duplicate names, unknown endpoints,
// cycles — before any node is created or initialized.
type GraphBuilder struct {
	name               string
	logger             *zap.Logger
	metrics            *metrics.Collector
	defaultConcurrency int
	queueWarnDepth     int
	nodes              []*nodeSpec
	links              [][2]string
}

type nodeSpec struct {
	name        string
	concurrency int
	run         RunFunc
	hooks       map[Hook]Workflow
}

// NewGraphBuilder creates a builder for a graph with the given name.
func NewGraphBuilder(name string) *GraphBuilder {
	return &GraphBuilder{name: name}
}

// WithLogger sets the logger used by the graph and its nodes.
func (b *GraphBuilder) WithLogger(logger *zap.Logger) *GraphBuilder {
	b.logger = logger
	return b
}

// WithMetrics sets the metrics collector.
func (b *GraphBuilder) WithMetrics(c *metrics.Collector) *GraphBuilder {
	b.metrics = c
	return b
}

// WithDefaultConcurrency bounds every node that declares no bound of
// its own; 0 keeps those nodes unbounded.
func (b *GraphBuilder) WithDefaultConcurrency(k int) *GraphBuilder {
	b.defaultConcurrency = k
	return b
}

// WithQueueWarnDepth makes built nodes log a warning when their queue
// reaches the given depth; 0 disables the warning.
func (b *GraphBuilder) WithQueueWarnDepth(depth int) *GraphBuilder {
	b.queueWarnDepth = depth
	return b
}

// AddNode declares a node and returns its configuration cursor.
func (b *GraphBuilder) AddNode(name string) *BuilderNode {
	spec := &nodeSpec{name: name}
	b.nodes = append(b.nodes, spec)
	return &BuilderNode{spec: spec, parent: b}
}

// Connect declares a directed edge between two declared node names.
func (b *GraphBuilder) Connect(source, target string) *GraphBuilder {
	b.links = append(b.links, [2]string{source, target})
	return b
}

// Build validates the topology, constructs and initializes every node,
// and wires the declared edges.
func (b *GraphBuilder) Build(ctx context.Context) (*Graph, error) {
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}

	g := NewGraph(GraphConfig{Name: b.name, Logger: b.logger, Metrics: b.metrics})
	byName := make(map[string]*Node, len(b.nodes))
	for _, spec := range b.nodes {
		concurrency := spec.concurrency
		if concurrency == 0 {
			concurrency = b.defaultConcurrency
		}
		n := NewNode(NodeConfig{
			Name:           spec.name,
			Concurrency:    concurrency,
			Run:            spec.run,
			Hooks:          spec.hooks,
			QueueWarnDepth: b.queueWarnDepth,
			Logger:         b.logger,
			Metrics:        b.metrics,
		})
		if err := n.Init(ctx); err != nil {
			return nil, err
		}
		if err := g.AddNode(ctx, n); err != nil {
			return nil, err
		}
		byName[spec.name] = n
	}

	for _, link := range b.links {
		if _, err := g.Connect(ctx, byName[link[0]], byName[link[1]]); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// validate checks the declared topology before construction.
func (b *GraphBuilder) validate() error {
	if len(b.nodes) == 0 {
		return fmt.Errorf("graph has no nodes")
	}

	names := make(map[string]bool, len(b.nodes))
	for _, spec := range b.nodes {
		if spec.name == "" {
			return fmt.Errorf("node with empty name")
		}
		if names[spec.name] {
			return fmt.Errorf("duplicate node name: %s", spec.name)
		}
		names[spec.name] = true
	}

	adjacency := make(map[string][]string)
	for _, link := range b.links {
		if !names[link[0]] {
			return fmt.Errorf("edge references unknown source node: %s", link[0])
		}
		if !names[link[1]] {
			return fmt.Errorf("edge references unknown target node: %s", link[1])
		}
		adjacency[link[0]] = append(adjacency[link[0]], link[1])
	}

	return detectCycles(names, adjacency)
}

// detectCycles detects cycles using DFS over the declared adjacency.
func detectCycles(names map[string]bool, adjacency map[string][]string) error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var visit func(name string) bool
	visit = func(name string) bool {
		visited[name] = true
		recStack[name] = true
		for _, next := range adjacency[name] {
			if !visited[next] {
				if visit(next) {
					return true
				}
			} else if recStack[next] {
				// Back edge found - cycle detected
				return true
			}
		}
		recStack[name] = false
		return false
	}

	for name := range names {
		if !visited[name] {
			if visit(name) {
				return fmt.Errorf("cycle detected in graph involving node: %s", name)
			}
		}
	}
	return nil
}

// BuilderNode is the fluent configuration cursor for a declared node.
type BuilderNode struct {
	spec   *nodeSpec
	parent *GraphBuilder
}

// WithConcurrency bounds the node's simultaneous context processing.
func (bn *BuilderNode) WithConcurrency(k int) *BuilderNode {
	bn.spec.concurrency = k
	return bn
}

// WithRun sets the node's per-context run logic.
func (bn *BuilderNode) WithRun(run RunFunc) *BuilderNode {
	bn.spec.run = run
	return bn
}

// WithHooks substitutes lifecycle hook workflows.
func (bn *BuilderNode) WithHooks(hooks map[Hook]Workflow) *BuilderNode {
	bn.spec.hooks = hooks
	return bn
}

// Done completes node configuration and returns to the builder.
func (bn *BuilderNode) Done() *GraphBuilder {
	return bn.parent
}
