package workflow

import (
	"context"

	"github.com/flowgraph/flowgraph/types"
)

// Next is the continuation passed into a Task. It represents the rest of
// the enclosing workflow; a task decides when, and whether, to call it.
type Next func(ctx context.Context) error

// Task is the middleware unit of work. Code before the call to next is
// the forward pass, code after it is the backward pass. Never calling
// next silently halts propagation to the continuation; that is allowed
// and is the task's responsibility.
type Task func(ctx context.Context, state any, next Next) error

// Kind is the discriminant of the Workflow tagged union.
type Kind int

const (
	// KindTask is a single middleware function.
	KindTask Kind = iota
	// KindPipeline is an ordered sequence of workflows.
	KindPipeline
	// KindGraph is a DAG of nodes and edges.
	KindGraph
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindPipeline:
		return "pipeline"
	case KindGraph:
		return "graph"
	default:
		return "unknown"
	}
}

// Workflow is a polymorphic unit of work: a task, a pipeline, or a
// graph, distinguished by an explicit kind rather than shape inspection.
// The zero Workflow is invalid and rejected by Run.
type Workflow struct {
	kind     Kind
	task     Task
	pipeline *Pipeline
	graph    *Graph
}

// TaskWorkflow wraps a task function as a Workflow.
func TaskWorkflow(t Task) Workflow {
	return Workflow{kind: KindTask, task: t}
}

// PipelineWorkflow wraps a pipeline as a Workflow.
func PipelineWorkflow(p *Pipeline) Workflow {
	return Workflow{kind: KindPipeline, pipeline: p}
}

// GraphWorkflow wraps a graph as a Workflow.
func GraphWorkflow(g *Graph) Workflow {
	return Workflow{kind: KindGraph, graph: g}
}

// Passthrough returns the default lifecycle hook: a task that
// immediately invokes its continuation.
func Passthrough() Workflow {
	return TaskWorkflow(func(ctx context.Context, _ any, next Next) error {
		return next(ctx)
	})
}

// Kind returns the workflow variant.
func (w Workflow) Kind() Kind {
	return w.kind
}

// Pipeline returns the pipeline payload, or nil for other kinds.
func (w Workflow) Pipeline() *Pipeline {
	return w.pipeline
}

// Graph returns the graph payload, or nil for other kinds.
func (w Workflow) Graph() *Graph {
	return w.graph
}

// Run dispatches a workflow against the shared mutable state.
//
// Tasks are called with (state, next); when no continuation is supplied
// next is a no-op. Pipelines receive the continuation as their tail.
// Graphs have no forward/backward pass concept: the graph runs, and a
// supplied continuation is then invoked once. The dispatcher adds no
// error wrapping of its own.
//
// The state is lent by reference to every participating workflow;
// conflicting concurrent mutation at fan-in points is a caller
// obligation, not guarded here.
func Run(ctx context.Context, wf Workflow, state any, next Next) error {
	switch wf.kind {
	case KindTask:
		if wf.task == nil {
			return types.NewError(types.ErrInvalidKind, "task workflow has no function")
		}
		n := next
		if n == nil {
			n = func(context.Context) error { return nil }
		}
		return wf.task(ctx, state, n)

	case KindPipeline:
		if wf.pipeline == nil {
			return types.NewError(types.ErrInvalidKind, "pipeline workflow has no pipeline")
		}
		return wf.pipeline.Run(ctx, state, next)

	case KindGraph:
		if wf.graph == nil {
			return types.NewError(types.ErrInvalidKind, "graph workflow has no graph")
		}
		if err := wf.graph.Run(ctx, state); err != nil {
			return err
		}
		if next != nil {
			return next(ctx)
		}
		return nil

	default:
		return types.NewErrorf(types.ErrInvalidKind, "unknown workflow kind: %d", wf.kind)
	}
}

// duplicate returns a copy of the workflow. Shallow duplication shares
// the payload; deep duplication recursively duplicates nested pipelines
// and graphs. Task functions are treated as immutable values and are
// never duplicated.
func (w Workflow) duplicate(ctx context.Context, deep bool) (Workflow, error) {
	if !deep {
		return w, nil
	}
	switch w.kind {
	case KindPipeline:
		if w.pipeline == nil {
			return w, nil
		}
		p, err := w.pipeline.Duplicate(ctx, true)
		if err != nil {
			return Workflow{}, err
		}
		return PipelineWorkflow(p), nil
	case KindGraph:
		if w.graph == nil {
			return w, nil
		}
		g, err := w.graph.Duplicate(ctx, true)
		if err != nil {
			return Workflow{}, err
		}
		return GraphWorkflow(g), nil
	default:
		return w, nil
	}
}
