// Package flowgraph provides a top-level convenience entry point for the
// workflow engine.
//
// Usage:
//
//	import "github.com/flowgraph/flowgraph"
//
//	g := flowgraph.NewGraph(flowgraph.GraphConfig{Name: "etl"})
//	p := flowgraph.NewPipeline(flowgraph.PipelineConfig{Name: "ingest"})
//	w := flowgraph.TaskWorkflow(myTask)
//
// This is a thin set of aliases over [workflow]; both produce identical
// results. Use this package when you prefer the shorter import path.
package flowgraph

import (
	"github.com/flowgraph/flowgraph/workflow"
)

// Version is the flowgraph release version.
const Version = "0.3.0"

// Core workflow aliases so callers never need to import workflow/.

// Workflow is the polymorphic unit of work (task, pipeline, or graph).
type Workflow = workflow.Workflow

// Task is the middleware unit of work.
type Task = workflow.Task

// Next is the continuation passed into a Task.
type Next = workflow.Next

// Kind discriminates the Workflow variants.
type Kind = workflow.Kind

// Pipeline is an ordered, append-only sequence of workflows.
type Pipeline = workflow.Pipeline

// PipelineConfig configures a Pipeline.
type PipelineConfig = workflow.PipelineConfig

// Graph is a DAG of nodes and edges.
type Graph = workflow.Graph

// GraphConfig configures a Graph.
type GraphConfig = workflow.GraphConfig

// Node is a stateful processing vertex.
type Node = workflow.Node

// NodeConfig configures a Node.
type NodeConfig = workflow.NodeConfig

// Edge is a directed connection between two nodes.
type Edge = workflow.Edge

// RunContext carries per-invocation data into node run logic.
type RunContext = workflow.RunContext

// RunFunc is a node's run logic.
type RunFunc = workflow.RunFunc

// GraphBuilder assembles graphs fluently with upfront validation.
type GraphBuilder = workflow.GraphBuilder

// GraphDefinition is the declarative YAML/JSON form of a graph.
type GraphDefinition = workflow.GraphDefinition

// Workflow variant constructors.
var (
	// TaskWorkflow wraps a task function as a Workflow.
	TaskWorkflow = workflow.TaskWorkflow

	// PipelineWorkflow wraps a pipeline as a Workflow.
	PipelineWorkflow = workflow.PipelineWorkflow

	// GraphWorkflow wraps a graph as a Workflow.
	GraphWorkflow = workflow.GraphWorkflow

	// Passthrough returns the default lifecycle hook.
	Passthrough = workflow.Passthrough
)

// Constructors.
var (
	// NewPipeline creates an empty pipeline.
	NewPipeline = workflow.NewPipeline

	// NewGraph creates an empty graph.
	NewGraph = workflow.NewGraph

	// NewNode creates a node in the uninitialized state.
	NewNode = workflow.NewNode

	// NewGraphBuilder starts a fluent graph build.
	NewGraphBuilder = workflow.NewGraphBuilder

	// LoadFromFile reads a graph definition from a YAML or JSON file.
	LoadFromFile = workflow.LoadFromFile
)
