package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GraphDefinition is a serializable description of a graph's topology.
// Run logic is referenced by name and resolved against a RunRegistry
// when the definition is built into a live graph.
type GraphDefinition struct {
	// Name is the graph name
	Name string `json:"name" yaml:"name"`
	// Description describes the graph
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Nodes contains all node definitions
	Nodes []NodeDefinition `json:"nodes" yaml:"nodes"`
	// Edges contains all edge definitions
	Edges []EdgeDefinition `json:"edges,omitempty" yaml:"edges,omitempty"`
	// Metadata stores additional graph information
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NodeDefinition is a serializable node description
type NodeDefinition struct {
	// Name is the unique node name
	Name string `json:"name" yaml:"name"`
	// Concurrency bounds simultaneous context processing (0 = unbounded)
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	// Run is the registered run-logic name
	Run string `json:"run,omitempty" yaml:"run,omitempty"`
}

// EdgeDefinition is a serializable edge description
type EdgeDefinition struct {
	// Source is the source node name
	Source string `json:"source" yaml:"source"`
	// Target is the target node name
	Target string `json:"target" yaml:"target"`
}

// RunRegistry maps run-logic names to functions for definition builds.
type RunRegistry map[string]RunFunc

// ToJSON converts the definition to an indented JSON string
func (d *GraphDefinition) ToJSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data), nil
}

// FromJSON parses a definition from a JSON string
func FromJSON(data string) (*GraphDefinition, error) {
	var d GraphDefinition
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from JSON: %w", err)
	}
	return &d, nil
}

// ToYAML converts the definition to a YAML string
func (d *GraphDefinition) ToYAML() (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}

// FromYAML parses a definition from a YAML string
func FromYAML(data string) (*GraphDefinition, error) {
	var d GraphDefinition
	if err := yaml.Unmarshal([]byte(data), &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from YAML: %w", err)
	}
	return &d, nil
}

// SaveToFile writes the definition to a file; the extension selects the
// format (.json, or YAML otherwise).
func (d *GraphDefinition) SaveToFile(path string) error {
	var (
		content string
		err     error
	)
	if isJSONPath(path) {
		content, err = d.ToJSON()
	} else {
		content, err = d.ToYAML()
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// LoadFromFile reads a definition from a file.
func LoadFromFile(path string) (*GraphDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}
	if isJSONPath(path) {
		return FromJSON(string(data))
	}
	return FromYAML(string(data))
}

func isJSONPath(path string) bool {
	return len(path) > 5 && path[len(path)-5:] == ".json"
}

// Validate checks the definition for structural errors: empty or
// duplicate node names, and edges referencing unknown endpoints.
func (d *GraphDefinition) Validate() error {
	if len(d.Nodes) == 0 {
		return fmt.Errorf("definition has no nodes")
	}

	names := make(map[string]bool, len(d.Nodes))
	for _, nd := range d.Nodes {
		if nd.Name == "" {
			return fmt.Errorf("node with empty name")
		}
		if names[nd.Name] {
			return fmt.Errorf("duplicate node name: %s", nd.Name)
		}
		names[nd.Name] = true
	}

	for _, ed := range d.Edges {
		if !names[ed.Source] {
			return fmt.Errorf("edge references unknown source node: %s", ed.Source)
		}
		if !names[ed.Target] {
			return fmt.Errorf("edge references unknown target node: %s", ed.Target)
		}
	}
	return nil
}

// Build constructs a live graph from the definition, resolving node run
// logic against the registry. Nodes are initialized as they are added.
func (d *GraphDefinition) Build(ctx context.Context, cfg GraphConfig, runs RunRegistry) (*Graph, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("definition validation failed: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = d.Name
	}

	g := NewGraph(cfg)
	byName := make(map[string]*Node, len(d.Nodes))
	for _, nd := range d.Nodes {
		var run RunFunc
		if nd.Run != "" {
			fn, ok := runs[nd.Run]
			if !ok {
				return nil, fmt.Errorf("run logic not registered: %s", nd.Run)
			}
			run = fn
		}
		concurrency := nd.Concurrency
		if concurrency == 0 {
			concurrency = cfg.DefaultConcurrency
		}
		n := NewNode(NodeConfig{
			Name:           nd.Name,
			Concurrency:    concurrency,
			Run:            run,
			QueueWarnDepth: cfg.QueueWarnDepth,
			Logger:         cfg.Logger,
			Metrics:        cfg.Metrics,
		})
		if err := n.Init(ctx); err != nil {
			return nil, err
		}
		if err := g.AddNode(ctx, n); err != nil {
			return nil, err
		}
		byName[nd.Name] = n
	}

	for _, ed := range d.Edges {
		if _, err := g.Connect(ctx, byName[ed.Source], byName[ed.Target]); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Definition captures the graph's current topology as a serializable
// definition. Run logic is not reverse-mapped; the Run field is left
// empty and must be reattached on build.
func (g *Graph) Definition() *GraphDefinition {
	d := &GraphDefinition{Name: g.name}
	for _, n := range g.Nodes() {
		d.Nodes = append(d.Nodes, NodeDefinition{
			Name:        n.name,
			Concurrency: n.concurrency,
		})
	}
	for _, e := range g.Edges() {
		d.Edges = append(d.Edges, EdgeDefinition{
			Source: e.source.name,
			Target: e.target.name,
		})
	}
	return d
}
