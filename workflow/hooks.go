package workflow

import "context"

// Hook names the lifecycle points a workflow may be substituted for.
// The default substitution for every hook is Passthrough.
type Hook string

const (
	// HookInit runs during Node.Init; failure corrupts the node.
	HookInit Hook = "init"
	// HookDestroy runs during Node.Destroy; failure corrupts the node.
	HookDestroy Hook = "destroy"
	// HookEdgeAdd runs before an edge is committed to a node's edge set.
	HookEdgeAdd Hook = "edge_add"
	// HookEdgeRemove runs before an edge is removed from a node's edge set.
	HookEdgeRemove Hook = "edge_remove"
	// HookRun is the node's per-context run logic.
	HookRun Hook = "run"
	// HookIncoming runs when a context is queued on a node.
	HookIncoming Hook = "incoming"
	// HookOutgoing runs before a context is written across an edge.
	HookOutgoing Hook = "outgoing"
	// HookPush runs for each workflow appended to a pipeline.
	HookPush Hook = "push"
)

// EdgeChange is the hook state for HookEdgeAdd and HookEdgeRemove.
type EdgeChange struct {
	Node *Node
	Edge *Edge
}

// PushChange is the hook state for HookPush.
type PushChange struct {
	Pipeline *Pipeline
	Workflow Workflow
}

// Ingress is the hook state for HookIncoming. Edge is nil when the
// context entered through a graph entry point.
type Ingress struct {
	Node  *Node
	Edge  *Edge
	State any
}

// Egress is the hook state for HookOutgoing.
type Egress struct {
	Node  *Node
	Edge  *Edge
	State any
}

// HookSet maps lifecycle points to substituted workflows. A nil HookSet
// resolves every hook to Passthrough.
type HookSet struct {
	m map[Hook]Workflow
}

// NewHookSet builds a hook set from the supplied overrides. The map may
// be nil or partial; missing hooks resolve to Passthrough.
func NewHookSet(overrides map[Hook]Workflow) *HookSet {
	m := make(map[Hook]Workflow, len(overrides))
	for h, wf := range overrides {
		m[h] = wf
	}
	return &HookSet{m: m}
}

// Resolve returns the workflow substituted for a hook, defaulting to
// Passthrough.
func (hs *HookSet) Resolve(h Hook) Workflow {
	if hs != nil {
		if wf, ok := hs.m[h]; ok {
			return wf
		}
	}
	return Passthrough()
}

// run executes the hook's workflow against the given hook state.
func (hs *HookSet) run(ctx context.Context, h Hook, state any) error {
	return Run(ctx, hs.Resolve(h), state, nil)
}
