package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowgraph/flowgraph/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_AddNode(t *testing.T) {
	ctx := context.Background()
	g := NewGraph(GraphConfig{Name: "g"})

	err := g.AddNode(ctx, nil)
	assert.Equal(t, types.ErrNodeNotFound, types.GetErrorCode(err))

	n := initNode(t, NodeConfig{Name: "n"})
	require.NoError(t, g.AddNode(ctx, n))
	assert.Same(t, g, n.Graph())
	assert.Len(t, g.Nodes(), 1)

	// Same node again: it now belongs to g.
	err = g.AddNode(ctx, n)
	assert.Equal(t, types.ErrNodeOwned, types.GetErrorCode(err))

	// A node belongs to at most one graph at a time.
	other := NewGraph(GraphConfig{Name: "other"})
	err = other.AddNode(ctx, n)
	assert.Equal(t, types.ErrNodeOwned, types.GetErrorCode(err))
}

func TestGraph_RemoveNodeCascadesEdges(t *testing.T) {
	ctx := context.Background()
	a := initNode(t, NodeConfig{Name: "a"})
	b := initNode(t, NodeConfig{Name: "b"})
	c := initNode(t, NodeConfig{Name: "c"})

	g := NewGraph(GraphConfig{Name: "g"})
	require.NoError(t, g.AddNode(ctx, a))
	require.NoError(t, g.AddNode(ctx, b))
	require.NoError(t, g.AddNode(ctx, c))
	_, err := g.Connect(ctx, a, b)
	require.NoError(t, err)
	_, err = g.Connect(ctx, b, c)
	require.NoError(t, err)
	require.Len(t, g.Edges(), 2)

	require.NoError(t, g.RemoveNode(ctx, b))

	// Both incident edges vanish from the graph and from the neighbors.
	assert.Empty(t, g.Edges())
	assert.Empty(t, a.Edges())
	assert.Empty(t, c.Edges())
	assert.Len(t, g.Nodes(), 2)
	assert.Nil(t, b.Graph())

	err = g.RemoveNode(ctx, b)
	assert.Equal(t, types.ErrNodeNotFound, types.GetErrorCode(err))
}

func TestGraph_ConnectRequiresMembership(t *testing.T) {
	ctx := context.Background()
	a := initNode(t, NodeConfig{Name: "a"})
	b := initNode(t, NodeConfig{Name: "b"})
	g := NewGraph(GraphConfig{Name: "g"})
	require.NoError(t, g.AddNode(ctx, a))

	_, err := g.Connect(ctx, a, b)
	assert.Equal(t, types.ErrNodeNotFound, types.GetErrorCode(err))
	_, err = g.Connect(ctx, b, a)
	assert.Equal(t, types.ErrNodeNotFound, types.GetErrorCode(err))
}

func TestGraph_ConnectRollsBackOnTargetFailure(t *testing.T) {
	ctx := context.Background()
	a := initNode(t, NodeConfig{Name: "a"})
	d := initNode(t, NodeConfig{
		Name: "d",
		Hooks: map[Hook]Workflow{
			HookEdgeAdd: TaskWorkflow(func(ctx context.Context, state any, next Next) error {
				return errors.New("target refuses edges")
			}),
		},
	})
	g := NewGraph(GraphConfig{Name: "g"})
	require.NoError(t, g.AddNode(ctx, a))
	require.NoError(t, g.AddNode(ctx, d))

	_, err := g.Connect(ctx, a, d)
	require.Error(t, err)

	// No partial edge is left behind.
	assert.Empty(t, g.Edges())
	assert.Empty(t, a.Edges())
	assert.Empty(t, d.Edges())
}

func TestGraph_DisconnectUnknownEdge(t *testing.T) {
	ctx := context.Background()
	a := initNode(t, NodeConfig{Name: "a"})
	b := initNode(t, NodeConfig{Name: "b"})
	_, e := connectPair(t, ctx, a, b)

	other := NewGraph(GraphConfig{Name: "other"})
	err := other.Disconnect(ctx, e)
	assert.Equal(t, types.ErrEdgeNotFound, types.GetErrorCode(err))

	err = other.Disconnect(ctx, nil)
	assert.Equal(t, types.ErrEdgeNotFound, types.GetErrorCode(err))
}

func TestGraph_EntryNodesDerivedFromTopology(t *testing.T) {
	ctx := context.Background()
	a := initNode(t, NodeConfig{Name: "a"})
	b := initNode(t, NodeConfig{Name: "b"})
	c := initNode(t, NodeConfig{Name: "c"})
	g := NewGraph(GraphConfig{Name: "g"})
	require.NoError(t, g.AddNode(ctx, a))
	require.NoError(t, g.AddNode(ctx, b))
	require.NoError(t, g.AddNode(ctx, c))
	e, err := g.Connect(ctx, a, b)
	require.NoError(t, err)

	entryNames := func() []string {
		var names []string
		for _, n := range g.EntryNodes() {
			names = append(names, n.Name())
		}
		return names
	}
	assert.ElementsMatch(t, []string{"a", "c"}, entryNames())

	// Removing the edge makes b an entry node again.
	require.NoError(t, g.Disconnect(ctx, e))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, entryNames())
}

func TestGraph_RunRequiresEntryNodes(t *testing.T) {
	ctx := context.Background()

	t.Run("empty graph", func(t *testing.T) {
		g := NewGraph(GraphConfig{Name: "g"})
		err := g.Run(ctx, nil)
		assert.Equal(t, types.ErrNoEntryNodes, types.GetErrorCode(err))
		assert.Contains(t, err.Error(), "graph has no input nodes")
	})

	t.Run("cyclic graph", func(t *testing.T) {
		a := initNode(t, NodeConfig{Name: "a"})
		b := initNode(t, NodeConfig{Name: "b"})
		g := NewGraph(GraphConfig{Name: "g"})
		require.NoError(t, g.AddNode(ctx, a))
		require.NoError(t, g.AddNode(ctx, b))
		_, err := g.Connect(ctx, a, b)
		require.NoError(t, err)
		_, err = g.Connect(ctx, b, a)
		require.NoError(t, err)

		var received error
		g.AddListener(EventError, func(ev Event) { received = ev.Err })

		err = g.Run(ctx, nil)
		assert.Equal(t, types.ErrNoEntryNodes, types.GetErrorCode(err))
		assert.Equal(t, err, received)
	})
}

func TestGraph_RunAggregatesEveryDispatchFailure(t *testing.T) {
	ctx := context.Background()
	g := NewGraph(GraphConfig{Name: "g"})
	for _, name := range []string{"a", "b", "c"} {
		// Uninitialized nodes refuse ingress.
		require.NoError(t, g.AddNode(ctx, NewNode(NodeConfig{Name: name})))
	}

	err := g.Run(ctx, "payload")
	require.Error(t, err)
	assert.Equal(t, types.ErrRunFailed, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "failed to run graph")

	var agg *types.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Causes, 3)
}

func TestGraph_RunFansOutAndIn(t *testing.T) {
	ctx := context.Background()
	visits := &recorder{}
	record := func(ctx context.Context, rc *RunContext) error {
		visits.add(rc.Node.Name())
		for _, e := range rc.Node.Outgoing() {
			if err := rc.Output.Queue(e); err != nil {
				return err
			}
		}
		return nil
	}

	//    a
	//   / \
	//  b   c
	//   \ /
	//    d
	g := NewGraph(GraphConfig{Name: "g"})
	nodes := map[string]*Node{}
	for _, name := range []string{"a", "b", "c", "d"} {
		n := initNode(t, NodeConfig{Name: name, Run: record})
		nodes[name] = n
		require.NoError(t, g.AddNode(ctx, n))
	}
	for _, link := range [][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}} {
		_, err := g.Connect(ctx, nodes[link[0]], nodes[link[1]])
		require.NoError(t, err)
	}

	state := map[string]any{"id": 42}
	require.NoError(t, g.Run(ctx, state))

	require.Eventually(t, func() bool {
		return g.Idle() && visits.len() == 5
	}, 2*time.Second, 5*time.Millisecond)

	counts := map[any]int{}
	for _, v := range visits.snapshot() {
		counts[v]++
	}
	// The fan-in node processes the context once per incoming edge.
	assert.Equal(t, map[any]int{"a": 1, "b": 1, "c": 1, "d": 2}, counts)
}

func TestGraph_DuplicateShallowSharesIdentity(t *testing.T) {
	ctx := context.Background()
	a := initNode(t, NodeConfig{Name: "a"})
	b := initNode(t, NodeConfig{Name: "b"})
	g, e := connectPair(t, ctx, a, b)

	dup, err := g.Duplicate(ctx, false)
	require.NoError(t, err)
	assert.NotEqual(t, g.ID(), dup.ID())
	assert.ElementsMatch(t, g.Nodes(), dup.Nodes())
	require.Len(t, dup.Edges(), 1)
	assert.Same(t, e, dup.Edges()[0])
}

func TestGraph_DuplicateDeepPreservesTopology(t *testing.T) {
	ctx := context.Background()
	g := NewGraph(GraphConfig{Name: "g"})
	nodes := map[string]*Node{}
	for _, name := range []string{"a", "b", "c"} {
		n := initNode(t, NodeConfig{Name: name})
		nodes[name] = n
		require.NoError(t, g.AddNode(ctx, n))
	}
	for _, link := range [][2]string{{"a", "b"}, {"a", "c"}} {
		_, err := g.Connect(ctx, nodes[link[0]], nodes[link[1]])
		require.NoError(t, err)
	}

	dup, err := g.Duplicate(ctx, true)
	require.NoError(t, err)
	assert.Len(t, dup.Nodes(), 3)
	assert.Len(t, dup.Edges(), 2)

	// No shared identities.
	for _, n := range dup.Nodes() {
		orig := nodes[n.Name()]
		require.NotNil(t, orig)
		assert.NotEqual(t, orig.ID(), n.ID())
		assert.Same(t, dup, n.Graph())
	}

	// Same shape by name.
	shape := func(g *Graph) map[string]string {
		out := map[string]string{}
		for _, e := range g.Edges() {
			out[e.Source().Name()+"->"+e.Target().Name()] = e.ID()
		}
		return out
	}
	origShape := shape(g)
	dupShape := shape(dup)
	require.Len(t, dupShape, len(origShape))
	for k, origID := range origShape {
		dupID, ok := dupShape[k]
		require.True(t, ok, "missing edge %s", k)
		assert.NotEqual(t, origID, dupID)
	}
}

func TestGraph_NodeByName(t *testing.T) {
	ctx := context.Background()
	g := NewGraph(GraphConfig{Name: "g"})
	n := initNode(t, NodeConfig{Name: "fetch"})
	require.NoError(t, g.AddNode(ctx, n))

	found, ok := g.NodeByName("fetch")
	require.True(t, ok)
	assert.Same(t, n, found)

	_, ok = g.NodeByName("missing")
	assert.False(t, ok)
}
