package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/flowgraph/flowgraph/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutput_QueueValidation(t *testing.T) {
	ctx := context.Background()
	a := initNode(t, NodeConfig{Name: "a"})
	b := initNode(t, NodeConfig{Name: "b"})
	c := initNode(t, NodeConfig{Name: "c"})

	g := NewGraph(GraphConfig{Name: "g"})
	require.NoError(t, g.AddNode(ctx, a))
	require.NoError(t, g.AddNode(ctx, b))
	require.NoError(t, g.AddNode(ctx, c))
	ab, err := g.Connect(ctx, a, b)
	require.NoError(t, err)
	cb, err := g.Connect(ctx, c, b)
	require.NoError(t, err)

	out := newOutput(a, "payload")
	assert.Same(t, a, out.Node())
	assert.Equal(t, "payload", out.State())

	err = out.Queue(nil)
	assert.Equal(t, types.ErrEdgeNotFound, types.GetErrorCode(err))

	// cb flows out of c, not a.
	err = out.Queue(cb)
	assert.Equal(t, types.ErrForeignEdge, types.GetErrorCode(err))

	require.NoError(t, out.Queue(ab))
	err = out.Queue(ab)
	assert.Equal(t, types.ErrDuplicateEdge, types.GetErrorCode(err))
	assert.Len(t, out.Edges(), 1)
}

func TestOutput_FlushIsOneShot(t *testing.T) {
	ctx := context.Background()
	a := initNode(t, NodeConfig{Name: "a"})
	out := newOutput(a, nil)

	assert.False(t, out.Flushed())
	require.NoError(t, out.Flush(ctx))
	assert.True(t, out.Flushed())

	err := out.Flush(ctx)
	assert.Equal(t, types.ErrAlreadyFlushed, types.GetErrorCode(err))

	// Queuing after the flush is refused too.
	b := initNode(t, NodeConfig{Name: "b"})
	g := NewGraph(GraphConfig{Name: "g"})
	require.NoError(t, g.AddNode(ctx, a))
	require.NoError(t, g.AddNode(ctx, b))
	ab, err := g.Connect(ctx, a, b)
	require.NoError(t, err)
	err = out.Queue(ab)
	assert.Equal(t, types.ErrAlreadyFlushed, types.GetErrorCode(err))
}

func TestOutput_FlushDeliversToAllTargets(t *testing.T) {
	ctx := context.Background()
	received := &recorder{}
	sink := func(ctx context.Context, rc *RunContext) error {
		received.add(rc.Node.Name())
		return nil
	}

	a := initNode(t, NodeConfig{Name: "a"})
	b := initNode(t, NodeConfig{Name: "b", Run: sink})
	c := initNode(t, NodeConfig{Name: "c", Run: sink})
	g := NewGraph(GraphConfig{Name: "g"})
	require.NoError(t, g.AddNode(ctx, a))
	require.NoError(t, g.AddNode(ctx, b))
	require.NoError(t, g.AddNode(ctx, c))
	ab, err := g.Connect(ctx, a, b)
	require.NoError(t, err)
	ac, err := g.Connect(ctx, a, c)
	require.NoError(t, err)

	out := newOutput(a, "payload")
	require.NoError(t, out.Queue(ab))
	require.NoError(t, out.Queue(ac))
	require.NoError(t, out.Flush(ctx))

	require.Eventually(t, func() bool {
		return g.Idle() && received.len() == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []any{"b", "c"}, received.snapshot())
}

func TestOutput_PartialFlushFailureKeepsSuccesses(t *testing.T) {
	ctx := context.Background()
	received := &recorder{}

	a := initNode(t, NodeConfig{Name: "a"})
	b := initNode(t, NodeConfig{Name: "b", Run: func(ctx context.Context, rc *RunContext) error {
		received.add(rc.State)
		return nil
	}})
	c := initNode(t, NodeConfig{Name: "c"})
	g := NewGraph(GraphConfig{Name: "g"})
	require.NoError(t, g.AddNode(ctx, a))
	require.NoError(t, g.AddNode(ctx, b))
	require.NoError(t, g.AddNode(ctx, c))
	ab, err := g.Connect(ctx, a, b)
	require.NoError(t, err)
	ac, err := g.Connect(ctx, a, c)
	require.NoError(t, err)

	// c refuses ingress once destroyed; b still receives its write.
	require.NoError(t, c.Destroy(ctx))

	out := newOutput(a, "payload")
	require.NoError(t, out.Queue(ab))
	require.NoError(t, out.Queue(ac))

	err = out.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, types.ErrWriteFailed, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "failed to write to edges")

	var agg *types.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Causes, 1)

	require.Eventually(t, func() bool {
		return b.Idle() && received.len() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestOutput_FlushWithNoEdgesIsNoop(t *testing.T) {
	a := initNode(t, NodeConfig{Name: "a"})
	out := newOutput(a, nil)
	assert.NoError(t, out.Flush(context.Background()))
}
