package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestEmitter_AddRemoveListener(t *testing.T) {
	e := newEmitter(nil)

	var got []Event
	id := e.AddListener("ping", func(ev Event) { got = append(got, ev) })
	require.NotEmpty(t, id)

	e.emit(Event{Name: "ping", Component: "c", Payload: 1})
	e.emit(Event{Name: "other", Component: "c"})
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Payload)

	e.RemoveListener(id)
	e.emit(Event{Name: "ping", Component: "c"})
	assert.Len(t, got, 1)
}

func TestEmitter_DispatchIsSynchronous(t *testing.T) {
	e := newEmitter(nil)

	order := []string{}
	e.AddListener("ev", func(Event) { order = append(order, "listener") })

	e.emit(Event{Name: "ev"})
	order = append(order, "after emit")
	assert.Equal(t, []string{"listener", "after emit"}, order)
}

func TestEmitter_MultipleListeners(t *testing.T) {
	e := newEmitter(nil)

	count := 0
	e.AddListener("ev", func(Event) { count++ })
	e.AddListener("ev", func(Event) { count++ })

	e.emit(Event{Name: "ev"})
	assert.Equal(t, 2, count)
}

func TestEmitter_PanickingListenerIsRecovered(t *testing.T) {
	e := newEmitter(zaptest.NewLogger(t))

	survived := false
	e.AddListener("ev", func(Event) { panic("listener bug") })
	e.AddListener("ev", func(Event) { survived = true })

	require.NotPanics(t, func() { e.emit(Event{Name: "ev"}) })
	assert.True(t, survived, "one bad listener must not break the others")
}

func TestEmitter_ErrorEvent(t *testing.T) {
	e := newEmitter(nil)

	var got Event
	e.AddListener(EventError, func(ev Event) { got = ev })

	boom := errors.New("boom")
	e.emitError("component", boom)
	assert.Equal(t, EventError, got.Name)
	assert.Equal(t, "component", got.Component)
	assert.Same(t, boom, got.Err)
}
