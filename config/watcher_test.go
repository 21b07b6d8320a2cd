package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestWatcher(t *testing.T, paths []string) (*FileWatcher, *[]FileEvent, *sync.Mutex) {
	t.Helper()
	w, err := NewFileWatcher(paths,
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(20*time.Millisecond),
		WithWatcherLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, err)

	var mu sync.Mutex
	events := []FileEvent{}
	w.OnChange(func(ev FileEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})
	t.Cleanup(func() { _ = w.Stop() })
	return w, &events, &mu
}

func lastEvent(events *[]FileEvent, mu *sync.Mutex) (FileEvent, bool) {
	mu.Lock()
	defer mu.Unlock()
	if len(*events) == 0 {
		return FileEvent{}, false
	}
	return (*events)[len(*events)-1], true
}

func TestFileWatcher_DetectsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: etl\n"), 0o644))

	w, events, mu := newTestWatcher(t, []string{path})
	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.IsRunning())

	// Poll-based detection relies on the mtime moving forward.
	future := time.Now().Add(time.Second)
	require.NoError(t, os.WriteFile(path, []byte("name: etl-v2\n"), 0o644))
	require.NoError(t, os.Chtimes(path, future, future))

	require.Eventually(t, func() bool {
		ev, ok := lastEvent(events, mu)
		return ok && ev.Op == FileOpWrite && ev.Path == path
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileWatcher_DetectsCreateAndRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.yaml")

	w, events, mu := newTestWatcher(t, []string{path})
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(path, []byte("name: etl\n"), 0o644))
	require.Eventually(t, func() bool {
		ev, ok := lastEvent(events, mu)
		return ok && ev.Op == FileOpCreate
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		ev, ok := lastEvent(events, mu)
		return ok && ev.Op == FileOpRemove
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileWatcher_StartTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("x: 1\n"), 0o644))

	w, _, _ := newTestWatcher(t, []string{path})
	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
}

func TestFileWatcher_AddRemovePath(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.yaml")
	second := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(first, []byte("a: 1\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("b: 1\n"), 0o644))

	w, _, _ := newTestWatcher(t, []string{first})
	require.NoError(t, w.AddPath(second))
	require.NoError(t, w.AddPath(second)) // idempotent
	assert.Len(t, w.Paths(), 2)

	require.NoError(t, w.RemovePath(second))
	assert.Len(t, w.Paths(), 1)
	assert.Error(t, w.RemovePath(second))
}

func TestFileWatcher_StopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("x: 1\n"), 0o644))

	w, _, _ := newTestWatcher(t, []string{path})
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
}
