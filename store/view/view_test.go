package view

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multistore/multistore/backend/local"
	"github.com/multistore/multistore/store"
	"github.com/multistore/multistore/store/engine"
	"github.com/multistore/multistore/store/storeval"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Dispose(context.Background()) })
	return e
}

// newTestEngineWithLocalRoot builds an engine rooted at a filesystem driver,
// the only bundled driver that implements store.Watcher, for the watch test
// below (the default memory root has no watch support).
func newTestEngineWithLocalRoot(t *testing.T) *engine.Engine {
	t.Helper()
	f, err := local.New(map[string]string{"base_dir": t.TempDir()})
	require.NoError(t, err)
	e, err := engine.New(f, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Dispose(context.Background()) })
	return e
}

func TestSetGetRewritesIntoPrefix(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	v := New(e, "tenant-a")

	require.NoError(t, v.Set(ctx, "name", storeval.String("alice"), nil))

	got, found, err := v.Get(ctx, "name")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "alice", got.Str)

	underlying, found, err := e.Get(ctx, "tenant-a:name")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "alice", underlying.Str)
}

func TestViewCannotSeeOutsidePrefix(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	v := New(e, "tenant-a")

	require.NoError(t, e.Set(ctx, "tenant-b:secret", storeval.String("nope"), nil))
	_, found, err := v.Get(ctx, "secret")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEmptyPrefixIsTransparent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	v := New(e, "")

	require.NoError(t, v.Set(ctx, "x", storeval.String("1"), nil))
	got, found, err := e.Get(ctx, "x")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", got.Str)
}

func TestListKeysStripsPrefix(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	v := New(e, "tenant-a")

	require.NoError(t, v.Set(ctx, "a", storeval.String("1"), nil))
	require.NoError(t, v.Set(ctx, "b", storeval.String("2"), nil))
	require.NoError(t, e.Set(ctx, "tenant-b:c", storeval.String("3"), nil))

	keys, err := v.ListKeys(ctx, "", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestGetManySetManyRewriteBothDirections(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	v := New(e, "tenant-a")

	require.NoError(t, v.SetMany(ctx, map[string]storeval.Value{
		"a": storeval.String("1"),
		"b": storeval.String("2"),
	}, nil))

	got, err := v.GetMany(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "1", got["a"].Str)
	assert.Equal(t, "2", got["b"].Str)

	underlying, err := e.GetMany(ctx, []string{"tenant-a:a", "tenant-a:b"})
	require.NoError(t, err)
	assert.Len(t, underlying, 2)
}

func TestWatchFiltersToPrefixAndStripsKeys(t *testing.T) {
	e := newTestEngineWithLocalRoot(t)
	ctx := context.Background()
	v := New(e, "tenant-a")

	events := make(chan string, 4)
	unwatch, err := v.Watch(func(kind store.EventKind, key string) {
		events <- key
	})
	require.NoError(t, err)
	defer unwatch()
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, e.Set(ctx, "tenant-b:ignored", storeval.String("x"), nil))
	require.NoError(t, e.Set(ctx, "tenant-a:seen", storeval.String("y"), nil))

	select {
	case k := <-events:
		assert.Equal(t, "seen", k)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for in-prefix watch event")
	}

	// A single filesystem write can fire more than one fsnotify event (e.g.
	// create followed by write), so drain without asserting an exact count --
	// what matters is that no out-of-prefix key ever leaks through.
	drain := time.After(200 * time.Millisecond)
	for {
		select {
		case k := <-events:
			assert.Equal(t, "seen", k)
		case <-drain:
			return
		}
	}
}

func TestClearOnlyAffectsPrefix(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	v := New(e, "tenant-a")

	require.NoError(t, v.Set(ctx, "a", storeval.String("1"), nil))
	require.NoError(t, e.Set(ctx, "tenant-b:a", storeval.String("2"), nil))

	require.NoError(t, v.Clear(ctx, "", nil))

	_, found, err := v.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = e.Get(ctx, "tenant-b:a")
	require.NoError(t, err)
	assert.True(t, found)
}
