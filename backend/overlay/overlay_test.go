package overlay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multistore/multistore/backend/memory"
	"github.com/multistore/multistore/store"
)

func TestReadThrough(t *testing.T) {
	ctx := context.Background()
	top, err := memory.New(nil)
	require.NoError(t, err)
	bottom, err := memory.New(nil)
	require.NoError(t, err)
	require.NoError(t, bottom.Set(ctx, "cfg:port", "8080", nil))

	f, err := New([]store.Driver{top, bottom})
	require.NoError(t, err)

	v, found, err := f.Get(ctx, "cfg:port", nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "8080", v)

	require.NoError(t, f.Set(ctx, "cfg:port", "9090", nil))
	v, found, err = f.Get(ctx, "cfg:port", nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "9090", v)

	bv, bfound, err := bottom.Get(ctx, "cfg:port", nil)
	require.NoError(t, err)
	require.True(t, bfound)
	assert.Equal(t, "8080", bv, "bottom layer must be untouched by a top write")
}

func TestRemoveMasksLowerLayer(t *testing.T) {
	ctx := context.Background()
	top, err := memory.New(nil)
	require.NoError(t, err)
	bottom, err := memory.New(nil)
	require.NoError(t, err)
	require.NoError(t, bottom.Set(ctx, "cfg:port", "8080", nil))

	f, err := New([]store.Driver{top, bottom})
	require.NoError(t, err)

	require.NoError(t, f.Remove(ctx, "cfg:port", nil))

	_, found, err := f.Get(ctx, "cfg:port", nil)
	require.NoError(t, err)
	assert.False(t, found)

	keys, err := f.ListKeys(ctx, "", nil)
	require.NoError(t, err)
	assert.NotContains(t, keys, "cfg:port")

	bv, bfound, err := bottom.Get(ctx, "cfg:port", nil)
	require.NoError(t, err)
	require.True(t, bfound)
	assert.Equal(t, "8080", bv, "remove must not touch the lower layer")
}

func TestHasRespectsTombstone(t *testing.T) {
	ctx := context.Background()
	top, err := memory.New(nil)
	require.NoError(t, err)
	bottom, err := memory.New(nil)
	require.NoError(t, err)
	require.NoError(t, bottom.Set(ctx, "k", "v", nil))

	f, err := New([]store.Driver{top, bottom})
	require.NoError(t, err)
	require.NoError(t, f.Remove(ctx, "k", nil))

	ok, err := f.Has(ctx, "k", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetRejectsTombstoneValue(t *testing.T) {
	ctx := context.Background()
	top, err := memory.New(nil)
	require.NoError(t, err)

	f, err := New([]store.Driver{top})
	require.NoError(t, err)

	err = f.Set(ctx, "k", Tombstone, nil)
	assert.ErrorIs(t, err, store.ErrInvalidKey)
}

func TestListKeysUnionsLayers(t *testing.T) {
	ctx := context.Background()
	top, err := memory.New(nil)
	require.NoError(t, err)
	bottom, err := memory.New(nil)
	require.NoError(t, err)

	require.NoError(t, top.Set(ctx, "a", "1", nil))
	require.NoError(t, bottom.Set(ctx, "b", "2", nil))
	require.NoError(t, bottom.Set(ctx, "a", "shadowed", nil))

	f, err := New([]store.Driver{top, bottom})
	require.NoError(t, err)

	keys, err := f.ListKeys(ctx, "", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestNewRequiresAtLeastOneLayer(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, store.ErrMissingConfig)
}

func TestNewFromOptionsParsesLayerSpecs(t *testing.T) {
	ctx := context.Background()
	f, err := NewFromOptions(ctx, map[string]string{"layers": "memory:;memory:"})
	require.NoError(t, err)
	assert.Len(t, f.layers, 2)
}

func TestRegistered(t *testing.T) {
	_, ok := store.Find("overlay")
	assert.True(t, ok)
}
