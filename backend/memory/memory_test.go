package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multistore/multistore/store"
)

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	f, err := New(nil)
	require.NoError(t, err)

	require.NoError(t, f.Set(ctx, "a:b", `"hello"`, nil))
	got, found, err := f.Get(ctx, "a:b", nil)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `"hello"`, got)
}

func TestGetRawRoundTrip(t *testing.T) {
	ctx := context.Background()
	f, err := New(nil)
	require.NoError(t, err)

	payload := []byte{1, 2, 3, 0, 255}
	require.NoError(t, f.SetRaw(ctx, "blob", payload, nil))
	got, found, err := f.GetRaw(ctx, "blob", nil)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload, got)
}

func TestHasAndRemove(t *testing.T) {
	ctx := context.Background()
	f, err := New(nil)
	require.NoError(t, err)

	ok, err := f.Has(ctx, "x", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.Set(ctx, "x", "1", nil))
	ok, err = f.Has(ctx, "x", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.Remove(ctx, "x", nil))
	ok, err = f.Has(ctx, "x", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListKeys(t *testing.T) {
	ctx := context.Background()
	f, err := New(nil)
	require.NoError(t, err)

	require.NoError(t, f.Set(ctx, "a", "1", nil))
	require.NoError(t, f.Set(ctx, "b", "2", nil))
	require.NoError(t, f.SetRaw(ctx, "c", []byte("x"), nil))

	keys, err := f.ListKeys(ctx, "", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, keys)
}

func TestListKeysFiltersByBase(t *testing.T) {
	ctx := context.Background()
	f, err := New(nil)
	require.NoError(t, err)

	require.NoError(t, f.Set(ctx, "users:1", "1", nil))
	require.NoError(t, f.Set(ctx, "users:2", "2", nil))
	require.NoError(t, f.Set(ctx, "other", "3", nil))

	keys, err := f.ListKeys(ctx, "users:", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"users:1", "users:2"}, keys)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	f, err := New(nil)
	require.NoError(t, err)

	require.NoError(t, f.Set(ctx, "a:1", "1", nil))
	require.NoError(t, f.Set(ctx, "a:2", "2", nil))
	require.NoError(t, f.Set(ctx, "b:1", "3", nil))

	require.NoError(t, f.Clear(ctx, "a:", nil))
	keys, err := f.ListKeys(ctx, "", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b:1"}, keys)
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	f, err := New(nil)
	require.NoError(t, err)

	require.NoError(t, f.Set(ctx, "short", "v", store.Options{store.OptTTL: 1}))
	_, found, err := f.Get(ctx, "short", nil)
	require.NoError(t, err)
	assert.True(t, found)

	time.Sleep(1100 * time.Millisecond)
	_, found, err = f.Get(ctx, "short", nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCapabilityFlags(t *testing.T) {
	f, err := New(nil)
	require.NoError(t, err)
	assert.False(t, f.SupportsMaxDepth())
	assert.False(t, f.NativeTTL())
}

func TestRegistered(t *testing.T) {
	_, ok := store.Find("memory")
	assert.True(t, ok)
}
