package httpremote

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multistore/multistore/serve/storehttp"
	"github.com/multistore/multistore/store"
	"github.com/multistore/multistore/store/storeval"
)

// fakeStorage is a minimal in-memory store.Storage shim modelled on the one
// in serve/storehttp's own tests (unlike that one, its ListKeys and Clear
// ignore base), so the client driver can be exercised against a real HTTP
// round trip without the storage engine.
type fakeStorage struct {
	data map[string]storeval.Value
}

func newFakeStorage() *fakeStorage { return &fakeStorage{data: map[string]storeval.Value{}} }

func (s *fakeStorage) Get(ctx context.Context, key string) (storeval.Value, bool, error) {
	v, ok := s.data[key]
	return v, ok, nil
}
func (s *fakeStorage) Set(ctx context.Context, key string, value storeval.Value, opts store.Options) error {
	s.data[key] = value
	return nil
}
func (s *fakeStorage) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return v.Bytes, true, nil
}
func (s *fakeStorage) SetRaw(ctx context.Context, key string, data []byte, opts store.Options) error {
	s.data[key] = storeval.Bytes(data)
	return nil
}
func (s *fakeStorage) Remove(ctx context.Context, key string, opts store.Options) error {
	delete(s.data, key)
	return nil
}
func (s *fakeStorage) Has(ctx context.Context, key string) (bool, error) {
	_, ok := s.data[key]
	return ok, nil
}
func (s *fakeStorage) GetMeta(ctx context.Context, key string, opts store.Options) (store.Meta, bool, error) {
	_, ok := s.data[key]
	if !ok {
		return store.Meta{}, false, nil
	}
	return store.Meta{}, true, nil
}
func (s *fakeStorage) ListKeys(ctx context.Context, base string, opts store.Options) ([]string, error) {
	var keys []string
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}
func (s *fakeStorage) Clear(ctx context.Context, base string, opts store.Options) error {
	s.data = map[string]storeval.Value{}
	return nil
}
func (s *fakeStorage) GetMany(ctx context.Context, keys []string) (map[string]storeval.Value, error) {
	return nil, nil
}
func (s *fakeStorage) SetMany(ctx context.Context, items map[string]storeval.Value, opts store.Options) error {
	return nil
}
func (s *fakeStorage) Watch(cb store.WatchFunc) (store.Unwatch, error) {
	return func() {}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeStorage) {
	t.Helper()
	fs := newFakeStorage()
	h := storehttp.NewHandler(storehttp.Options{Storage: fs})
	return httptest.NewServer(h), fs
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv, _ := newTestServer(t)
	defer srv.Close()

	f, err := New(map[string]string{"url": srv.URL})
	require.NoError(t, err)

	require.NoError(t, f.Set(ctx, "a:b", `"hello"`, nil))
	got, found, err := f.Get(ctx, "a:b", nil)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `"hello"`, got)
}

func TestGetRawRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv, _ := newTestServer(t)
	defer srv.Close()

	f, err := New(map[string]string{"url": srv.URL})
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
	srv, _ := newTestServer(t)
	defer srv.Close()

	f, err := New(map[string]string{"url": srv.URL})
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

func TestGetMissingNotFound(t *testing.T) {
	ctx := context.Background()
	srv, _ := newTestServer(t)
	defer srv.Close()

	f, err := New(map[string]string{"url": srv.URL})
	require.NoError(t, err)

	_, found, err := f.Get(ctx, "nope", nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMissingURL(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, store.ErrMissingConfig)
}

func TestRegistered(t *testing.T) {
	_, ok := store.Find("http")
	assert.True(t, ok)
}
