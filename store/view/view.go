// Package view implements a namespaced façade over a store.Storage: every
// key-bearing call is rewritten to live under a fixed prefix, so a caller
// holding a View cannot see or touch anything outside its slice of the
// keyspace. Grounded on the teacher's convention of small wrapper types that
// satisfy the same interface they decorate (e.g. fs.Fs wrappers in
// backend/crypt, backend/chunker) rather than a bespoke namespacing layer.
package view

import (
	"context"

	"github.com/multistore/multistore/store"
	"github.com/multistore/multistore/store/storepath"
	"github.com/multistore/multistore/store/storeval"
)

// View wraps a store.Storage, confining every operation to keys under
// prefix. An empty prefix makes View a transparent passthrough.
type View struct {
	storage store.Storage
	prefix  string
}

var _ store.Storage = (*View)(nil)

// New builds a View rooted at prefix within storage. prefix is normalized;
// an empty prefix (after normalization) leaves keys unrewritten.
func New(storage store.Storage, prefix string) *View {
	return &View{storage: storage, prefix: storepath.Normalize(prefix)}
}

// in rewrites a key supplied by the view's caller into the underlying
// storage's absolute keyspace.
func (v *View) in(key string) string {
	if v.prefix == "" {
		return key
	}
	return storepath.Join(v.prefix, key)
}

// out rewrites an absolute key returned by the underlying storage back into
// the view's keyspace, stripping the prefix.
func (v *View) out(key string) string {
	if v.prefix == "" {
		return key
	}
	return storepath.Relative(key, v.prefix)
}

func (v *View) Get(ctx context.Context, key string) (storeval.Value, bool, error) {
	return v.storage.Get(ctx, v.in(key))
}

func (v *View) Set(ctx context.Context, key string, value storeval.Value, opts store.Options) error {
	return v.storage.Set(ctx, v.in(key), value, opts)
}

func (v *View) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	return v.storage.GetRaw(ctx, v.in(key))
}

func (v *View) SetRaw(ctx context.Context, key string, data []byte, opts store.Options) error {
	return v.storage.SetRaw(ctx, v.in(key), data, opts)
}

func (v *View) Remove(ctx context.Context, key string, opts store.Options) error {
	return v.storage.Remove(ctx, v.in(key), opts)
}

func (v *View) Has(ctx context.Context, key string) (bool, error) {
	return v.storage.Has(ctx, v.in(key))
}

func (v *View) GetMeta(ctx context.Context, key string, opts store.Options) (store.Meta, bool, error) {
	return v.storage.GetMeta(ctx, v.in(key), opts)
}

// ListKeys lists keys under base within the view's prefix, returning them
// prefix-stripped. base == "" lists the view's entire keyspace.
func (v *View) ListKeys(ctx context.Context, base string, opts store.Options) ([]string, error) {
	keys, err := v.storage.ListKeys(ctx, v.in(base), opts)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = v.out(k)
	}
	return out, nil
}

func (v *View) Clear(ctx context.Context, base string, opts store.Options) error {
	return v.storage.Clear(ctx, v.in(base), opts)
}

func (v *View) GetMany(ctx context.Context, keys []string) (map[string]storeval.Value, error) {
	absKeys := make([]string, len(keys))
	for i, k := range keys {
		absKeys[i] = v.in(k)
	}
	res, err := v.storage.GetMany(ctx, absKeys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]storeval.Value, len(res))
	for k, val := range res {
		out[v.out(k)] = val
	}
	return out, nil
}

func (v *View) SetMany(ctx context.Context, items map[string]storeval.Value, opts store.Options) error {
	absItems := make(map[string]storeval.Value, len(items))
	for k, val := range items {
		absItems[v.in(k)] = val
	}
	return v.storage.SetMany(ctx, absItems, opts)
}

// Watch subscribes to the underlying storage's watch surface, filtering out
// events for keys outside the view's prefix and rewriting the rest into the
// view's keyspace before invoking cb.
func (v *View) Watch(cb store.WatchFunc) (store.Unwatch, error) {
	return v.storage.Watch(func(kind store.EventKind, key string) {
		if v.prefix != "" && !storepath.HasPrefix(key, v.prefix) {
			return
		}
		cb(kind, v.out(key))
	})
}
