package store

import (
	"context"

	"github.com/multistore/multistore/store/storeval"
)

// Storage is the façade every caller programs against: the storage engine
// implements it directly, and the prefixed view wraps one instance of it.
// Keys passed to Storage methods are absolute (un-rooted at any mount), the
// opposite of the mount-relative keys a Driver sees.
type Storage interface {
	Get(ctx context.Context, key string) (storeval.Value, bool, error)
	Set(ctx context.Context, key string, value storeval.Value, opts Options) error
	GetRaw(ctx context.Context, key string) ([]byte, bool, error)
	SetRaw(ctx context.Context, key string, data []byte, opts Options) error
	Remove(ctx context.Context, key string, opts Options) error
	Has(ctx context.Context, key string) (bool, error)
	GetMeta(ctx context.Context, key string, opts Options) (Meta, bool, error)
	ListKeys(ctx context.Context, base string, opts Options) ([]string, error)
	Clear(ctx context.Context, base string, opts Options) error
	GetMany(ctx context.Context, keys []string) (map[string]storeval.Value, error)
	SetMany(ctx context.Context, items map[string]storeval.Value, opts Options) error
	Watch(cb WatchFunc) (Unwatch, error)
}
