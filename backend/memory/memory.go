// Package memory provides an in-process, concurrency-safe key-value driver:
// the storage engine's reference backend, and the default root driver for a
// freshly created engine.
package memory

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/multistore/multistore/fs/config/configstruct"
	"github.com/multistore/multistore/store"
)

func init() {
	store.Register(&store.RegInfo{
		Name:        "memory",
		Description: "In memory key-value storage.",
		NewDriver: func(ctx context.Context, opts map[string]string) (store.Driver, error) {
			return New(opts)
		},
	})
}

// Options configures a memory driver.
type Options struct {
	// CleanupInterval controls how often expired entries are purged in the
	// background; zero disables the background sweep (expired entries are
	// still hidden from Get/Has/ListKeys, just not evicted proactively).
	CleanupInterval time.Duration `config:"cleanup_interval" default:"1m"`
}

// Fs is the in-memory driver. The name mirrors the teacher's backend
// convention of calling the concrete type Fs even where, as here, it holds
// no filesystem resources. Get and GetRaw both read from the same
// gocache.Cache entry -- whichever of Set/SetRaw wrote it last -- since the
// spec requires get/getRaw to "return the same object" rather than keeping
// the text and raw channels disjoint.
type Fs struct {
	opt   Options
	cache *gocache.Cache // string (text) or []byte (raw), addressed by relative key
}

var _ store.Driver = (*Fs)(nil)
var _ store.RawGetter = (*Fs)(nil)
var _ store.Setter = (*Fs)(nil)
var _ store.RawSetter = (*Fs)(nil)
var _ store.Remover = (*Fs)(nil)
var _ store.Clearer = (*Fs)(nil)
var _ store.CapabilityReporter = (*Fs)(nil)

// New constructs a memory driver from an option map.
func New(opts map[string]string) (*Fs, error) {
	var o Options
	if err := configstruct.Set(opts, &o); err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}
	return &Fs{
		opt:   o,
		cache: gocache.New(gocache.NoExpiration, o.CleanupInterval),
	}, nil
}

// SupportsMaxDepth reports false: the memory driver lists every key flat and
// relies on the engine to filter by depth.
func (f *Fs) SupportsMaxDepth() bool { return false }

// NativeTTL reports false: go-cache gives the memory driver cheap soft
// expiry, but the engine's own sweep remains the authority that keeps TTL
// behavior consistent across driver kinds.
func (f *Fs) NativeTTL() bool { return false }

func (f *Fs) Has(ctx context.Context, key string, opts store.Options) (bool, error) {
	_, found := f.cache.Get(key)
	return found, nil
}

func (f *Fs) Get(ctx context.Context, key string, opts store.Options) (string, bool, error) {
	v, found := f.cache.Get(key)
	if !found {
		return "", false, nil
	}
	switch x := v.(type) {
	case string:
		return x, true, nil
	case []byte:
		return string(x), true, nil
	}
	return "", false, nil
}

func (f *Fs) GetRaw(ctx context.Context, key string, opts store.Options) ([]byte, bool, error) {
	v, found := f.cache.Get(key)
	if !found {
		return nil, false, nil
	}
	switch x := v.(type) {
	case []byte:
		out := make([]byte, len(x))
		copy(out, x)
		return out, true, nil
	case string:
		return []byte(x), true, nil
	}
	return nil, false, nil
}

func (f *Fs) Set(ctx context.Context, key string, value string, opts store.Options) error {
	f.cache.Set(key, value, ttlDuration(opts))
	return nil
}

func (f *Fs) SetRaw(ctx context.Context, key string, data []byte, opts store.Options) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	f.cache.Set(key, cp, ttlDuration(opts))
	return nil
}

func (f *Fs) Remove(ctx context.Context, key string, opts store.Options) error {
	f.cache.Delete(key)
	return nil
}

func (f *Fs) ListKeys(ctx context.Context, base string, opts store.Options) ([]string, error) {
	items := f.cache.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		if base != "" && !hasPrefix(k, base) {
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (f *Fs) Clear(ctx context.Context, base string, opts store.Options) error {
	if base == "" {
		f.cache.Flush()
		return nil
	}
	for k := range f.cache.Items() {
		if hasPrefix(k, base) {
			f.cache.Delete(k)
		}
	}
	return nil
}

func hasPrefix(key, base string) bool {
	if len(key) < len(base) {
		return false
	}
	return key[:len(base)] == base
}

func ttlDuration(opts store.Options) time.Duration {
	if secs, ok := opts.TTL(); ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return gocache.NoExpiration
}
