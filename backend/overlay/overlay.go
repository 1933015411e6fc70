// Package overlay implements a layered composite driver: an ordered stack
// of other drivers with read-through, top-write, and tombstone-delete
// semantics, the way the teacher's backend/union composes upstream remotes
// -- but with a single fixed policy instead of union's pluggable
// ACTION/CREATE/SEARCH policy machinery, since this driver only ever needs
// "first layer wins, writes go to the top".
package overlay

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/multistore/multistore/fs/config/configstruct"
	fslog "github.com/multistore/multistore/fs/log"
	"github.com/multistore/multistore/store"
)

func init() {
	store.Register(&store.RegInfo{
		Name:        "overlay",
		Description: "Layered composition of other drivers with tombstone deletes.",
		NewDriver: func(ctx context.Context, opts map[string]string) (store.Driver, error) {
			return NewFromOptions(ctx, opts)
		},
	})
}

// Tombstone is the reserved sentinel value written to layer 0 by Remove to
// mask any value a lower layer holds for the same key. It is chosen to be
// exceedingly unlikely to collide with real data and must round-trip
// through any underlying driver's text channel, so it is plain text.
const Tombstone = "\x00__OVERLAY_TOMBSTONE__\x00"

// Options configures an overlay constructed through the driver registry.
// Layers is a semicolon-separated list of layer specs, each of the form
// "driverName:key1=val1,key2=val2", ordered top-first -- mirroring the way
// the teacher's union backend takes a space-separated "upstreams" list of
// remote specs rather than pre-built Fs values.
type Options struct {
	Layers string `config:"layers"`
}

// Fs is the overlay driver: layers[0] is the top.
type Fs struct {
	layers []store.Driver
}

var _ store.Driver = (*Fs)(nil)
var _ store.Setter = (*Fs)(nil)
var _ store.Remover = (*Fs)(nil)
var _ store.Disposer = (*Fs)(nil)
var _ store.CapabilityReporter = (*Fs)(nil)

// New builds an overlay directly from already-constructed layer drivers,
// ordered top-first. This is the constructor the storage engine uses when
// wiring mounts programmatically.
func New(layers []store.Driver) (*Fs, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("overlay: %w: at least one layer is required", store.ErrMissingConfig)
	}
	return &Fs{layers: layers}, nil
}

// NewFromOptions builds an overlay from a registry option map, parsing the
// "layers" spec and constructing each named sub-driver in turn.
func NewFromOptions(ctx context.Context, opts map[string]string) (*Fs, error) {
	var o Options
	if err := configstruct.Set(opts, &o); err != nil {
		return nil, fmt.Errorf("overlay: %w", err)
	}
	if o.Layers == "" {
		return nil, fmt.Errorf("overlay: %w: layers is required", store.ErrMissingConfig)
	}
	specs := strings.Split(o.Layers, ";")
	layers := make([]store.Driver, 0, len(specs))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		d, err := parseLayer(ctx, spec)
		if err != nil {
			return nil, err
		}
		layers = append(layers, d)
	}
	return New(layers)
}

func parseLayer(ctx context.Context, spec string) (store.Driver, error) {
	name, rest, _ := strings.Cut(spec, ":")
	name = strings.TrimSpace(name)
	layerOpts := map[string]string{}
	if rest != "" {
		for _, pair := range strings.Split(rest, ",") {
			k, v, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("overlay: %w: malformed layer option %q", store.ErrMissingConfig, pair)
			}
			layerOpts[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return store.New(ctx, name, layerOpts)
}

func (f *Fs) String() string { return fmt.Sprintf("overlay(%d layers)", len(f.layers)) }

func (f *Fs) SupportsMaxDepth() bool { return false }
func (f *Fs) NativeTTL() bool        { return false }

// Has walks layers in order; the top layer's tombstone masks the key
// entirely, a lower layer's tombstone (left by a prior overlay instance
// sharing that layer) is never special-cased, matching the spec's "only at
// the top" wording.
func (f *Fs) Has(ctx context.Context, key string, opts store.Options) (bool, error) {
	for i, layer := range f.layers {
		ok, err := layer.Has(ctx, key, opts)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		if i == 0 {
			v, found, err := layer.Get(ctx, key, opts)
			if err != nil {
				return false, err
			}
			if found && v == Tombstone {
				return false, nil
			}
		}
		return true, nil
	}
	return false, nil
}

func (f *Fs) Get(ctx context.Context, key string, opts store.Options) (string, bool, error) {
	for _, layer := range f.layers {
		v, found, err := layer.Get(ctx, key, opts)
		if err != nil {
			return "", false, err
		}
		if !found {
			continue
		}
		if v == Tombstone {
			return "", false, nil
		}
		return v, true, nil
	}
	return "", false, nil
}

// Set writes to layer 0 only. Writing the tombstone sentinel itself is
// rejected, so a caller can never forge a delete through Set.
func (f *Fs) Set(ctx context.Context, key string, value string, opts store.Options) error {
	if value == Tombstone {
		return fmt.Errorf("overlay: %w: value collides with the reserved tombstone sentinel", store.ErrInvalidKey)
	}
	top, ok := f.layers[0].(store.Setter)
	if !ok {
		return fmt.Errorf("overlay: %w: top layer does not support Set", store.ErrBackendFailure)
	}
	return top.Set(ctx, key, value, opts)
}

// Remove writes the tombstone sentinel to layer 0, masking any lower-layer
// value without touching it.
func (f *Fs) Remove(ctx context.Context, key string, opts store.Options) error {
	top, ok := f.layers[0].(store.Setter)
	if !ok {
		return fmt.Errorf("overlay: %w: top layer does not support Set", store.ErrBackendFailure)
	}
	return top.Set(ctx, key, Tombstone, opts)
}

// ListKeys concurrently lists every layer, unions and dedupes the results,
// then drops any key whose layer-0 value is the tombstone.
func (f *Fs) ListKeys(ctx context.Context, base string, opts store.Options) ([]string, error) {
	type result struct {
		keys []string
		err  error
	}
	results := make([]result, len(f.layers))
	var wg sync.WaitGroup
	for i, layer := range f.layers {
		wg.Add(1)
		go func(i int, layer store.Driver) {
			defer wg.Done()
			keys, err := layer.ListKeys(ctx, base, opts)
			results[i] = result{keys: keys, err: err}
		}(i, layer)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	var union []string
	for i, r := range results {
		if r.err != nil {
			fslog.Errorf(f, "listKeys: layer %d failed: %v", i, r.err)
			continue
		}
		for _, k := range r.keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			union = append(union, k)
		}
	}

	out := make([]string, 0, len(union))
	for _, k := range union {
		v, found, err := f.layers[0].Get(ctx, k, opts)
		if err == nil && found && v == Tombstone {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

// Dispose best-effort disposes of every layer; one failure does not block
// the others.
func (f *Fs) Dispose(ctx context.Context) error {
	var firstErr error
	for i, layer := range f.layers {
		d, ok := layer.(store.Disposer)
		if !ok {
			continue
		}
		if err := d.Dispose(ctx); err != nil {
			fslog.Errorf(f, "dispose: layer %d failed: %v", i, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
