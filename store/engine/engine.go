// Package engine implements the storage engine: the mount table, routing,
// batching, watch fan-in, and snapshot/restore that sit between the
// store.Storage façade and individual store.Driver backends.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/multistore/multistore/backend/memory"
	"github.com/multistore/multistore/fs/config/configstruct"
	fslog "github.com/multistore/multistore/fs/log"
	"github.com/multistore/multistore/store"
	"github.com/multistore/multistore/store/storepath"
	"github.com/multistore/multistore/store/storeval"
)

// Options configures engine-level behavior not delegated to any single
// driver: bounding snapshot/restore fan-out concurrency, and how often the
// engine sweeps soft (engine-simulated) TTL expiry for drivers that don't
// declare NativeTTL.
type Options struct {
	SnapshotConcurrency int           `config:"snapshot_concurrency" default:"8"`
	SoftTTLSweepInterval time.Duration `config:"soft_ttl_sweep_interval" default:"30s"`
}

type mount struct {
	base    string
	driver  store.Driver
	unwatch store.Unwatch
}

// Engine is the storage engine: it implements store.Storage by routing
// every call to the mount whose base longest-matches the key.
type Engine struct {
	opt Options

	mu     sync.RWMutex
	mounts []*mount

	subMu       sync.Mutex
	subscribers map[int]store.WatchFunc
	nextSubID   int
	watching    bool

	ttlMu    sync.Mutex
	ttlIndex map[string]time.Time

	sweepStop chan struct{}
	sweepDone chan struct{}
}

var _ store.Storage = (*Engine)(nil)

// New constructs an engine rooted at rootDriver (defaulting to a fresh
// in-process memory driver when nil), parsing opts into Options.
func New(rootDriver store.Driver, opts map[string]string) (*Engine, error) {
	var o Options
	if err := configstruct.Set(opts, &o); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if rootDriver == nil {
		m, err := memory.New(nil)
		if err != nil {
			return nil, err
		}
		rootDriver = m
	}
	e := &Engine{
		opt:         o,
		mounts:      []*mount{{base: "", driver: rootDriver}},
		subscribers: map[int]store.WatchFunc{},
		ttlIndex:    map[string]time.Time{},
		sweepStop:   make(chan struct{}),
		sweepDone:   make(chan struct{}),
	}
	go e.sweepLoop()
	return e, nil
}

func (e *Engine) sweepLoop() {
	defer close(e.sweepDone)
	interval := e.opt.SoftTTLSweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.sweepStop:
			return
		case <-ticker.C:
			e.sweepExpired()
		}
	}
}

func (e *Engine) sweepExpired() {
	now := time.Now()
	var expired []string
	e.ttlMu.Lock()
	for k, exp := range e.ttlIndex {
		if now.After(exp) {
			expired = append(expired, k)
		}
	}
	e.ttlMu.Unlock()
	for _, k := range expired {
		e.expire(k)
	}
}

// expire removes an engine-soft-TTL-expired key from its driver and the
// index, swallowing backend errors (this runs off the caller's path).
func (e *Engine) expire(absKey string) {
	e.ttlMu.Lock()
	delete(e.ttlIndex, absKey)
	e.ttlMu.Unlock()

	m, rel := e.route(absKey)
	if r, ok := m.driver.(store.Remover); ok {
		if err := r.Remove(context.Background(), rel, nil); err != nil {
			fslog.Errorf(e, "soft-ttl expiry: failed to remove %q: %v", absKey, err)
		}
	}
}

// checkExpired reports whether key has a recorded soft-TTL expiry that has
// already passed, lazily expiring it if so.
func (e *Engine) checkExpired(absKey string) bool {
	e.ttlMu.Lock()
	exp, ok := e.ttlIndex[absKey]
	e.ttlMu.Unlock()
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		e.expire(absKey)
		return true
	}
	return false
}

func (e *Engine) recordTTL(absKey string, driver store.Driver, opts store.Options) {
	if store.NativeTTL(driver) {
		return
	}
	secs, ok := opts.TTL()
	if !ok || secs <= 0 {
		return
	}
	e.ttlMu.Lock()
	e.ttlIndex[absKey] = time.Now().Add(time.Duration(secs) * time.Second)
	e.ttlMu.Unlock()
}

func (e *Engine) clearTTL(absKey string) {
	e.ttlMu.Lock()
	delete(e.ttlIndex, absKey)
	e.ttlMu.Unlock()
}

func (e *Engine) String() string { return "engine" }

// route returns the mount whose base longest-matches key, and key with that
// base stripped.
func (e *Engine) route(key string) (*mount, string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, m := range e.mounts {
		if storepath.HasPrefix(key, m.base) {
			return m, storepath.Relative(key, m.base)
		}
	}
	// The root mount (base "") always matches, so this is unreachable as
	// long as invariant 1 (exactly one root mount) holds.
	panic("engine: no mount matched key " + key)
}

// routeMany returns every mount that is a descendant of base (contributes
// keys under it) and, if includeAncestors, every mount that is an ancestor
// of base (may hold data reachable through base from above).
func (e *Engine) routeMany(base string, includeAncestors bool) []*mount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*mount
	for _, m := range e.mounts {
		if storepath.HasPrefix(m.base, base) {
			out = append(out, m)
		} else if includeAncestors && storepath.HasPrefix(base, m.base) {
			out = append(out, m)
		}
	}
	return out
}

// Mount adds a new mount point at base, backed by driver. If watching is
// currently active, the new driver's Watch is started immediately.
func (e *Engine) Mount(ctx context.Context, base string, driver store.Driver) error {
	if driver == nil {
		return fmt.Errorf("engine: %w: driver must not be nil", store.ErrMissingConfig)
	}
	norm := normalizeBase(base)
	if norm == "" {
		return fmt.Errorf("engine: %w: cannot mount the root base explicitly", store.ErrMountExists)
	}

	e.mu.Lock()
	for _, m := range e.mounts {
		if m.base == norm {
			e.mu.Unlock()
			return fmt.Errorf("engine: %w: %q", store.ErrMountExists, norm)
		}
	}
	mnt := &mount{base: norm, driver: driver}
	e.mounts = append(e.mounts, mnt)
	sortMounts(e.mounts)
	e.mu.Unlock()

	e.subMu.Lock()
	watching := e.watching
	e.subMu.Unlock()
	if watching {
		e.startWatch(mnt)
	}
	return nil
}

// Unmount removes the mount at base, tearing down its watch subscription if
// one is active. Unmounting the root or an unknown base is rejected/no-op
// respectively.
func (e *Engine) Unmount(ctx context.Context, base string) error {
	norm := normalizeBase(base)
	if norm == "" {
		return fmt.Errorf("engine: %w", store.ErrRootUnmount)
	}

	e.mu.Lock()
	idx := -1
	for i, m := range e.mounts {
		if m.base == norm {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return nil
	}
	mnt := e.mounts[idx]
	e.mounts = append(e.mounts[:idx:idx], e.mounts[idx+1:]...)
	e.mu.Unlock()

	if mnt.unwatch != nil {
		mnt.unwatch()
	}
	return nil
}

func normalizeBase(base string) string {
	norm := storepath.Normalize(base)
	if norm != "" {
		norm += storepath.Separator
	}
	return norm
}

func sortMounts(mounts []*mount) {
	sort.SliceStable(mounts, func(i, j int) bool {
		return len(mounts[i].base) > len(mounts[j].base)
	})
}

// Has reports whether key exists, delegating to its mount's driver.
func (e *Engine) Has(ctx context.Context, key string) (bool, error) {
	key = storepath.Normalize(key)
	if e.checkExpired(key) {
		return false, nil
	}
	m, rel := e.route(key)
	return m.driver.Has(ctx, rel, nil)
}

// Get returns the tolerant-parsed value for key.
func (e *Engine) Get(ctx context.Context, key string) (storeval.Value, bool, error) {
	key = storepath.Normalize(key)
	if e.checkExpired(key) {
		return storeval.Null, false, nil
	}
	m, rel := e.route(key)
	text, found, err := m.driver.Get(ctx, rel, nil)
	if err != nil || !found {
		return storeval.Null, false, err
	}
	return storeval.TolerantParse(text), true, nil
}

// Set stores value at key, preferring the driver's raw path for Bytes-kind
// values so they don't pay for a base64 text envelope when it isn't needed.
func (e *Engine) Set(ctx context.Context, key string, value storeval.Value, opts store.Options) error {
	key = storepath.Normalize(key)
	m, rel := e.route(key)

	var err error
	if value.Kind == storeval.KindBytes {
		if rs, ok := m.driver.(store.RawSetter); ok {
			err = rs.SetRaw(ctx, rel, value.Bytes, opts)
		} else if s, ok := m.driver.(store.Setter); ok {
			err = s.Set(ctx, rel, storeval.EncodeRaw(value.Bytes), opts)
		}
	} else {
		var text string
		text, err = storeval.Stringify(value)
		if err != nil {
			return fmt.Errorf("engine: %w: %v", store.ErrSerialization, err)
		}
		if s, ok := m.driver.(store.Setter); ok {
			err = s.Set(ctx, rel, text, opts)
		}
	}
	if err != nil {
		return err
	}
	e.recordTTL(key, m.driver, opts)
	return nil
}

// GetRaw returns the raw bytes for key, preferring the driver's native raw
// read and falling back to decoding the text envelope.
func (e *Engine) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	key = storepath.Normalize(key)
	if e.checkExpired(key) {
		return nil, false, nil
	}
	m, rel := e.route(key)
	if rg, ok := m.driver.(store.RawGetter); ok {
		return rg.GetRaw(ctx, rel, nil)
	}
	text, found, err := m.driver.Get(ctx, rel, nil)
	if err != nil || !found {
		return nil, found, err
	}
	return storeval.DecodeRaw(text), true, nil
}

// SetRaw writes data at key, preferring the driver's native raw write and
// falling back to the text envelope.
func (e *Engine) SetRaw(ctx context.Context, key string, data []byte, opts store.Options) error {
	key = storepath.Normalize(key)
	m, rel := e.route(key)

	var err error
	if rs, ok := m.driver.(store.RawSetter); ok {
		err = rs.SetRaw(ctx, rel, data, opts)
	} else if s, ok := m.driver.(store.Setter); ok {
		err = s.Set(ctx, rel, storeval.EncodeRaw(data), opts)
	}
	if err != nil {
		return err
	}
	e.recordTTL(key, m.driver, opts)
	return nil
}

// Remove deletes key. A driver that cannot remove silently no-ops.
func (e *Engine) Remove(ctx context.Context, key string, opts store.Options) error {
	key = storepath.Normalize(key)
	e.clearTTL(key)
	m, rel := e.route(key)
	if r, ok := m.driver.(store.Remover); ok {
		return r.Remove(ctx, rel, opts)
	}
	return nil
}

// GetMeta returns metadata for key, or a not-found result if the driver
// doesn't support metadata.
func (e *Engine) GetMeta(ctx context.Context, key string, opts store.Options) (store.Meta, bool, error) {
	key = storepath.Normalize(key)
	if e.checkExpired(key) {
		return store.Meta{}, false, nil
	}
	m, rel := e.route(key)
	mg, ok := m.driver.(store.MetaGetter)
	if !ok {
		return store.Meta{}, false, nil
	}
	return mg.GetMeta(ctx, rel, opts)
}

// ListKeys enumerates every key beneath base across every descendant mount
// and every ancestor mount that contains base, applying depth filtering and excluding reserved metadata keys. A mount
// that fails contributes nothing rather than aborting the whole call.
func (e *Engine) ListKeys(ctx context.Context, base string, opts store.Options) ([]string, error) {
	base = normalizeListBase(base)
	// Ancestors are included here (not just strict descendants) because the
	// mount owning base may itself be shallower than base -- e.g. listing
	// "users:42" when only "users:" is mounted. mountRelBase below resolves
	// each mount's query correctly regardless of which side it's on.
	mounts := e.routeMany(base, true)

	maxDepth := 0
	if md, ok := opts[store.OptMaxDepth]; ok {
		if n, ok := md.(int); ok {
			maxDepth = n
		}
	}

	type result struct {
		keys []string
		err  error
	}
	results := make([]result, len(mounts))
	var wg sync.WaitGroup
	for i, m := range mounts {
		wg.Add(1)
		go func(i int, m *mount) {
			defer wg.Done()
			relBase := mountRelBase(base, m)
			mOpts := store.Options{}
			if maxDepth > 0 && store.SupportsMaxDepth(m.driver) {
				mOpts[store.OptMaxDepth] = maxDepth
			}
			keys, err := m.driver.ListKeys(ctx, relBase, mOpts)
			if err != nil {
				results[i] = result{err: err}
				return
			}
			full := make([]string, 0, len(keys))
			for _, k := range keys {
				full = append(full, storepath.Join(m.base, k))
			}
			results[i] = result{keys: full}
		}(i, m)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	var out []string
	for i, r := range results {
		if r.err != nil {
			fslog.Errorf(e, "listKeys: mount %q failed: %v", mounts[i].base, r.err)
			continue
		}
		for _, k := range r.keys {
			if storepath.IsMeta(k) {
				continue
			}
			if maxDepth > 0 && !storepath.WithinDepth(k, base, maxDepth) {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out, nil
}

// mountRelBase resolves the key to pass to m's driver when operating on
// base. A mount at or beneath base (m.base has base as a prefix, including
// equality) owns its entire keyspace within that subtree, so it is queried
// from its own root. A shallower mount that merely contains base is queried
// with base's remainder relative to it.
func mountRelBase(base string, m *mount) string {
	if storepath.HasPrefix(m.base, base) {
		return ""
	}
	return storepath.Relative(base, m.base)
}

func normalizeListBase(base string) string {
	if base == "" {
		return ""
	}
	norm := storepath.Normalize(base)
	if norm != "" {
		norm += storepath.Separator
	}
	return norm
}

// Clear fans out to every descendant and ancestor mount that supports
// Clearer. Failures are logged, never aborting the fan-out.
func (e *Engine) Clear(ctx context.Context, base string, opts store.Options) error {
	norm := normalizeListBase(base)
	mounts := e.routeMany(norm, true)
	var wg sync.WaitGroup
	for _, m := range mounts {
		c, ok := m.driver.(store.Clearer)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(m *mount, c store.Clearer) {
			defer wg.Done()
			relBase := mountRelBase(norm, m)
			if err := c.Clear(ctx, relBase, opts); err != nil {
				fslog.Errorf(e, "clear: mount %q failed: %v", m.base, err)
			}
		}(m, c)
	}
	wg.Wait()
	return nil
}

// GetMany groups keys by mount and issues one batch call per driver that
// supports BatchGetter, falling back to parallel singletons otherwise.
func (e *Engine) GetMany(ctx context.Context, keys []string) (map[string]storeval.Value, error) {
	groups := map[*mount][]string{}
	relOf := map[string]string{}
	for _, k := range keys {
		k = storepath.Normalize(k)
		m, rel := e.route(k)
		groups[m] = append(groups[m], k)
		relOf[k] = rel
	}

	out := make(map[string]storeval.Value, len(keys))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for m, absKeys := range groups {
		wg.Add(1)
		go func(m *mount, absKeys []string) {
			defer wg.Done()
			if bg, ok := m.driver.(store.BatchGetter); ok {
				rels := make([]string, len(absKeys))
				for i, k := range absKeys {
					rels[i] = relOf[k]
				}
				got, err := bg.GetMany(ctx, rels, nil)
				if err != nil {
					fslog.Errorf(e, "getMany: mount %q failed: %v", m.base, err)
					return
				}
				mu.Lock()
				for i, k := range absKeys {
					if text, ok := got[rels[i]]; ok {
						out[k] = storeval.TolerantParse(text)
					}
				}
				mu.Unlock()
				return
			}
			var innerWg sync.WaitGroup
			for _, k := range absKeys {
				innerWg.Add(1)
				go func(k string) {
					defer innerWg.Done()
					text, found, err := m.driver.Get(ctx, relOf[k], nil)
					if err != nil || !found {
						return
					}
					mu.Lock()
					out[k] = storeval.TolerantParse(text)
					mu.Unlock()
				}(k)
			}
			innerWg.Wait()
		}(m, absKeys)
	}
	wg.Wait()
	return out, nil
}

// SetMany groups items by mount and issues one batch call per driver that
// supports BatchSetter, never issuing both the batch op and per-item Set to
// the same driver in the same call.
func (e *Engine) SetMany(ctx context.Context, items map[string]storeval.Value, opts store.Options) error {
	type pending struct {
		rel  string
		text string
	}
	groups := map[*mount][]pending{}
	for k, v := range items {
		k = storepath.Normalize(k)
		m, rel := e.route(k)
		text, err := storeval.Stringify(v)
		if err != nil {
			if v.Kind == storeval.KindBytes {
				text = storeval.EncodeRaw(v.Bytes)
			} else {
				return fmt.Errorf("engine: %w: %v", store.ErrSerialization, err)
			}
		}
		groups[m] = append(groups[m], pending{rel: rel, text: text})
	}

	var wg sync.WaitGroup
	for m, ps := range groups {
		wg.Add(1)
		go func(m *mount, ps []pending) {
			defer wg.Done()
			if bs, ok := m.driver.(store.BatchSetter); ok {
				batch := make([]store.BatchItem, len(ps))
				for i, p := range ps {
					batch[i] = store.BatchItem{Key: p.rel, Value: p.text}
				}
				if err := bs.SetMany(ctx, batch, opts); err != nil {
					fslog.Errorf(e, "setMany: mount %q failed: %v", m.base, err)
				}
				return
			}
			s, ok := m.driver.(store.Setter)
			if !ok {
				return
			}
			var innerWg sync.WaitGroup
			for _, p := range ps {
				innerWg.Add(1)
				go func(p pending) {
					defer innerWg.Done()
					if err := s.Set(ctx, p.rel, p.text, opts); err != nil {
						fslog.Errorf(e, "setMany: mount %q key %q failed: %v", m.base, p.rel, err)
					}
				}(p)
			}
			innerWg.Wait()
		}(m, ps)
	}
	wg.Wait()
	return nil
}

// Watch registers cb to receive every (event, absolute key) change across
// all mounted drivers. On the first subscriber, the engine starts a watch
// on every mount that supports Watcher; on the last unsubscribe, it tears
// them all down.
func (e *Engine) Watch(cb store.WatchFunc) (store.Unwatch, error) {
	e.subMu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = cb
	first := !e.watching
	e.watching = true
	e.subMu.Unlock()

	if first {
		e.mu.RLock()
		mounts := append([]*mount(nil), e.mounts...)
		e.mu.RUnlock()
		for _, m := range mounts {
			e.startWatch(m)
		}
	}

	return func() { e.unwatchSubscriber(id) }, nil
}

func (e *Engine) startWatch(m *mount) {
	w, ok := m.driver.(store.Watcher)
	if !ok {
		return
	}
	unwatch, err := w.Watch(func(kind store.EventKind, relKey string) {
		absKey := storepath.Join(m.base, relKey)
		e.subMu.Lock()
		subs := make([]store.WatchFunc, 0, len(e.subscribers))
		for _, cb := range e.subscribers {
			subs = append(subs, cb)
		}
		e.subMu.Unlock()
		for _, cb := range subs {
			cb(kind, absKey)
		}
	})
	if err != nil {
		fslog.Errorf(e, "watch: mount %q failed to start: %v", m.base, err)
		return
	}
	e.mu.Lock()
	m.unwatch = unwatch
	e.mu.Unlock()
}

func (e *Engine) unwatchSubscriber(id int) {
	e.subMu.Lock()
	delete(e.subscribers, id)
	last := len(e.subscribers) == 0
	if last {
		e.watching = false
	}
	e.subMu.Unlock()

	if !last {
		return
	}
	e.mu.Lock()
	mounts := append([]*mount(nil), e.mounts...)
	unwatches := make([]store.Unwatch, len(mounts))
	for i, m := range mounts {
		unwatches[i] = m.unwatch
		m.unwatch = nil
	}
	e.mu.Unlock()
	for _, uw := range unwatches {
		if uw != nil {
			uw()
		}
	}
}

// Snapshot enumerates every key beneath base and fetches each via the raw
// path, returning a map from base-relative key to its text-envelope-encoded
// value. Fan-out is bounded by Options.SnapshotConcurrency.
func (e *Engine) Snapshot(ctx context.Context, base string) (map[string]string, error) {
	keys, err := e.ListKeys(ctx, base, nil)
	if err != nil {
		return nil, err
	}
	sem := e.semaphore()
	out := make(map[string]string, len(keys))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			data, found, err := e.GetRaw(ctx, k)
			if err != nil || !found {
				return
			}
			rel := storepath.Relative(k, normalizeListBase(base))
			mu.Lock()
			out[rel] = storeval.EncodeRaw(data)
			mu.Unlock()
		}(k)
	}
	wg.Wait()
	return out, nil
}

// RestoreSnapshot writes every entry of snapshot (base-relative key to
// text-envelope-encoded value, as produced by Snapshot) back under base.
// Fan-out is bounded by Options.SnapshotConcurrency.
func (e *Engine) RestoreSnapshot(ctx context.Context, base string, snapshot map[string]string) error {
	sem := e.semaphore()
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for rel, text := range snapshot {
		wg.Add(1)
		go func(rel, text string) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			key := storepath.Join(normalizeListBase(base), rel)
			data := storeval.DecodeRaw(text)
			if err := e.SetRaw(ctx, key, data, nil); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(rel, text)
	}
	wg.Wait()
	return firstErr
}

func (e *Engine) semaphore() chan struct{} {
	if e.opt.SnapshotConcurrency <= 0 {
		return nil
	}
	return make(chan struct{}, e.opt.SnapshotConcurrency)
}

// Dispose stops all watch subscriptions, disposes every mounted driver
// (best-effort, one failure does not block the others), stops the soft-TTL
// sweep, and resets the engine to a fresh single-root state so it can be
// reused.
func (e *Engine) Dispose(ctx context.Context) error {
	e.subMu.Lock()
	e.subscribers = map[int]store.WatchFunc{}
	e.watching = false
	e.subMu.Unlock()

	e.mu.Lock()
	mounts := e.mounts
	e.mu.Unlock()

	for _, m := range mounts {
		if m.unwatch != nil {
			m.unwatch()
		}
	}
	for _, m := range mounts {
		if d, ok := m.driver.(store.Disposer); ok {
			if err := d.Dispose(ctx); err != nil {
				fslog.Errorf(e, "dispose: mount %q failed: %v", m.base, err)
			}
		}
	}

	select {
	case <-e.sweepStop:
	default:
		close(e.sweepStop)
	}
	<-e.sweepDone

	root, err := memory.New(nil)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.mounts = []*mount{{base: "", driver: root}}
	e.mu.Unlock()
	e.ttlMu.Lock()
	e.ttlIndex = map[string]time.Time{}
	e.ttlMu.Unlock()

	e.sweepStop = make(chan struct{})
	e.sweepDone = make(chan struct{})
	go e.sweepLoop()
	return nil
}
