// Package local implements a filesystem-backed key-value driver: keys map
// to paths beneath a base directory, colon separators becoming path
// separators. It is the representative "real I/O" driver the storage
// engine is built and tested against, alongside backend/memory.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/multistore/multistore/fs/config/configstruct"
	fslog "github.com/multistore/multistore/fs/log"
	"github.com/multistore/multistore/store"
	"github.com/multistore/multistore/store/ignore"
	"github.com/multistore/multistore/store/storepath"
)

func init() {
	store.Register(&store.RegInfo{
		Name:        "local",
		Description: "Filesystem storage rooted at a base directory.",
		NewDriver: func(ctx context.Context, opts map[string]string) (store.Driver, error) {
			return New(opts)
		},
	})
}

// Options configures the filesystem driver.
type Options struct {
	BaseDir  string `config:"base_dir"`
	ReadOnly bool   `config:"read_only"`
	NoClear  bool   `config:"no_clear"`
	// Ignore is a comma-separated list of glob patterns, in addition to the
	// built-in defaults ("**/node_modules/**", "**/.git/**").
	Ignore string `config:"ignore"`
}

// Fs is the filesystem driver.
type Fs struct {
	opt     Options
	matcher *ignore.Matcher

	watchMu  sync.Mutex
	watchers []*fsWatch
}

var _ store.Driver = (*Fs)(nil)
var _ store.RawGetter = (*Fs)(nil)
var _ store.Setter = (*Fs)(nil)
var _ store.RawSetter = (*Fs)(nil)
var _ store.Remover = (*Fs)(nil)
var _ store.MetaGetter = (*Fs)(nil)
var _ store.Clearer = (*Fs)(nil)
var _ store.Watcher = (*Fs)(nil)
var _ store.Disposer = (*Fs)(nil)
var _ store.CapabilityReporter = (*Fs)(nil)

// New constructs a filesystem driver from an option map. BaseDir is
// required; its absence is a MissingConfig error surfaced at construction
// time, per spec.
func New(opts map[string]string) (*Fs, error) {
	var o Options
	if err := configstruct.Set(opts, &o); err != nil {
		return nil, fmt.Errorf("local: %w", err)
	}
	if o.BaseDir == "" {
		return nil, fmt.Errorf("local: %w: base_dir is required", store.ErrMissingConfig)
	}
	patterns := append([]string{}, ignore.DefaultPatterns...)
	if o.Ignore != "" {
		for _, p := range strings.Split(o.Ignore, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
	}
	return &Fs{
		opt:     o,
		matcher: ignore.New(patterns),
	}, nil
}

func (f *Fs) String() string { return "local:" + f.opt.BaseDir }

func (f *Fs) SupportsMaxDepth() bool { return true }
func (f *Fs) NativeTTL() bool        { return false }

// pathFor maps a mount-relative key to an absolute filesystem path beneath
// BaseDir, rejecting traversal sequences and verifying the resolved path
// still lives under BaseDir.
func (f *Fs) pathFor(key string) (string, error) {
	if key != "" && !storepath.IsValid(key) {
		return "", fmt.Errorf("local: %w: %q", store.ErrInvalidKey, key)
	}
	rel := strings.ReplaceAll(key, storepath.Separator, string(filepath.Separator))
	full := filepath.Join(f.opt.BaseDir, rel)

	base, err := filepath.Abs(f.opt.BaseDir)
	if err != nil {
		return "", fmt.Errorf("local: %w: %v", store.ErrBackendFailure, err)
	}
	full, err = filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("local: %w: %v", store.ErrBackendFailure, err)
	}
	if full != base && !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", fmt.Errorf("local: %w: %q escapes base directory", store.ErrInvalidKey, key)
	}
	return full, nil
}

func (f *Fs) Has(ctx context.Context, key string, opts store.Options) (bool, error) {
	p, err := f.pathFor(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("local: %w: %v", store.ErrBackendFailure, err)
	}
	return true, nil
}

func (f *Fs) Get(ctx context.Context, key string, opts store.Options) (string, bool, error) {
	p, err := f.pathFor(key)
	if err != nil {
		return "", false, err
	}
	b, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("local: %w: %v", store.ErrBackendFailure, err)
	}
	return string(b), true, nil
}

func (f *Fs) GetRaw(ctx context.Context, key string, opts store.Options) ([]byte, bool, error) {
	p, err := f.pathFor(key)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("local: %w: %v", store.ErrBackendFailure, err)
	}
	return b, true, nil
}

func (f *Fs) Set(ctx context.Context, key string, value string, opts store.Options) error {
	return f.writeAtomic(key, []byte(value))
}

func (f *Fs) SetRaw(ctx context.Context, key string, data []byte, opts store.Options) error {
	return f.writeAtomic(key, data)
}

// writeAtomic writes data to a temp sibling file then renames it into
// place, so a concurrent reader never observes a partial write. It is a
// silent no-op in read-only mode.
func (f *Fs) writeAtomic(key string, data []byte) error {
	if f.opt.ReadOnly {
		return nil
	}
	p, err := f.pathFor(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return fmt.Errorf("local: %w: %v", store.ErrBackendFailure, err)
	}
	tmp, err := os.CreateTemp(dir, ".multistore-*.tmp")
	if err != nil {
		return fmt.Errorf("local: %w: %v", store.ErrBackendFailure, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("local: %w: %v", store.ErrBackendFailure, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("local: %w: %v", store.ErrBackendFailure, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("local: %w: %v", store.ErrBackendFailure, err)
	}
	return nil
}

func (f *Fs) Remove(ctx context.Context, key string, opts store.Options) error {
	if f.opt.ReadOnly {
		return nil
	}
	p, err := f.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("local: %w: %v", store.ErrBackendFailure, err)
	}
	return nil
}

func (f *Fs) GetMeta(ctx context.Context, key string, opts store.Options) (store.Meta, bool, error) {
	p, err := f.pathFor(key)
	if err != nil {
		return nil, false, err
	}
	fi, err := os.Stat(p)
	if os.IsNotExist(err) {
		return store.Meta{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("local: %w: %v", store.ErrBackendFailure, err)
	}
	meta := store.Meta{
		store.MetaMtime: fi.ModTime(),
		store.MetaSize:  fi.Size(),
	}
	if at, ok := accessTime(fi); ok {
		meta[store.MetaAtime] = at
	}
	if bt, ok := birthTime(fi); ok {
		meta[store.MetaBirthtime] = bt
		meta[store.MetaCtime] = bt
	} else {
		meta[store.MetaCtime] = fi.ModTime()
	}
	return meta, true, nil
}

func (f *Fs) Clear(ctx context.Context, base string, opts store.Options) error {
	if f.opt.ReadOnly || f.opt.NoClear {
		return nil
	}
	p, err := f.pathFor(base)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(p)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("local: %w: %v", store.ErrBackendFailure, err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(p, e.Name())); err != nil {
			fslog.Errorf(f, "clear: failed to remove %s: %v", e.Name(), err)
		}
	}
	return nil
}

func (f *Fs) ListKeys(ctx context.Context, base string, opts store.Options) ([]string, error) {
	root, err := f.pathFor(base)
	if err != nil {
		return nil, err
	}
	maxDepth := 0
	if md, ok := opts[store.OptMaxDepth]; ok {
		if n, ok := md.(int); ok {
			maxDepth = n
		}
	}

	var keys []string
	err = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		slashRel := filepath.ToSlash(rel)
		if f.matcher.Match(slashRel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		key := storepath.FromSlashes(slashRel)
		if storepath.IsMeta(key) {
			return nil
		}
		if d.IsDir() {
			if maxDepth > 0 && storepath.Depth(key, "") >= maxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if maxDepth > 0 && !storepath.WithinDepth(key, "", maxDepth) {
			return nil
		}
		full := storepath.Join(base, key)
		keys = append(keys, full)
		return nil
	})
	if os.IsNotExist(err) {
		return keys, nil
	}
	if err != nil {
		return keys, fmt.Errorf("local: %w: %v", store.ErrBackendFailure, err)
	}
	return keys, nil
}

func (f *Fs) Dispose(ctx context.Context) error {
	f.watchMu.Lock()
	defer f.watchMu.Unlock()
	for _, w := range f.watchers {
		w.close()
	}
	f.watchers = nil
	return nil
}
