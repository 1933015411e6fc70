package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// NewDriverFunc constructs a Driver from an option map, mirroring
// the teacher's fs.RegInfo.NewFs constructor signature.
type NewDriverFunc func(ctx context.Context, opts map[string]string) (Driver, error)

// RegInfo describes a registered driver constructor, mirroring the
// teacher's fs.RegInfo.
type RegInfo struct {
	Name        string
	Description string
	NewDriver   NewDriverFunc
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*RegInfo{}
)

// Register adds a driver constructor to the registry. Driver packages call
// this from an init() function, mirroring the teacher's backend packages
// calling fs.Register(&fs.RegInfo{...}).
func Register(info *RegInfo) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[info.Name] = info
}

// Find looks up a registered driver constructor by name.
func Find(name string) (*RegInfo, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok := registry[name]
	return info, ok
}

// New constructs a driver by name, failing if the name is unregistered.
func New(ctx context.Context, name string, opts map[string]string) (Driver, error) {
	info, ok := Find(name)
	if !ok {
		return nil, fmt.Errorf("store: unknown driver %q", name)
	}
	return info.NewDriver(ctx, opts)
}

// Names returns the sorted list of registered driver names.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
