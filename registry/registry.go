package registry

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"dlite/config"
	"dlite/errors"
	"dlite/logger"
)

// moduleExt is the loadable-module extension for the current platform:
// ".so" on POSIX, ".dll" on Windows.
func moduleExt() string {
	if runtime.GOOS == "windows" {
		return ".dll"
	}
	return ".so"
}

// Registry is the process-wide storage-driver catalogue: a
// name->DriverAPI map plus an ordered search path scanned when a name
// isn't already registered. Registries are normally process-wide
// singletons (see Default), but tests construct their own to avoid
// cross-test state.
type Registry struct {
	mu      sync.Mutex
	drivers map[string]*DriverAPI
	paths   []string
}

// New creates an empty registry seeded with cfg's search path. A nil
// cfg is fine: an empty registry with an empty search path is a valid,
// if useless, starting state.
func New(cfg *config.Config) *Registry {
	r := &Registry{drivers: make(map[string]*DriverAPI)}
	if cfg != nil {
		r.paths = append(r.paths, cfg.PluginSearchPath...)
	}
	return r
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry, built from the
// environment on first use. Concurrent load/unload against it is not
// supported: callers configure it during startup.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = New(config.FromEnvironment())
	})
	return defaultReg
}

// Register adds api to the catalogue under api.Name, overwriting any
// previous registration of the same name. It fails if api is missing a
// required core capability.
func (r *Registry) Register(api *DriverAPI) error {
	if api == nil || api.Name == "" {
		return errors.Diagnose(errors.ErrPluginResolution, "cannot register a driver with no name")
	}
	if missing := api.missingCore(); len(missing) > 0 {
		return errors.Diagnose(errors.ErrPluginResolution,
			"driver %q is missing required capabilities: %v", api.Name, missing)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[api.Name] = api
	logger.Info("registered storage driver %q", api.Name)
	return nil
}

// Unload removes name from the catalogue, if present.
func (r *Registry) Unload(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drivers, name)
}

// UnloadAll clears the catalogue. Nothing in this module calls it at
// process exit; callers and tests that want a clean registry call it
// themselves.
func (r *Registry) UnloadAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers = make(map[string]*DriverAPI)
}

// Paths returns a copy of the current search path.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.paths))
	copy(out, r.paths)
	return out
}

// resolvePathIndex clips an index (possibly negative, counted from the
// end) into [0, len] for insertion or [0, len) for removal.
func resolvePathIndex(i, length int, forInsert bool) int {
	if i < 0 {
		i = length + i
	}
	if i < 0 {
		i = 0
	}
	max := length
	if !forInsert {
		max = length - 1
	}
	if i > max {
		i = max
	}
	return i
}

// PathInsert inserts dir into the search path at index (negative counts
// from the end; out-of-range indices clip).
func (r *Registry) PathInsert(index int, dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := resolvePathIndex(index, len(r.paths), true)
	r.paths = append(r.paths, "")
	copy(r.paths[i+1:], r.paths[i:])
	r.paths[i] = dir
}

// PathAppend appends dir to the end of the search path.
func (r *Registry) PathAppend(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, dir)
}

// PathRemove removes the path at index (negative counts from the end;
// out-of-range indices clip). It fails only if the search path is empty.
func (r *Registry) PathRemove(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.paths) == 0 {
		return errors.Diagnose(errors.ErrPluginResolution, "search path is empty")
	}
	i := resolvePathIndex(index, len(r.paths), false)
	r.paths = append(r.paths[:i], r.paths[i+1:]...)
	return nil
}

// Resolve resolves name to a driver in four steps:
//  1. return the registered api if present
//  2. else scan the search path for a module named name+moduleExt(),
//     load it, register its exported api, return it
//  3. else scan the search path for any loadable module, registering
//     each, and return the one whose embedded name matches
//  4. else fail with a diagnostic naming the driver and search path
func (r *Registry) Resolve(name string) (*DriverAPI, error) {
	r.mu.Lock()
	if api, ok := r.drivers[name]; ok {
		r.mu.Unlock()
		return api, nil
	}
	paths := append([]string(nil), r.paths...)
	r.mu.Unlock()

	for _, dir := range paths {
		path := filepath.Join(dir, name+moduleExt())
		if api, err := loadModule(path); err == nil {
			if regErr := r.Register(api); regErr != nil {
				return nil, regErr
			}
			return api, nil
		}
	}

	for _, dir := range paths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != moduleExt() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			api, err := loadModule(path)
			if err != nil {
				continue
			}
			_ = r.Register(api)
			if api.Name == name {
				return api, nil
			}
		}
	}

	return nil, errors.Diagnose(errors.ErrPluginResolution,
		"no storage driver named %q is registered or loadable; search path: %v (set DLITE_STORAGE_PLUGIN_DIRS)",
		name, paths)
}

// LoadAll eagerly scans every directory on the search path and
// registers every loadable module found, ignoring ones that fail to
// load. Returns the number of drivers newly registered.
func (r *Registry) LoadAll() int {
	r.mu.Lock()
	paths := append([]string(nil), r.paths...)
	r.mu.Unlock()

	count := 0
	for _, dir := range paths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != moduleExt() {
				continue
			}
			api, err := loadModule(filepath.Join(dir, entry.Name()))
			if err != nil {
				logger.Warn("failed to load plugin %s: %v", entry.Name(), err)
				continue
			}
			if err := r.Register(api); err == nil {
				count++
			}
		}
	}
	return count
}

// Iterator walks the currently registered drivers in an unspecified but
// stable-for-the-call order.
type Iterator struct {
	apis []*DriverAPI
	pos  int
}

// IterCreate snapshots the registered drivers for iteration.
func (r *Registry) IterCreate() *Iterator {
	r.mu.Lock()
	defer r.mu.Unlock()
	apis := make([]*DriverAPI, 0, len(r.drivers))
	for _, api := range r.drivers {
		apis = append(apis, api)
	}
	return &Iterator{apis: apis}
}

// Next advances the iterator and reports whether another driver is
// available; call Driver to retrieve it.
func (it *Iterator) Next() bool {
	if it.pos >= len(it.apis) {
		return false
	}
	it.pos++
	return true
}

// Driver returns the driver the most recent successful Next advanced to.
func (it *Iterator) Driver() *DriverAPI {
	if it.pos == 0 || it.pos > len(it.apis) {
		return nil
	}
	return it.apis[it.pos-1]
}

// Free releases the iterator. There is no underlying resource to
// release; it only drops the snapshot.
func (it *Iterator) Free() {
	it.apis = nil
}
