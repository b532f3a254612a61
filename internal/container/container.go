// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

// Package container is the string-keyed registry through which modules share
// objects: the database and cache handles, per-module services, and the
// module instances themselves.
//
// Services and singletons live in separate namespaces. Lookups of missing
// keys report false rather than an error; registering an existing key
// replaces the previous value.
package container

import (
	"sort"
	"sync"
)

// Well-known singleton keys.
const (
	SharedDatabase = "shared.database"
	SharedCache    = "shared.cache"
)

// Container holds named services and singletons. It is safe for concurrent
// use.
type Container struct {
	mu         sync.RWMutex
	services   map[string]any
	singletons map[string]any
}

// New creates an empty container.
func New() *Container {
	return &Container{
		services:   make(map[string]any),
		singletons: make(map[string]any),
	}
}

func (c *Container) RegisterService(name string, v any) {
	c.mu.Lock()
	c.services[name] = v
	c.mu.Unlock()
}

func (c *Container) GetService(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.services[name]
	return v, ok
}

func (c *Container) HasService(name string) bool {
	_, ok := c.GetService(name)
	return ok
}

func (c *Container) RegisterSingleton(name string, v any) {
	c.mu.Lock()
	c.singletons[name] = v
	c.mu.Unlock()
}

func (c *Container) GetSingleton(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.singletons[name]
	return v, ok
}

func (c *Container) HasSingleton(name string) bool {
	_, ok := c.GetSingleton(name)
	return ok
}

// ListServices returns the registered service names, sorted.
func (c *Container) ListServices() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.services)
}

// ListSingletons returns the registered singleton names, sorted.
func (c *Container) ListSingletons() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.singletons)
}

// Clear removes every service and singleton.
func (c *Container) Clear() {
	c.mu.Lock()
	c.services = make(map[string]any)
	c.singletons = make(map[string]any)
	c.mu.Unlock()
}

// Lookup fetches a service and asserts its type. It reports false when the
// service is missing or has a different type.
func Lookup[T any](c *Container, name string) (T, bool) {
	var zero T
	v, ok := c.GetService(name)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// LookupSingleton is Lookup for singletons.
func LookupSingleton[T any](c *Container, name string) (T, bool) {
	var zero T
	v, ok := c.GetSingleton(name)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
