// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package cache

import "time"

// Cacher is the cache handle modules receive. A nil Cacher means caching is
// disabled and callers must go to the store.
type Cacher interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
	SetWithTTL(key string, value interface{}, ttl time.Duration)
	Delete(key string)
	DeletePrefix(prefix string) int
	Clear()
	GetStats() Stats
	HitRate() float64
}

var _ Cacher = (*Cache)(nil)

// Namespaced prefixes every key with "<namespace>:" so that modules sharing
// one cache cannot collide. Clear only removes the namespace's keys.
type Namespaced struct {
	inner  Cacher
	prefix string
}

// WithNamespace wraps c. It returns nil when c is nil.
func WithNamespace(c Cacher, namespace string) Cacher {
	if c == nil {
		return nil
	}
	return &Namespaced{inner: c, prefix: namespace + ":"}
}

func (n *Namespaced) Get(key string) (interface{}, bool) { return n.inner.Get(n.prefix + key) }
func (n *Namespaced) Set(key string, value interface{})  { n.inner.Set(n.prefix+key, value) }
func (n *Namespaced) Delete(key string)                  { n.inner.Delete(n.prefix + key) }
func (n *Namespaced) GetStats() Stats                    { return n.inner.GetStats() }
func (n *Namespaced) HitRate() float64                   { return n.inner.HitRate() }

func (n *Namespaced) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	n.inner.SetWithTTL(n.prefix+key, value, ttl)
}

func (n *Namespaced) DeletePrefix(prefix string) int {
	return n.inner.DeletePrefix(n.prefix + prefix)
}

func (n *Namespaced) Clear() {
	n.inner.DeletePrefix(n.prefix)
}
