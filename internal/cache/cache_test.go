// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c := New(ttl)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCacheBasicOperations(t *testing.T) {
	c := newTestCache(t, time.Minute)

	c.Set("auth_token:u1", "jwt")
	v, ok := c.Get("auth_token:u1")
	if !ok || v != "jwt" {
		t.Fatalf("Get() = %v, %v; want jwt, true", v, ok)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("missing key should not be found")
	}

	stats := c.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit 1 miss", stats)
	}
	if rate := c.HitRate(); rate != 50 {
		t.Errorf("HitRate() = %v, want 50", rate)
	}
}

func TestCacheExpiration(t *testing.T) {
	c := newTestCache(t, time.Minute)

	c.SetWithTTL("short", 1, 20*time.Millisecond)
	if _, ok := c.Get("short"); !ok {
		t.Fatal("entry should exist immediately after set")
	}

	time.Sleep(40 * time.Millisecond)

	if _, ok := c.Get("short"); ok {
		t.Error("entry should have expired")
	}
	if got := c.GetStats().TotalKeys; got != 0 {
		t.Errorf("TotalKeys = %d after expiry, want 0", got)
	}
}

func TestCacheDeleteAndPrefix(t *testing.T) {
	c := newTestCache(t, time.Minute)

	c.Set("diaries:user:1", "a")
	c.Set("diaries:user:2", "b")
	c.Set("auth_token:1", "c")

	c.Delete("auth_token:1")
	if _, ok := c.Get("auth_token:1"); ok {
		t.Error("deleted key still present")
	}

	if n := c.DeletePrefix("diaries:"); n != 2 {
		t.Errorf("DeletePrefix() = %d, want 2", n)
	}
	if got := c.GetStats().TotalKeys; got != 0 {
		t.Errorf("TotalKeys = %d, want 0", got)
	}
}

func TestCacheClear(t *testing.T) {
	c := newTestCache(t, time.Minute)
	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}

	c.Clear()

	for i := 0; i < 5; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%d", i)); ok {
			t.Errorf("k%d survived Clear", i)
		}
	}
}

func TestCacheCleanupSweep(t *testing.T) {
	c := newTestCache(t, time.Minute)
	c.SetWithTTL("gone", 1, time.Millisecond)
	c.Set("kept", 2)

	time.Sleep(5 * time.Millisecond)
	c.cleanup()

	s := c.GetStats()
	if s.TotalKeys != 1 {
		t.Errorf("TotalKeys = %d, want 1", s.TotalKeys)
	}
	if s.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", s.Evictions)
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := newTestCache(t, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("g%d:%d", g, i%10)
				c.Set(key, i)
				c.Get(key)
				if i%7 == 0 {
					c.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()
}

func TestNamespaced(t *testing.T) {
	c := newTestCache(t, time.Minute)
	auth := WithNamespace(c, "auth")
	diaries := WithNamespace(c, "diaries")

	auth.Set("token:1", "x")
	diaries.Set("token:1", "y")

	if v, _ := auth.Get("token:1"); v != "x" {
		t.Errorf("auth value = %v, want x", v)
	}
	if v, _ := c.Get("diaries:token:1"); v != "y" {
		t.Errorf("raw diaries value = %v, want y", v)
	}

	auth.Clear()
	if _, ok := auth.Get("token:1"); ok {
		t.Error("auth namespace should be empty after Clear")
	}
	if _, ok := diaries.Get("token:1"); !ok {
		t.Error("Clear leaked into another namespace")
	}

	if WithNamespace(nil, "x") != nil {
		t.Error("WithNamespace(nil) should stay nil")
	}
}
