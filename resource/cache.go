// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"errors"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/gpusync/internal/logging"
)

// Cache errors.
var (
	// ErrCacheClosed is returned when operating on a closed cache.
	ErrCacheClosed = errors.New("resource: cache closed")

	// ErrNilHandle is returned when storing a nil or empty handle.
	ErrNilHandle = errors.New("resource: handle is nil or empty")
)

// Destroyer releases the GPU object behind a handle id.
type Destroyer func(id uint32)

// CacheStats contains resource cache statistics.
type CacheStats struct {
	// Entries is the number of live handles.
	Entries int

	// Collections is the number of Collect passes run.
	Collections uint64

	// Evictions is the total number of handles released because they expired.
	Evictions uint64

	// Removals is the total number of handles released through Remove.
	Removals uint64
}

var statsPrinter = message.NewPrinter(language.English)

// String returns a human-readable summary of the statistics.
func (s CacheStats) String() string {
	return statsPrinter.Sprintf("Resources[%d live, %d collections, %d expired, %d removed]",
		s.Entries, s.Collections, s.Evictions, s.Removals)
}

type cacheEntry struct {
	handle  *Handle
	destroy Destroyer
}

type keyedEntry[K comparable] struct {
	key K
	cacheEntry
}

// Cache owns a set of handles and releases the ones that expire.
//
// The render loop calls Collect once per frame after advancing its clock.
// Destroy callbacks always run without the cache lock held, so they may call
// back into the cache.
//
// Cache is safe for concurrent use.
type Cache[K comparable] struct {
	mu      sync.Mutex
	entries map[K]cacheEntry
	stats   CacheStats
	closed  bool
}

// NewCache creates an empty cache.
func NewCache[K comparable]() *Cache[K] {
	return &Cache[K]{entries: make(map[K]cacheEntry)}
}

// Put stores h under key. A handle already stored under key is released.
func (c *Cache[K]) Put(key K, h *Handle, destroy Destroyer) error {
	if h == nil || h.ID() == 0 {
		return ErrNilHandle
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCacheClosed
	}
	old, replaced := c.entries[key]
	c.entries[key] = cacheEntry{handle: h, destroy: destroy}
	c.mu.Unlock()

	if replaced && old.handle != h {
		old.handle.Release(old.destroy)
	}
	return nil
}

// Get returns the handle stored under key and touches it.
func (c *Cache[K]) Get(key K) (*Handle, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.handle.Touch()
	return e.handle, true
}

// Remove releases the handle stored under key.
// Returns false if no handle was stored.
func (c *Cache[K]) Remove(key K) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
		c.stats.Removals++
	}
	c.mu.Unlock()

	if ok {
		e.handle.Release(e.destroy)
	}
	return ok
}

// Collect releases every expired handle and returns how many were released.
// A handle pinned after it was found expired is put back instead.
func (c *Cache[K]) Collect() int {
	var expired []keyedEntry[K]

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	for key, e := range c.entries {
		if e.handle.Expired() {
			expired = append(expired, keyedEntry[K]{key: key, cacheEntry: e})
			delete(c.entries, key)
		}
	}
	c.stats.Collections++
	c.mu.Unlock()

	released := 0
	for _, e := range expired {
		if e.handle.RefCount() > 0 && c.restore(e.key, e.cacheEntry) {
			continue
		}
		e.handle.Release(e.destroy)
		released++
	}

	c.mu.Lock()
	c.stats.Evictions += uint64(released)
	c.mu.Unlock()
	if released > 0 {
		logging.Logger().Debug("resource: collected expired handles", "count", released)
	}
	return released
}

// restore puts a collected entry back under key. It fails if the cache was
// closed or key was reused in the meantime.
func (c *Cache[K]) restore(key K, e cacheEntry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if _, taken := c.entries[key]; taken {
		return false
	}
	c.entries[key] = e
	return true
}

// Len returns the number of live handles.
func (c *Cache[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache statistics.
func (c *Cache[K]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

// Close releases every handle. The cache cannot be used afterwards.
// Close is safe to call multiple times.
func (c *Cache[K]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	entries := c.entries
	c.entries = make(map[K]cacheEntry)
	c.mu.Unlock()

	for _, e := range entries {
		e.handle.Release(e.destroy)
	}
}
