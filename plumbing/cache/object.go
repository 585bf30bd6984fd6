// Package cache implements caches for plumbing objects.
//
// Objects are immutable, which makes them trivially cacheable: an entry can
// never go stale, only cold.
package cache

import (
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/grit-vcs/grit/plumbing"
)

const (
	// DefaultMaxEntries is the default maximum amount of objects kept by
	// an ObjectLRU.
	DefaultMaxEntries = 512

	// MaxInlineSize is the maximum size of an object to be kept in the
	// cache. Larger objects are always re-read from storage.
	MaxInlineSize = 10 * 1024 * 1024
)

// Object is a cache of plumbing.EncodedObject keyed by hash.
type Object interface {
	// Put puts the given object into the cache. It may not store it, e.g.
	// when the object is too large to be worth keeping.
	Put(o plumbing.EncodedObject)
	// Get gets an object from the cache keyed by its hash. The second
	// return value is false if the object is not in the cache.
	Get(k plumbing.Hash) (plumbing.EncodedObject, bool)
	// Clear clears every object from the cache.
	Clear()
}

// ObjectLRU implements Object with a least-recently-used eviction policy on
// top of groupcache's lru. The underlying lru.Cache is not safe for
// concurrent use, so every access holds the mutex.
type ObjectLRU struct {
	mu  sync.Mutex
	lru *lru.Cache
}

// NewObjectLRU returns an Object cache holding up to maxEntries objects.
func NewObjectLRU(maxEntries int) *ObjectLRU {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	return &ObjectLRU{lru: &lru.Cache{MaxEntries: maxEntries}}
}

// NewObjectLRUDefault returns an Object cache with the default size.
func NewObjectLRUDefault() *ObjectLRU {
	return NewObjectLRU(DefaultMaxEntries)
}

// Put puts the given object into the cache, unless it is too large.
func (c *ObjectLRU) Put(o plumbing.EncodedObject) {
	if o.Size() > MaxInlineSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(lru.Key(o.Hash()), o)
}

// Get gets an object from the cache keyed by its hash.
func (c *ObjectLRU) Get(k plumbing.Hash) (plumbing.EncodedObject, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(lru.Key(k))
	if !ok {
		return nil, false
	}

	return v.(plumbing.EncodedObject), true
}

// Clear clears every object from the cache.
func (c *ObjectLRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Clear()
}
