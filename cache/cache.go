// Package cache holds the named in-memory caches of the process.
package cache

import (
	"context"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	gocache_store "github.com/eko/gocache/store/go_cache/v4"
	gocache "github.com/patrickmn/go-cache"
	cmap "github.com/orcaman/concurrent-map/v2"
)

var caches = cmap.New[func(context.Context) error]()

// NewCache returns an in-memory cache whose entries expire after expiration.
// Creating a second cache with the same name replaces the first in ClearAll.
func NewCache[T any](name string, expiration time.Duration) cache.CacheInterface[T] {
	c := cache.New[T](gocache_store.NewGoCache(gocache.New(expiration, expiration)))
	caches.Set(name, c.Clear)
	return c
}

// Names lists the registered caches.
func Names() []string {
	return caches.Keys()
}

// ClearAll empties every registered cache.
func ClearAll(ctx context.Context) error {
	for item := range caches.IterBuffered() {
		if err := item.Val(ctx); err != nil {
			return err
		}
	}
	return nil
}
