package store

import (
	"bytes"
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore keeps recently used objects in memory in front of another Store.
// Writes go through to the backing store before they are cached.
type CachedStore struct {
	Store
	cache *lru.Cache[string, *Object]
}

// Cached wraps s with an LRU of size entries. A non-positive size returns s unchanged.
func Cached(s Store, size int) (Store, error) {
	if size <= 0 {
		return s, nil
	}
	cache, err := lru.New[string, *Object](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &CachedStore{Store: s, cache: cache}, nil
}

func (c *CachedStore) Get(ctx context.Context, key string) (*Object, error) {
	if obj, ok := c.cache.Get(key); ok {
		return obj, nil
	}
	obj, err := c.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, obj)
	return obj, nil
}

func (c *CachedStore) Put(ctx context.Context, obj *Object) error {
	if err := c.Store.Put(ctx, obj); err != nil {
		return err
	}
	// The caller keeps its buffer; memory must match what was written.
	cached := *obj
	cached.Data = bytes.Clone(obj.Data)
	c.cache.Add(obj.Key, &cached)
	return nil
}

func (c *CachedStore) Has(ctx context.Context, key string) (bool, error) {
	if c.cache.Contains(key) {
		return true, nil
	}
	return c.Store.Has(ctx, key)
}

func (c *CachedStore) Delete(ctx context.Context, key string) error {
	c.cache.Remove(key)
	return c.Store.Delete(ctx, key)
}

func (c *CachedStore) Clear(ctx context.Context) error {
	c.cache.Purge()
	return c.Store.Clear(ctx)
}

// Evict drops key from memory only.
func (c *CachedStore) Evict(key string) {
	c.cache.Remove(key)
}

// Len reports the number of objects held in memory.
func (c *CachedStore) Len() int {
	return c.cache.Len()
}
