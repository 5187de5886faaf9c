package completion

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// clientCache builds each client once per key, even under concurrent first use.
type clientCache[T any] struct {
	cache   sync.Map
	sfGroup singleflight.Group
}

func newClientCache[T any]() *clientCache[T] {
	return &clientCache[T]{}
}

func (c *clientCache[T]) GetOrCreate(key string, factory func() (T, error)) (T, error) {
	if cached, ok := c.cache.Load(key); ok {
		return cached.(T), nil
	}

	v, err, _ := c.sfGroup.Do(key, func() (any, error) {
		if cached, ok := c.cache.Load(key); ok {
			return cached.(T), nil
		}
		client, err := factory()
		if err != nil {
			return nil, err
		}
		c.cache.Store(key, client)
		return client, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (c *clientCache[T]) Delete(key string) {
	c.cache.Delete(key)
}
