package cache

import (
	"sync"

	"github.com/tuokri/tklserver/errors"
)

type mapCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]V

	stats   *Statistics
	metrics *cacheMetrics
}

func newMapCache[V any](opts *cacheOptions[V]) (*mapCache[V], error) {
	c := &mapCache[V]{
		entries: make(map[string]V),
		stats:   NewStatistics(),
	}
	if opts.metricsReg == nil {
		return c, nil
	}

	m, err := newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
	if err != nil {
		return nil, errors.WrapTransient(err, "cache", "NewSimple", "register metrics")
	}
	c.metrics = m
	return c, nil
}

func (c *mapCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	v, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.stats.Miss()
		c.metrics.recordMiss()
		return v, false
	}
	c.stats.Hit()
	c.metrics.recordHit()
	return v, true
}

func (c *mapCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, replaced := c.entries[key]
	c.entries[key] = value
	n := len(c.entries)
	c.mu.Unlock()

	c.stats.Set()
	c.stats.UpdateSize(int64(n))
	c.metrics.recordSet()
	c.metrics.updateSize(n)
	return !replaced, nil
}

func (c *mapCache[V]) Size() int {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return n
}

func (c *mapCache[V]) Stats() *Statistics { return c.stats }
