package catalog

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Cached wraps a Catalog with an in-process cache. Model and device
// type records are immutable in the fields the core reads, so cache
// entries never expire; device lookups are deduplicated but not cached
// because device metadata may change.
type Cached struct {
	inner Catalog

	mu     sync.RWMutex
	models map[uuid.UUID]*Model
	types  map[uuid.UUID]*DeviceType

	group singleflight.Group
}

// NewCached wraps inner with caching.
func NewCached(inner Catalog) *Cached {
	return &Cached{
		inner:  inner,
		models: make(map[uuid.UUID]*Model),
		types:  make(map[uuid.UUID]*DeviceType),
	}
}

// GetModel returns the model, serving repeated lookups from cache.
// Concurrent misses for the same id share one upstream call.
func (c *Cached) GetModel(ctx context.Context, id uuid.UUID) (*Model, error) {
	c.mu.RLock()
	m, ok := c.models[id]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	v, err, _ := c.group.Do("model/"+id.String(), func() (interface{}, error) {
		m, err := c.inner.GetModel(ctx, id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.models[id] = m
		c.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Model), nil
}

// GetDevice passes through to the inner catalog, deduplicating
// concurrent lookups for the same id.
func (c *Cached) GetDevice(ctx context.Context, id uuid.UUID) (*Device, error) {
	v, err, _ := c.group.Do("device/"+id.String(), func() (interface{}, error) {
		return c.inner.GetDevice(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Device), nil
}

// GetDeviceType returns the device type, serving repeats from cache.
func (c *Cached) GetDeviceType(ctx context.Context, id uuid.UUID) (*DeviceType, error) {
	c.mu.RLock()
	t, ok := c.types[id]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	v, err, _ := c.group.Do("type/"+id.String(), func() (interface{}, error) {
		t, err := c.inner.GetDeviceType(ctx, id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.types[id] = t
		c.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*DeviceType), nil
}
