package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/xtxerr/depot/internal/errors"
	"github.com/xtxerr/depot/internal/scheme"
)

// countingCatalog counts upstream lookups so tests can observe cache
// hits.
type countingCatalog struct {
	*Memory
	devices int
	models  int
	types   int
}

func (c *countingCatalog) GetDevice(ctx context.Context, id uuid.UUID) (*Device, error) {
	c.devices++
	return c.Memory.GetDevice(ctx, id)
}

func (c *countingCatalog) GetModel(ctx context.Context, id uuid.UUID) (*Model, error) {
	c.models++
	return c.Memory.GetModel(ctx, id)
}

func (c *countingCatalog) GetDeviceType(ctx context.Context, id uuid.UUID) (*DeviceType, error) {
	c.types++
	return c.Memory.GetDeviceType(ctx, id)
}

func TestMemoryNotFound(t *testing.T) {
	mem := NewMemory()
	ctx := t.Context()

	if _, err := mem.GetDevice(ctx, uuid.New()); !errors.Is(err, errors.ErrDeviceNotFound) {
		t.Errorf("device: got %v", err)
	}
	if _, err := mem.GetModel(ctx, uuid.New()); !errors.Is(err, errors.ErrModelNotFound) {
		t.Errorf("model: got %v", err)
	}
	if _, err := mem.GetDeviceType(ctx, uuid.New()); !errors.Is(err, errors.ErrTypeNotFound) {
		t.Errorf("device type: got %v", err)
	}
}

func TestCachedModelServedOnce(t *testing.T) {
	inner := &countingCatalog{Memory: NewMemory()}
	id := uuid.New()
	inner.PutModel(&Model{ID: id, Name: "temps", Indexing: scheme.IndexingTimestamp})

	c := NewCached(inner)
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		m, err := c.GetModel(ctx, id)
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
		if m.Name != "temps" {
			t.Fatalf("lookup %d: name = %q", i, m.Name)
		}
	}
	if inner.models != 1 {
		t.Errorf("upstream model lookups = %d, want 1", inner.models)
	}
}

func TestCachedErrorNotCached(t *testing.T) {
	inner := &countingCatalog{Memory: NewMemory()}
	c := NewCached(inner)
	ctx := t.Context()
	id := uuid.New()

	if _, err := c.GetModel(ctx, id); !errors.Is(err, errors.ErrModelNotFound) {
		t.Fatalf("miss: got %v", err)
	}

	// A model registered after the failed lookup must become visible.
	inner.PutModel(&Model{ID: id, Name: "late"})
	m, err := c.GetModel(ctx, id)
	if err != nil {
		t.Fatalf("after put: %v", err)
	}
	if m.Name != "late" {
		t.Errorf("name = %q", m.Name)
	}
}

func TestCachedDevicePassesThrough(t *testing.T) {
	inner := &countingCatalog{Memory: NewMemory()}
	id := uuid.New()
	inner.PutDevice(&Device{ID: id, Name: "sensor-1"})

	c := NewCached(inner)
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		if _, err := c.GetDevice(ctx, id); err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
	}
	// Device metadata may change; every lookup goes upstream.
	if inner.devices != 3 {
		t.Errorf("upstream device lookups = %d, want 3", inner.devices)
	}
}

func TestCachedDeviceType(t *testing.T) {
	inner := &countingCatalog{Memory: NewMemory()}
	id := uuid.New()
	inner.PutDeviceType(&DeviceType{ID: id, Name: "sensor"})

	c := NewCached(inner)
	ctx := t.Context()

	for i := 0; i < 2; i++ {
		dt, err := c.GetDeviceType(ctx, id)
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
		if dt.Name != "sensor" {
			t.Fatalf("name = %q", dt.Name)
		}
	}
	if inner.types != 1 {
		t.Errorf("upstream type lookups = %d, want 1", inner.types)
	}
}
