package catalog

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/xtxerr/depot/internal/errors"
)

// Memory is an in-memory Catalog for tests and embedded use.
type Memory struct {
	mu      sync.RWMutex
	devices map[uuid.UUID]*Device
	models  map[uuid.UUID]*Model
	types   map[uuid.UUID]*DeviceType
}

// NewMemory creates an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{
		devices: make(map[uuid.UUID]*Device),
		models:  make(map[uuid.UUID]*Model),
		types:   make(map[uuid.UUID]*DeviceType),
	}
}

// PutDevice registers a device.
func (m *Memory) PutDevice(d *Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.ID] = d
}

// PutModel registers a model.
func (m *Memory) PutModel(model *Model) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models[model.ID] = model
}

// PutDeviceType registers a device type.
func (m *Memory) PutDeviceType(t *DeviceType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types[t.ID] = t
}

// GetDevice implements Catalog.
func (m *Memory) GetDevice(_ context.Context, id uuid.UUID) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, errors.ErrDeviceNotFound
	}
	return d, nil
}

// GetModel implements Catalog.
func (m *Memory) GetModel(_ context.Context, id uuid.UUID) (*Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	model, ok := m.models[id]
	if !ok {
		return nil, errors.ErrModelNotFound
	}
	return model, nil
}

// GetDeviceType implements Catalog.
func (m *Memory) GetDeviceType(_ context.Context, id uuid.UUID) (*DeviceType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.types[id]
	if !ok {
		return nil, errors.ErrTypeNotFound
	}
	return t, nil
}
