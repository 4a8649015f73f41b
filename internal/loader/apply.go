// Package loader - Catalog Application
//
// LOCATION: internal/loader/apply.go
//
// Applies the declarative catalog section to the store. Rows are
// upserted by UUID, so repeated startups with the same file are
// idempotent and edits to names or descriptions take effect on restart.

package loader

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/xtxerr/depot/internal/catalog"
	"github.com/xtxerr/depot/internal/codec"
	"github.com/xtxerr/depot/internal/logging"
	"github.com/xtxerr/depot/internal/scheme"
	"github.com/xtxerr/depot/internal/store"
)

var log = logging.Component("loader")

// ApplyCatalog upserts the declared device types, models, and devices.
// Types go first so device rows can reference them.
func ApplyCatalog(ctx context.Context, cfg *CatalogConfig, s *store.Store) error {
	if cfg == nil {
		return nil
	}

	typeIDs := make(map[string]uuid.UUID, len(cfg.DeviceTypes))
	for name, t := range cfg.DeviceTypes {
		id, err := uuid.Parse(t.ID)
		if err != nil {
			return fmt.Errorf("device type %q: parse id: %w", name, err)
		}
		typeIDs[name] = id

		if err := s.PutDeviceType(ctx, &catalog.DeviceType{
			ID:          id,
			Name:        name,
			Description: t.Description,
		}); err != nil {
			return fmt.Errorf("device type %q: %w", name, err)
		}
	}

	for name, m := range cfg.Models {
		model, err := toModel(name, m)
		if err != nil {
			return err
		}
		if err := s.PutModel(ctx, model); err != nil {
			return fmt.Errorf("model %q: %w", name, err)
		}
	}

	for name, d := range cfg.Devices {
		device, err := toDevice(name, d, typeIDs)
		if err != nil {
			return err
		}
		if err := s.PutDevice(ctx, device); err != nil {
			return fmt.Errorf("device %q: %w", name, err)
		}
	}

	log.Info("catalog applied",
		"device_types", len(cfg.DeviceTypes),
		"models", len(cfg.Models),
		"devices", len(cfg.Devices))
	return nil
}

func toModel(name string, m *ModelConfig) (*catalog.Model, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("model %q: parse id: %w", name, err)
	}
	indexing, err := scheme.ParseIndexing(m.Indexing)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", name, err)
	}

	fields := make([]codec.FieldType, len(m.Fields))
	for i, f := range m.Fields {
		ft, err := codec.ParseFieldType(f)
		if err != nil {
			return nil, fmt.Errorf("model %q: field %d: %w", name, i, err)
		}
		fields[i] = ft
	}

	return &catalog.Model{
		ID:          id,
		Indexing:    indexing,
		Category:    m.Category,
		Name:        name,
		Description: m.Description,
		Fields:      fields,
		Staged:      m.Staged,
	}, nil
}

func toDevice(name string, d *DeviceConfig, typeIDs map[string]uuid.UUID) (*catalog.Device, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("device %q: parse id: %w", name, err)
	}
	typeID, ok := typeIDs[d.Type]
	if !ok {
		return nil, fmt.Errorf("device %q: unknown device type %q", name, d.Type)
	}

	var gatewayID uuid.UUID
	if d.Gateway != "" {
		gatewayID, err = uuid.Parse(d.Gateway)
		if err != nil {
			return nil, fmt.Errorf("device %q: parse gateway: %w", name, err)
		}
	}

	return &catalog.Device{
		ID:           id,
		GatewayID:    gatewayID,
		TypeID:       typeID,
		SerialNumber: d.SerialNumber,
		Name:         name,
		Description:  d.Description,
	}, nil
}
