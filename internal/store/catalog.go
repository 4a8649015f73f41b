// LOCATION: internal/store/catalog.go
//
// The store-backed view of the device/model catalog. The catalog is
// owned by an external service; the core only reads the columns it
// needs. The Put* methods exist for seeding and for embedded
// deployments where the catalog shares the depot database.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/xtxerr/depot/internal/catalog"
	"github.com/xtxerr/depot/internal/codec"
	"github.com/xtxerr/depot/internal/errors"
	"github.com/xtxerr/depot/internal/scheme"
)

// Catalog returns the store-backed catalog implementation.
func (s *Store) Catalog() catalog.Catalog {
	return &storeCatalog{s}
}

type storeCatalog struct {
	s *Store
}

// GetDevice implements catalog.Catalog.
func (c *storeCatalog) GetDevice(ctx context.Context, id uuid.UUID) (*catalog.Device, error) {
	var d catalog.Device
	var deviceID, gatewayID, typeID string

	err := c.s.db.QueryRowContext(ctx, `
		SELECT device_id, gateway_id, type_id, serial_number, name, description
		FROM devices WHERE device_id = ?
	`, id.String()).Scan(&deviceID, &gatewayID, &typeID, &d.SerialNumber, &d.Name, &d.Description)
	if err == sql.ErrNoRows {
		return nil, errors.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query device: %w", err)
	}

	d.ID = id
	if d.GatewayID, err = uuid.Parse(gatewayID); err != nil {
		return nil, fmt.Errorf("parse gateway id: %w", err)
	}
	if d.TypeID, err = uuid.Parse(typeID); err != nil {
		return nil, fmt.Errorf("parse type id: %w", err)
	}
	return &d, nil
}

// GetModel implements catalog.Catalog.
func (c *storeCatalog) GetModel(ctx context.Context, id uuid.UUID) (*catalog.Model, error) {
	var m catalog.Model
	var indexing string
	var fieldsJSON sql.NullString

	err := c.s.db.QueryRowContext(ctx, `
		SELECT indexing, category, name, description, fields, staged
		FROM models WHERE model_id = ?
	`, id.String()).Scan(&indexing, &m.Category, &m.Name, &m.Description, &fieldsJSON, &m.Staged)
	if err == sql.ErrNoRows {
		return nil, errors.ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query model: %w", err)
	}

	m.ID = id
	if m.Indexing, err = scheme.ParseIndexing(indexing); err != nil {
		return nil, err
	}

	if fieldsJSON.Valid && fieldsJSON.String != "" {
		var names []string
		if err := json.Unmarshal([]byte(fieldsJSON.String), &names); err != nil {
			return nil, fmt.Errorf("unmarshal model fields: %w", err)
		}
		m.Fields = make([]codec.FieldType, 0, len(names))
		for _, n := range names {
			t, err := codec.ParseFieldType(n)
			if err != nil {
				return nil, err
			}
			m.Fields = append(m.Fields, t)
		}
	}
	return &m, nil
}

// GetDeviceType implements catalog.Catalog.
func (c *storeCatalog) GetDeviceType(ctx context.Context, id uuid.UUID) (*catalog.DeviceType, error) {
	var t catalog.DeviceType
	var typeID string

	err := c.s.db.QueryRowContext(ctx, `
		SELECT type_id, name, description FROM device_types WHERE type_id = ?
	`, id.String()).Scan(&typeID, &t.Name, &t.Description)
	if err == sql.ErrNoRows {
		return nil, errors.ErrTypeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query device type: %w", err)
	}

	t.ID = id
	return &t, nil
}

// =============================================================================
// Seeding
// =============================================================================

// PutDeviceType upserts a device type row.
func (s *Store) PutDeviceType(ctx context.Context, t *catalog.DeviceType) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO device_types (type_id, name, description)
		VALUES (?, ?, ?)
	`, t.ID.String(), t.Name, t.Description)
	if err != nil {
		return fmt.Errorf("put device type: %w", err)
	}
	return nil
}

// PutDevice upserts a device row.
func (s *Store) PutDevice(ctx context.Context, d *catalog.Device) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO devices (device_id, gateway_id, type_id, serial_number, name, description)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.ID.String(), d.GatewayID.String(), d.TypeID.String(), d.SerialNumber, d.Name, d.Description)
	if err != nil {
		return fmt.Errorf("put device: %w", err)
	}
	return nil
}

// PutModel upserts a model row. The indexing mode of an existing model
// must never change; callers own that invariant.
func (s *Store) PutModel(ctx context.Context, m *catalog.Model) error {
	names := make([]string, 0, len(m.Fields))
	for _, f := range m.Fields {
		names = append(names, f.String())
	}
	fieldsJSON, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("marshal model fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO models (model_id, indexing, category, name, description, fields, staged)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID.String(), m.Indexing.String(), m.Category, m.Name, m.Description,
		string(fieldsJSON), m.Staged)
	if err != nil {
		return fmt.Errorf("put model: %w", err)
	}
	return nil
}
