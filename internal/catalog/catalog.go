// Package catalog exposes the device/model catalog to the core.
//
// The catalog itself - CRUD on devices, models, types, their configs and
// tags - is owned elsewhere. The core only ever reads three things: a
// model's indexing mode and field list, a device's identity, and a
// device type's name. This package defines that narrow read surface and
// a cached wrapper; implementations live in the store (DuckDB) and in
// memory (tests).
package catalog

import (
	"context"

	"github.com/google/uuid"

	"github.com/xtxerr/depot/internal/codec"
	"github.com/xtxerr/depot/internal/scheme"
)

// Device is the core's view of a field device. Identity and ownership
// are immutable once created; only descriptive metadata may change.
type Device struct {
	ID           uuid.UUID
	GatewayID    uuid.UUID
	TypeID       uuid.UUID
	SerialNumber string
	Name         string
	Description  string
}

// Model is the core's view of a data model. The indexing mode is fixed
// at model creation and never changes.
type Model struct {
	ID          uuid.UUID
	Indexing    scheme.Indexing
	Category    string
	Name        string
	Description string
	Fields      []codec.FieldType

	// Staged reports whether samples of this model enter the buffer
	// lifecycle on ingest. Models without staged processing keep their
	// samples in the store only.
	Staged bool
}

// Scheme returns the addressing scheme for the model's indexing mode.
func (m *Model) Scheme() scheme.Scheme {
	return scheme.New(m.Indexing)
}

// DeviceType is the core's view of a device type.
type DeviceType struct {
	ID          uuid.UUID
	Name        string
	Description string
}

// Catalog is the read-only surface the core needs from the catalog
// service. Implementations must be safe for concurrent use. The catalog
// is assumed strongly consistent and rarely changing.
type Catalog interface {
	GetModel(ctx context.Context, id uuid.UUID) (*Model, error)
	GetDevice(ctx context.Context, id uuid.UUID) (*Device, error)
	GetDeviceType(ctx context.Context, id uuid.UUID) (*DeviceType, error)
}
