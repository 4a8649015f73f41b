// Package testing - Depot Fixtures
//
// LOCATION: internal/testing/fixtures.go
//
// Shared fixtures: an in-memory migrated store and a seeded catalog
// with one model per indexing mode.

package testing

import (
	"testing"

	"github.com/google/uuid"

	"github.com/xtxerr/depot/internal/catalog"
	"github.com/xtxerr/depot/internal/codec"
	"github.com/xtxerr/depot/internal/scheme"
	"github.com/xtxerr/depot/internal/store"
)

// Well-known fixture IDs. Stable so failures print recognizably.
var (
	TypeID    = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	GatewayID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	DeviceID  = uuid.MustParse("33333333-3333-3333-3333-333333333333")

	TimestampModelID = uuid.MustParse("aaaaaaaa-0001-0000-0000-000000000000")
	IndexModelID     = uuid.MustParse("aaaaaaaa-0002-0000-0000-000000000000")
	BothModelID      = uuid.MustParse("aaaaaaaa-0003-0000-0000-000000000000")
	MicrosModelID    = uuid.MustParse("aaaaaaaa-0004-0000-0000-000000000000")
	StagedModelID    = uuid.MustParse("aaaaaaaa-0005-0000-0000-000000000000")
)

// NewStore opens an in-memory store with the schema applied. The store
// is closed when the test ends.
func NewStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(store.DefaultConfig())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

// SeedCatalog returns an in-memory catalog with the fixture device and
// one two-field model per indexing mode. StagedModelID routes through
// the buffer pipeline.
func SeedCatalog() *catalog.Memory {
	c := catalog.NewMemory()

	c.PutDeviceType(&catalog.DeviceType{
		ID:   TypeID,
		Name: "sensor",
	})
	c.PutDevice(&catalog.Device{
		ID:           DeviceID,
		GatewayID:    GatewayID,
		TypeID:       TypeID,
		SerialNumber: "SN-0001",
		Name:         "sensor-1",
	})

	fields := []codec.FieldType{codec.TypeU32, codec.TypeF64}
	models := []struct {
		id       uuid.UUID
		name     string
		indexing scheme.Indexing
		staged   bool
	}{
		{TimestampModelID, "temps", scheme.IndexingTimestamp, false},
		{IndexModelID, "events", scheme.IndexingIndex, false},
		{BothModelID, "readings", scheme.IndexingTimestampIndex, false},
		{MicrosModelID, "traces", scheme.IndexingTimestampMicros, false},
		{StagedModelID, "staged-temps", scheme.IndexingTimestamp, true},
	}
	for _, m := range models {
		c.PutModel(&catalog.Model{
			ID:       m.id,
			Indexing: m.indexing,
			Category: "test",
			Name:     m.name,
			Fields:   fields,
			Staged:   m.staged,
		})
	}
	return c
}

// SeedStoreCatalog writes the same fixture rows into the store so the
// store-backed catalog serves them.
func SeedStoreCatalog(t *testing.T, s *store.Store) {
	t.Helper()

	mem := SeedCatalog()
	ctx := t.Context()

	dt, err := mem.GetDeviceType(ctx, TypeID)
	if err != nil {
		t.Fatalf("fixture device type: %v", err)
	}
	if err := s.PutDeviceType(ctx, dt); err != nil {
		t.Fatalf("seed device type: %v", err)
	}

	d, err := mem.GetDevice(ctx, DeviceID)
	if err != nil {
		t.Fatalf("fixture device: %v", err)
	}
	if err := s.PutDevice(ctx, d); err != nil {
		t.Fatalf("seed device: %v", err)
	}

	for _, id := range []uuid.UUID{TimestampModelID, IndexModelID, BothModelID, MicrosModelID, StagedModelID} {
		m, err := mem.GetModel(ctx, id)
		if err != nil {
			t.Fatalf("fixture model: %v", err)
		}
		if err := s.PutModel(ctx, m); err != nil {
			t.Fatalf("seed model: %v", err)
		}
	}
}
