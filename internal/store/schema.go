package store

import (
	"database/sql"
	"fmt"

	"github.com/xtxerr/depot/internal/logging"
)

var log = logging.Component("store")

// =============================================================================
// Schema Migration
// =============================================================================

// Migrate creates the depot schema.
//
// This is idempotent - safe to run multiple times. Four logical tables
// carry the core state (samples, buffers, slices, sets/templates); the
// catalog tables hold the narrow read surface the core needs from the
// device/model catalog.
//
// Positions are stored canonically as (ts_micros, idx): an index is
// zero when the mode does not carry one, and a missing timestamp is a
// sentinel below every real instant. Lexicographic order on
// (ts_micros, idx) then agrees with the scheme's total order for every
// mode.
func Migrate(db *sql.DB) error {
	migrations := []struct {
		name string
		sql  string
	}{
		// Catalog read surface
		{
			name: "device_types",
			sql: `CREATE TABLE IF NOT EXISTS device_types (
				type_id VARCHAR NOT NULL,
				name VARCHAR NOT NULL,
				description VARCHAR,
				PRIMARY KEY (type_id)
			)`,
		},
		{
			name: "devices",
			sql: `CREATE TABLE IF NOT EXISTS devices (
				device_id VARCHAR NOT NULL,
				gateway_id VARCHAR NOT NULL,
				type_id VARCHAR NOT NULL,
				serial_number VARCHAR NOT NULL,
				name VARCHAR NOT NULL,
				description VARCHAR,
				PRIMARY KEY (device_id)
			)`,
		},
		{
			name: "models",
			sql: `CREATE TABLE IF NOT EXISTS models (
				model_id VARCHAR NOT NULL,
				indexing VARCHAR NOT NULL,
				category VARCHAR NOT NULL,
				name VARCHAR NOT NULL,
				description VARCHAR,
				fields JSON,
				staged BOOLEAN DEFAULT false,
				PRIMARY KEY (model_id)
			)`,
		},

		// Samples: the append-only data plane. The primary key enforces
		// position uniqueness per (device, model) scheme.
		{
			name: "samples",
			sql: `CREATE TABLE IF NOT EXISTS samples (
				device_id VARCHAR NOT NULL,
				model_id VARCHAR NOT NULL,
				ts_micros BIGINT NOT NULL,
				idx INTEGER NOT NULL,
				data BLOB,
				created_at TIMESTAMP DEFAULT now(),
				PRIMARY KEY (device_id, model_id, ts_micros, idx)
			)`,
		},

		// Buffer entries: staged samples moving through the lifecycle.
		// status is the only mutable field; version backs the
		// compare-and-swap discipline.
		{
			name: "buffers_seq",
			sql:  `CREATE SEQUENCE IF NOT EXISTS buffers_seq`,
		},
		{
			name: "buffers",
			sql: `CREATE TABLE IF NOT EXISTS buffers (
				id BIGINT PRIMARY KEY DEFAULT nextval('buffers_seq'),
				device_id VARCHAR NOT NULL,
				model_id VARCHAR NOT NULL,
				ts_micros BIGINT NOT NULL,
				idx INTEGER NOT NULL,
				data BLOB,
				status VARCHAR NOT NULL DEFAULT 'default',
				retry_status VARCHAR,
				attempts INTEGER NOT NULL DEFAULT 0,
				version INTEGER NOT NULL DEFAULT 1,
				created_at TIMESTAMP DEFAULT now(),
				updated_at TIMESTAMP DEFAULT now()
			)`,
		},

		// Slices: named range descriptors. Never copy sample bytes.
		{
			name: "slices_seq",
			sql:  `CREATE SEQUENCE IF NOT EXISTS slices_seq`,
		},
		{
			name: "slices",
			sql: `CREATE TABLE IF NOT EXISTS slices (
				id BIGINT PRIMARY KEY DEFAULT nextval('slices_seq'),
				device_id VARCHAR NOT NULL,
				model_id VARCHAR NOT NULL,
				ts_begin_micros BIGINT NOT NULL,
				ts_end_micros BIGINT NOT NULL,
				index_begin INTEGER NOT NULL,
				index_end INTEGER NOT NULL,
				name VARCHAR NOT NULL,
				description VARCHAR,
				created_at TIMESTAMP DEFAULT now()
			)`,
		},

		// Set templates and sets
		{
			name: "set_templates",
			sql: `CREATE TABLE IF NOT EXISTS set_templates (
				template_id VARCHAR NOT NULL,
				name VARCHAR NOT NULL,
				description VARCHAR,
				created_at TIMESTAMP DEFAULT now(),
				PRIMARY KEY (template_id)
			)`,
		},
		{
			name: "set_template_members",
			sql: `CREATE TABLE IF NOT EXISTS set_template_members (
				template_id VARCHAR NOT NULL,
				type_id VARCHAR NOT NULL,
				model_id VARCHAR NOT NULL,
				data_index BLOB,
				template_index INTEGER NOT NULL,
				PRIMARY KEY (template_id, template_index)
			)`,
		},
		{
			name: "sets",
			sql: `CREATE TABLE IF NOT EXISTS sets (
				set_id VARCHAR NOT NULL,
				template_id VARCHAR NOT NULL,
				name VARCHAR NOT NULL,
				description VARCHAR,
				created_at TIMESTAMP DEFAULT now(),
				PRIMARY KEY (set_id)
			)`,
		},
		{
			name: "set_members",
			sql: `CREATE TABLE IF NOT EXISTS set_members (
				set_id VARCHAR NOT NULL,
				device_id VARCHAR NOT NULL,
				model_id VARCHAR NOT NULL,
				data_index BLOB,
				set_position INTEGER NOT NULL,
				set_number INTEGER NOT NULL,
				PRIMARY KEY (set_id, set_position, set_number)
			)`,
		},

		// Indices for worker fetch and slice lookups
		{
			name: "idx_buffers_status",
			sql:  `CREATE INDEX IF NOT EXISTS idx_buffers_status ON buffers(status, id)`,
		},
		{
			name: "idx_slices_device_model",
			sql:  `CREATE INDEX IF NOT EXISTS idx_slices_device_model ON slices(device_id, model_id)`,
		},
		{
			name: "idx_set_members_set",
			sql:  `CREATE INDEX IF NOT EXISTS idx_set_members_set ON set_members(set_id)`,
		},
	}

	for _, m := range migrations {
		if _, err := db.Exec(m.sql); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		log.Debug("migration applied", "name", m.name)
	}

	log.Info("schema migration completed", "migrations", len(migrations))
	return nil
}

// Migrate runs the schema migration against the store's database.
func (s *Store) Migrate() error {
	return Migrate(s.db)
}
