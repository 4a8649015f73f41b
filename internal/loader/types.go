// Package loader - Configuration Types
//
// LOCATION: internal/loader/types.go
//
// Defines the YAML configuration structure for depotd.
//
// ARCHITECTURE:
//
//   ┌─────────────────────────────────────────────────────────────────┐
//   │                         config.yaml                             │
//   ├─────────────────────────────────────────────────────────────────┤
//   │                                                                 │
//   │  metastore:   DuckDB store (samples, buffers, slices, sets)     │
//   │  ingest:      Append batching                                   │
//   │  pipeline:    Stage workers (gateway or server variant)         │
//   │  archive:     Parquet export (backups, slice export)            │
//   │  logging:     Level and format                                  │
//   │                                                                 │
//   │  catalog:     Declarative device types, models, devices.        │
//   │               Applied to the store at startup; referenced by    │
//   │               name inside the file, by UUID everywhere else.    │
//   │                                                                 │
//   └─────────────────────────────────────────────────────────────────┘

package loader

import (
	"time"

	"github.com/xtxerr/depot/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for depotd.
type Config struct {
	// Metastore is the embedded database (DuckDB).
	//
	// Stores: samples, buffer entries, slices, sets, catalog rows.
	// Access pattern: OLTP ingest plus range scans for resolution.
	Metastore MetastoreConfig `yaml:"metastore"`

	// Ingest configures append validation and batching.
	Ingest IngestConfig `yaml:"ingest"`

	// Pipeline configures the buffer lifecycle stage workers.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Archive configures Parquet export.
	Archive ArchiveConfig `yaml:"archive"`

	// Logging configures log level and output format.
	Logging LoggingConfig `yaml:"logging"`

	// Shutdown configures graceful shutdown behavior.
	Shutdown ShutdownConfig `yaml:"shutdown"`

	// Catalog defines device types, models, and devices declaratively.
	Catalog *CatalogConfig `yaml:"catalog"`

	// Include lists additional config files to load.
	// Supports glob patterns. Relative to this file's directory.
	Include []string `yaml:"include"`
}

// =============================================================================
// Metastore Configuration
// =============================================================================

// MetastoreConfig configures the embedded database.
type MetastoreConfig struct {
	// Path is the database file path.
	// Special value ":memory:" or empty for in-memory (testing only).
	// Default: "depot.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the max open database connections.
	// Default: 25
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the max idle connections in the pool.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// ConnMaxLifetime is the max lifetime of a connection.
	// Default: 5m
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`

	// QueryTimeout is the default timeout for queries.
	// Default: 30s
	QueryTimeout Duration `yaml:"query_timeout"`
}

// =============================================================================
// Ingest Configuration
// =============================================================================

// IngestConfig configures the append batcher.
type IngestConfig struct {
	// BatchSize is the pending sample count that triggers a flush.
	// Default: 500
	BatchSize int `yaml:"batch_size"`

	// FlushInterval flushes partial batches on a timer.
	// Default: 2s
	FlushInterval Duration `yaml:"flush_interval"`
}

// =============================================================================
// Pipeline Configuration
// =============================================================================

// PipelineConfig configures the stage workers.
type PipelineConfig struct {
	// Mode selects the stage variant: "gateway" or "server".
	// Default: "gateway"
	Mode string `yaml:"mode"`

	// PollInterval is how often each stage scans for claimable entries.
	// Default: 1s
	PollInterval Duration `yaml:"poll_interval"`

	// BatchSize caps how many entries one scan claims per stage.
	// Default: 100
	BatchSize int `yaml:"batch_size"`

	// Concurrency is the worker count per stage pool.
	// Default: 4
	Concurrency int `yaml:"concurrency"`

	// StuckAttempts flags entries that failed at least this many times.
	// Default: 5
	StuckAttempts int `yaml:"stuck_attempts"`
}

// =============================================================================
// Archive Configuration
// =============================================================================

// ArchiveConfig configures Parquet export.
type ArchiveConfig struct {
	// Dir is the base directory for backups and slice exports.
	// Default: "/var/lib/depot/archive"
	Dir string `yaml:"dir"`

	// Compression selects the Parquet codec: zstd, snappy, lz4, gzip,
	// none.
	// Default: "zstd"
	Compression string `yaml:"compression"`

	// CompressionLevel for algorithms that support it (zstd: 1-22).
	// Default: 3
	CompressionLevel int `yaml:"compression_level"`
}

// =============================================================================
// Logging Configuration
// =============================================================================

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level: debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format: "text" (tinted, for terminals) or "json".
	// Default: "text"
	Format string `yaml:"format"`
}

// ShutdownConfig configures graceful shutdown behavior.
type ShutdownConfig struct {
	// DrainTimeout is how long to wait for in-flight stage work.
	// Default: 30s
	DrainTimeout Duration `yaml:"drain_timeout"`
}

// =============================================================================
// Catalog Configuration
// =============================================================================

// CatalogConfig declares the device types, models, and devices the
// daemon should ensure exist at startup.
type CatalogConfig struct {
	DeviceTypes map[string]*DeviceTypeConfig `yaml:"device_types"`
	Models      map[string]*ModelConfig      `yaml:"models"`
	Devices     map[string]*DeviceConfig     `yaml:"devices"`
}

// DeviceTypeConfig declares one device type. The map key is its name.
type DeviceTypeConfig struct {
	// ID is the type's UUID. Required so restarts are idempotent.
	ID string `yaml:"id"`

	Description string `yaml:"description"`
}

// ModelConfig declares one data model. The map key is its name.
type ModelConfig struct {
	// ID is the model's UUID.
	ID string `yaml:"id"`

	// Indexing fixes the sample addressing mode: "timestamp", "index",
	// "timestamp_index", or "timestamp_micros". Immutable once samples
	// exist.
	Indexing string `yaml:"indexing"`

	// Category groups models for operators; free-form.
	Category string `yaml:"category"`

	Description string `yaml:"description"`

	// Fields is the ordered payload layout: i8..i64, u8..u64, f32,
	// f64, char, bool.
	Fields []string `yaml:"fields"`

	// Staged routes samples of this model through the buffer pipeline.
	Staged bool `yaml:"staged"`
}

// DeviceConfig declares one device. The map key is its name.
type DeviceConfig struct {
	// ID is the device's UUID.
	ID string `yaml:"id"`

	// Type references a device type by name within this file.
	Type string `yaml:"type"`

	// Gateway is the UUID of the owning gateway.
	Gateway string `yaml:"gateway"`

	SerialNumber string `yaml:"serial_number"`
	Description  string `yaml:"description"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Metastore: MetastoreConfig{
			Path:            config.DefaultMetastorePath,
			MaxOpenConns:    config.DefaultMaxOpenConns,
			MaxIdleConns:    config.DefaultMaxIdleConns,
			ConnMaxLifetime: Duration(config.DefaultConnMaxLifetime),
			QueryTimeout:    Duration(config.DefaultQueryTimeout),
		},

		Ingest: IngestConfig{
			BatchSize:     config.DefaultIngestBatchSize,
			FlushInterval: Duration(config.DefaultIngestFlushInterval),
		},

		Pipeline: PipelineConfig{
			Mode:          "gateway",
			PollInterval:  Duration(config.DefaultPipelinePollInterval),
			BatchSize:     config.DefaultPipelineBatchSize,
			Concurrency:   config.DefaultPipelineConcurrency,
			StuckAttempts: config.DefaultStuckAttempts,
		},

		Archive: ArchiveConfig{
			Dir:              config.DefaultArchiveDir,
			Compression:      config.DefaultArchiveCompression,
			CompressionLevel: config.DefaultArchiveCompressionLevel,
		},

		Logging: LoggingConfig{
			Level:  config.DefaultLogLevel,
			Format: config.DefaultLogFormat,
		},

		Shutdown: ShutdownConfig{
			DrainTimeout: Duration(config.DefaultDrainTimeout),
		},
	}
}

// =============================================================================
// YAML Helpers
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
// Supports: "5s", "10m", "1h30m", or plain seconds as an int.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		// Try as int (seconds)
		var i int
		if err := unmarshal(&i); err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
