// Package config provides configuration defaults and utilities
// for the depot application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables.
package config

import "time"

// =============================================================================
// Metastore Defaults
// =============================================================================

const (
	// DefaultMetastorePath is the default DuckDB database file.
	// Override via config: metastore.path
	DefaultMetastorePath = "depot.db"

	// DefaultMaxOpenConns is the max open database connections.
	// Override via config: metastore.max_open_conns
	DefaultMaxOpenConns = 25

	// DefaultMaxIdleConns is the max idle connections in the pool.
	// Override via config: metastore.max_idle_conns
	DefaultMaxIdleConns = 5

	// DefaultConnMaxLifetime is the max lifetime of a connection.
	// Override via config: metastore.conn_max_lifetime
	DefaultConnMaxLifetime = 5 * time.Minute

	// DefaultQueryTimeout bounds individual queries.
	// Override via config: metastore.query_timeout
	DefaultQueryTimeout = 30 * time.Second
)

// =============================================================================
// Ingest Defaults
// =============================================================================

const (
	// DefaultIngestBatchSize is the pending sample count that triggers
	// a flush. Larger batches amortize insert cost, smaller ones bound
	// data loss on crash.
	// Override via config: ingest.batch_size
	DefaultIngestBatchSize = 500

	// DefaultIngestFlushInterval flushes partial batches on a timer so
	// a trickle of appends still becomes durable promptly.
	// Override via config: ingest.flush_interval
	DefaultIngestFlushInterval = 2 * time.Second
)

// =============================================================================
// Pipeline Defaults
// =============================================================================

const (
	// DefaultPipelinePollInterval is how often each stage scans for
	// claimable buffer entries.
	// Override via config: pipeline.poll_interval
	DefaultPipelinePollInterval = time.Second

	// DefaultPipelineBatchSize caps how many entries one scan claims
	// per stage.
	// Override via config: pipeline.batch_size
	DefaultPipelineBatchSize = 100

	// DefaultPipelineConcurrency is the worker count per stage pool.
	// Override via config: pipeline.concurrency
	DefaultPipelineConcurrency = 4

	// DefaultStuckAttempts flags entries that failed at least this many
	// times for operator attention.
	// Override via config: pipeline.stuck_attempts
	DefaultStuckAttempts = 5
)

// =============================================================================
// Archive Defaults
// =============================================================================

const (
	// DefaultArchiveDir is the base directory for Parquet exports.
	// Override via config: archive.dir
	DefaultArchiveDir = "/var/lib/depot/archive"

	// DefaultArchiveCompression is the Parquet codec.
	// Override via config: archive.compression
	DefaultArchiveCompression = "zstd"

	// DefaultArchiveCompressionLevel for codecs that support it.
	// Override via config: archive.compression_level
	DefaultArchiveCompressionLevel = 3
)

// =============================================================================
// Logging Defaults
// =============================================================================

const (
	// DefaultLogLevel is the minimum level emitted.
	// Override via config: logging.level
	DefaultLogLevel = "info"

	// DefaultLogFormat selects tinted text or JSON output.
	// Override via config: logging.format
	DefaultLogFormat = "text"
)

// =============================================================================
// Shutdown Defaults
// =============================================================================

const (
	// DefaultDrainTimeout is how long to wait for in-flight stage work
	// during shutdown. Follows the Kubernetes convention
	// (terminationGracePeriodSeconds = 30s).
	// Override via config: shutdown.drain_timeout
	DefaultDrainTimeout = 30 * time.Second
)
