// LOCATION: internal/archive/writer.go
//
// Parquet export for samples and buffer entries. The backup stage and
// slice export both funnel through the same row shape: one row per
// sample position with the raw payload bytes attached.

package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/depot/internal/scheme"
	"github.com/xtxerr/depot/internal/store"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// CompressionLevel for algorithms that support it (zstd: 1-22)
	CompressionLevel int

	// RowGroupSize is the target number of rows per row group
	RowGroupSize int

	// PageSize is the target page size in bytes
	PageSize int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression:      CompressionZstd,
		CompressionLevel: 3,
		RowGroupSize:     100000,
		PageSize:         1024 * 1024, // 1MB
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// SampleRow represents one sample in Parquet format.
type SampleRow struct {
	DeviceID string `parquet:"device_id,zstd"`
	ModelID  string `parquet:"model_id,zstd"`
	TsMicros int64  `parquet:"ts_micros"`
	Index    int32  `parquet:"index"`
	Payload  []byte `parquet:"payload,zstd"`
}

// SampleToRow converts a stored sample to a SampleRow.
func SampleToRow(s *store.Sample) SampleRow {
	return SampleRow{
		DeviceID: s.DeviceID.String(),
		ModelID:  s.ModelID.String(),
		TsMicros: s.Position.Timestamp.UnixMicro(),
		Index:    s.Position.Index,
		Payload:  s.Payload,
	}
}

// EntryToRow converts a buffer entry to a SampleRow. Lifecycle state is
// not archived; backups hold the sample data itself.
func EntryToRow(e *store.BufferEntry) SampleRow {
	return SampleRow{
		DeviceID: e.DeviceID.String(),
		ModelID:  e.ModelID.String(),
		TsMicros: e.Position.Timestamp.UnixMicro(),
		Index:    e.Position.Index,
		Payload:  e.Payload,
	}
}

// RowPosition returns the position a row encodes.
func (r *SampleRow) RowPosition() scheme.Position {
	return scheme.Position{
		Timestamp: time.UnixMicro(r.TsMicros).UTC(),
		Index:     r.Index,
	}
}

// Writer writes sample rows to a Parquet file.
type Writer struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[SampleRow]
	rowCount int64
	closed   bool
}

// NewWriter creates a new Parquet writer at path.
func NewWriter(path string, opts Options) (*Writer, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writerOpts := []parquet.WriterOption{
		parquet.Compression(getCompression(opts.Compression)),
	}

	writer := parquet.NewGenericWriter[SampleRow](f, writerOpts...)

	return &Writer{
		path:   path,
		file:   f,
		writer: writer,
	}, nil
}

// WriteSamples writes samples to the Parquet file.
func (w *Writer) WriteSamples(samples []store.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	rows := make([]SampleRow, len(samples))
	for i := range samples {
		rows[i] = SampleToRow(&samples[i])
	}
	return w.writeRows(rows)
}

// WriteEntries writes buffer entries to the Parquet file.
func (w *Writer) WriteEntries(entries []*store.BufferEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]SampleRow, len(entries))
	for i := range entries {
		rows[i] = EntryToRow(entries[i])
	}
	return w.writeRows(rows)
}

func (w *Writer) writeRows(rows []SampleRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close closes the writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("parquet writer is closed")
