// LOCATION: internal/archive/reader.go

package archive

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
)

// Reader reads sample rows from a Parquet file.
type Reader struct {
	file   *os.File
	reader *parquet.GenericReader[SampleRow]
	path   string
}

// NewReader creates a new Parquet reader.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	reader := parquet.NewGenericReader[SampleRow](f)

	return &Reader{
		file:   f,
		reader: reader,
		path:   path,
	}, nil
}

// Read reads up to n rows from the file.
func (r *Reader) Read(n int) ([]SampleRow, error) {
	rows := make([]SampleRow, n)
	count, err := r.reader.Read(rows)
	if err != nil {
		return nil, err
	}
	return rows[:count], nil
}

// ReadAll reads all rows from the file.
func (r *Reader) ReadAll() ([]SampleRow, error) {
	numRows := r.reader.NumRows()
	rows := make([]SampleRow, numRows)

	n, err := r.reader.Read(rows)
	if err != nil {
		return nil, err
	}
	return rows[:n], nil
}

// NumRows returns the total number of rows in the file.
func (r *Reader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *Reader) Path() string {
	return r.path
}
