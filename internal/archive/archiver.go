// LOCATION: internal/archive/archiver.go
//
// File layout and export entry points on top of the Parquet writer.

package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/xtxerr/depot/internal/logging"
	"github.com/xtxerr/depot/internal/store"
)

var log = logging.Component("archive")

// Archiver places Parquet exports under a base directory. Backups land
// in backup/<yyyy-mm-dd>/, slice exports in slices/.
type Archiver struct {
	dir  string
	opts Options
}

// NewArchiver creates an archiver rooted at dir.
func NewArchiver(dir string, opts Options) *Archiver {
	return &Archiver{dir: dir, opts: opts}
}

// BackupEntries writes buffer entries to a timestamped backup file and
// returns its path.
func (a *Archiver) BackupEntries(entries []*store.BufferEntry) (string, error) {
	now := time.Now().UTC()
	path := filepath.Join(a.dir, "backup", now.Format("2006-01-02"),
		fmt.Sprintf("entries-%d.parquet", now.UnixMicro()))

	w, err := NewWriter(path, a.opts)
	if err != nil {
		return "", err
	}
	if err := w.WriteEntries(entries); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	log.Debug("backup written", "path", path, "rows", len(entries))
	return path, nil
}

// ExportSlice drains the cursor into a Parquet file named after the
// slice and returns the path and row count. The cursor is closed.
func (a *Archiver) ExportSlice(ctx context.Context, sl *store.Slice, cur *store.SampleCursor) (string, int64, error) {
	defer cur.Close()

	path := filepath.Join(a.dir, "slices", fmt.Sprintf("%s-%d.parquet", sl.Name, sl.ID))
	w, err := NewWriter(path, a.opts)
	if err != nil {
		return "", 0, err
	}

	const batchSize = 1000
	batch := make([]store.Sample, 0, batchSize)
	for cur.Next() {
		if err := ctx.Err(); err != nil {
			w.Close()
			return "", 0, err
		}
		batch = append(batch, cur.Sample())
		if len(batch) == batchSize {
			if err := w.WriteSamples(batch); err != nil {
				w.Close()
				return "", 0, err
			}
			batch = batch[:0]
		}
	}
	if err := cur.Err(); err != nil {
		w.Close()
		return "", 0, err
	}
	if err := w.WriteSamples(batch); err != nil {
		w.Close()
		return "", 0, err
	}
	if err := w.Close(); err != nil {
		return "", 0, err
	}

	log.Info("slice exported", "slice", sl.ID, "path", path, "rows", w.RowCount())
	return path, w.RowCount(), nil
}
