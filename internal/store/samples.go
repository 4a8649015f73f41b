// LOCATION: internal/store/samples.go
//
// Sample persistence. Samples are append-only: a row is never updated,
// only superseded by a new row at a different position. Batch writes
// use multi-row INSERT with chunking to stay under parameter limits.

package store

import (
	"context"
	"database/sql"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xtxerr/depot/internal/scheme"
)

// Sample is one persisted reading.
type Sample struct {
	DeviceID uuid.UUID
	ModelID  uuid.UUID
	Position scheme.Position
	Payload  []byte
}

// noTimestamp marks a stored position whose scheme carries no timestamp
// component. It sits below every reachable instant, so real timestamps
// round-trip intact, the unix epoch included, and index-only rows still
// sort before and group together under ORDER BY ts_micros.
const noTimestamp = math.MinInt64

// positionCols splits a canonical position into its storage columns.
// Positions must already be canonical for the owning model's scheme.
func positionCols(p scheme.Position) (tsMicros int64, idx int32) {
	tsMicros = noTimestamp
	if !p.Timestamp.IsZero() {
		tsMicros = p.Timestamp.UnixMicro()
	}
	return tsMicros, p.Index
}

// colsPosition reassembles a position from its storage columns.
func colsPosition(tsMicros int64, idx int32) scheme.Position {
	p := scheme.Position{Index: idx}
	if tsMicros != noTimestamp {
		p.Timestamp = time.UnixMicro(tsMicros).UTC()
	}
	return p
}

// InsertSample inserts a single sample. A duplicate position under the
// model's scheme returns ErrConflict.
func (s *Store) InsertSample(ctx context.Context, sample *Sample) error {
	ts, idx := positionCols(sample.Position)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO samples (device_id, model_id, ts_micros, idx, data)
		VALUES (?, ?, ?, ?, ?)
	`, sample.DeviceID.String(), sample.ModelID.String(), ts, idx, sample.Payload)
	return mapConstraint(err, "insert sample")
}

// maxSamplesPerInsert caps the parameter count of one multi-row INSERT.
// 5 columns * 200 rows = 1000 parameters per statement.
const maxSamplesPerInsert = 200

// InsertSamplesBatch inserts multiple samples efficiently using
// multi-row INSERT. Large batches are split into chunks inside one
// transaction; a conflict anywhere rolls back the whole batch.
func (s *Store) InsertSamplesBatch(ctx context.Context, samples []*Sample) error {
	if len(samples) == 0 {
		return nil
	}

	if len(samples) <= maxSamplesPerInsert {
		query, args := buildSampleInsert(samples)
		_, err := s.db.ExecContext(ctx, query, args...)
		return mapConstraint(err, "insert samples")
	}

	return s.TransactionContext(ctx, func(tx *sql.Tx) error {
		for i := 0; i < len(samples); i += maxSamplesPerInsert {
			end := i + maxSamplesPerInsert
			if end > len(samples) {
				end = len(samples)
			}
			query, args := buildSampleInsert(samples[i:end])
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return mapConstraint(err, "insert samples")
			}
		}
		return nil
	})
}

// buildSampleInsert builds a multi-row INSERT statement.
func buildSampleInsert(samples []*Sample) (string, []interface{}) {
	const columnsPerRow = 5

	args := make([]interface{}, 0, len(samples)*columnsPerRow)

	var query strings.Builder
	query.Grow(100 + len(samples)*14)
	query.WriteString(`INSERT INTO samples (device_id, model_id, ts_micros, idx, data) VALUES `)

	for i, sample := range samples {
		if i > 0 {
			query.WriteByte(',')
		}
		query.WriteString("(?,?,?,?,?)")

		ts, idx := positionCols(sample.Position)
		args = append(args,
			sample.DeviceID.String(),
			sample.ModelID.String(),
			ts,
			idx,
			sample.Payload,
		)
	}

	return query.String(), args
}

// =============================================================================
// Range Scans
// =============================================================================

// SampleCursor streams samples from a range scan in position order.
// It must be closed; closing is safe at any point and leaves no state
// behind (scans are read-only).
type SampleCursor struct {
	rows *sql.Rows
	cur  Sample
	err  error
}

// Next advances to the next sample. It returns false when the range is
// exhausted or an error occurred; check Err afterwards.
func (c *SampleCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}

	var deviceID, modelID string
	var ts int64
	var idx int32
	if err := c.rows.Scan(&deviceID, &modelID, &ts, &idx, &c.cur.Payload); err != nil {
		c.err = err
		return false
	}

	c.cur.DeviceID, c.err = uuid.Parse(deviceID)
	if c.err != nil {
		return false
	}
	c.cur.ModelID, c.err = uuid.Parse(modelID)
	if c.err != nil {
		return false
	}
	c.cur.Position = colsPosition(ts, idx)
	return true
}

// Sample returns the current sample. Valid after Next returned true.
func (c *SampleCursor) Sample() Sample {
	return c.cur
}

// Err returns the first error hit during iteration.
func (c *SampleCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

// Close releases the cursor.
func (c *SampleCursor) Close() error {
	return c.rows.Close()
}

// ScanRange streams the samples of one (device, model) pair whose
// position falls within [begin, end], ordered by the scheme's total
// order. Positions must be canonical. Cancel the context to abort the
// stream early.
func (s *Store) ScanRange(ctx context.Context, deviceID, modelID uuid.UUID, begin, end scheme.Position) (*SampleCursor, error) {
	tb, ib := positionCols(begin)
	te, ie := positionCols(end)

	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, model_id, ts_micros, idx, data
		FROM samples
		WHERE device_id = ? AND model_id = ?
		  AND (ts_micros > ? OR (ts_micros = ? AND idx >= ?))
		  AND (ts_micros < ? OR (ts_micros = ? AND idx <= ?))
		ORDER BY ts_micros ASC, idx ASC
	`, deviceID.String(), modelID.String(), tb, tb, ib, te, te, ie)
	if err != nil {
		return nil, mapConstraint(err, "scan samples")
	}

	return &SampleCursor{rows: rows}, nil
}

// ScanAll streams every sample of one (device, model) pair in the
// scheme's total order.
func (s *Store) ScanAll(ctx context.Context, deviceID, modelID uuid.UUID) (*SampleCursor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, model_id, ts_micros, idx, data
		FROM samples
		WHERE device_id = ? AND model_id = ?
		ORDER BY ts_micros ASC, idx ASC
	`, deviceID.String(), modelID.String())
	if err != nil {
		return nil, mapConstraint(err, "scan samples")
	}
	return &SampleCursor{rows: rows}, nil
}

// CountSamples returns the number of samples for a (device, model) pair.
func (s *Store) CountSamples(ctx context.Context, deviceID, modelID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM samples WHERE device_id = ? AND model_id = ?
	`, deviceID.String(), modelID.String()).Scan(&count)
	return count, err
}

// SampleBounds returns the smallest and largest position of a
// (device, model) pair, or ok=false when it has no samples.
func (s *Store) SampleBounds(ctx context.Context, deviceID, modelID uuid.UUID) (first, last scheme.Position, ok bool, err error) {
	var tsMin, tsMax sql.NullInt64
	var idxMin, idxMax sql.NullInt32

	err = s.db.QueryRowContext(ctx, `
		SELECT MIN(ts_micros), MAX(ts_micros) FROM samples
		WHERE device_id = ? AND model_id = ?
	`, deviceID.String(), modelID.String()).Scan(&tsMin, &tsMax)
	if err != nil || !tsMin.Valid {
		return first, last, false, err
	}

	// Index bounds within the boundary timestamps; index-only models
	// share one ts_micros sentinel so this covers the whole pair.
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT MIN(idx) FROM samples WHERE device_id = ? AND model_id = ? AND ts_micros = ?),
			(SELECT MAX(idx) FROM samples WHERE device_id = ? AND model_id = ? AND ts_micros = ?)
	`, deviceID.String(), modelID.String(), tsMin.Int64,
		deviceID.String(), modelID.String(), tsMax.Int64).Scan(&idxMin, &idxMax)
	if err != nil {
		return first, last, false, err
	}

	first = colsPosition(tsMin.Int64, idxMin.Int32)
	last = colsPosition(tsMax.Int64, idxMax.Int32)
	return first, last, true, nil
}
