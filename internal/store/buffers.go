// LOCATION: internal/store/buffers.go
//
// Buffer entry persistence. Status is the only mutable field and every
// status move is a single-statement compare-and-swap: one worker
// observes and commits a given "current status -> next status" move,
// concurrent losers get ErrStaleState and must re-read. A worker that
// dies mid-transition leaves the row in its pre-transition status.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xtxerr/depot/internal/errors"
	"github.com/xtxerr/depot/internal/lifecycle"
	"github.com/xtxerr/depot/internal/scheme"
)

// BufferEntry is a staged sample tracked through the processing
// lifecycle.
type BufferEntry struct {
	ID       int64
	DeviceID uuid.UUID
	ModelID  uuid.UUID
	Position scheme.Position
	Payload  []byte

	Status lifecycle.Status

	// RetryStatus records the status the entry held when it entered
	// Error; a retry returns there. Nil outside Error.
	RetryStatus *lifecycle.Status

	// Attempts counts how many times the entry entered Error.
	Attempts int

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InsertBuffer stages a sample for processing and returns the entry id.
// New entries start in the initial status.
func (s *Store) InsertBuffer(ctx context.Context, e *BufferEntry) (int64, error) {
	ts, idx := positionCols(e.Position)

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO buffers (device_id, model_id, ts_micros, idx, data, status)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`, e.DeviceID.String(), e.ModelID.String(), ts, idx, e.Payload,
		lifecycle.StatusDefault.String()).Scan(&id)
	if err != nil {
		return 0, mapConstraint(err, "insert buffer")
	}

	e.ID = id
	e.Status = lifecycle.StatusDefault
	e.Version = 1
	return id, nil
}

const bufferColumns = `id, device_id, model_id, ts_micros, idx, data,
       status, retry_status, attempts, version, created_at, updated_at`

func scanBuffer(row interface{ Scan(...interface{}) error }) (*BufferEntry, error) {
	var e BufferEntry
	var deviceID, modelID, status string
	var retryStatus sql.NullString
	var ts int64
	var idx int32

	if err := row.Scan(&e.ID, &deviceID, &modelID, &ts, &idx, &e.Payload,
		&status, &retryStatus, &e.Attempts, &e.Version, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if e.DeviceID, err = uuid.Parse(deviceID); err != nil {
		return nil, fmt.Errorf("parse device id: %w", err)
	}
	if e.ModelID, err = uuid.Parse(modelID); err != nil {
		return nil, fmt.Errorf("parse model id: %w", err)
	}
	if e.Status, err = lifecycle.ParseStatus(status); err != nil {
		return nil, err
	}
	if retryStatus.Valid {
		rs, err := lifecycle.ParseStatus(retryStatus.String)
		if err == nil {
			e.RetryStatus = &rs
		}
		// An unparsable retry target is treated as unknown, not fatal;
		// the retry path falls back to the initial status.
	}
	e.Position = colsPosition(ts, idx)
	return &e, nil
}

// GetBuffer retrieves a buffer entry by id.
func (s *Store) GetBuffer(ctx context.Context, id int64) (*BufferEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+bufferColumns+` FROM buffers WHERE id = ?
	`, id)

	e, err := scanBuffer(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrBufferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query buffer: %w", err)
	}
	return e, nil
}

// ListBuffersByStatus returns up to limit entries in the given status,
// oldest first. Workers use this as their fetch queue; no ordering is
// guaranteed across entries beyond the fetch order.
func (s *Store) ListBuffersByStatus(ctx context.Context, status lifecycle.Status, limit int) ([]*BufferEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bufferColumns+` FROM buffers
		WHERE status = ? ORDER BY id ASC LIMIT ?
	`, status.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query buffers: %w", err)
	}
	defer rows.Close()

	var entries []*BufferEntry
	for rows.Next() {
		e, err := scanBuffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan buffer: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountBuffersByStatus returns the number of entries per status.
func (s *Store) CountBuffersByStatus(ctx context.Context) (map[lifecycle.Status]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM buffers GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count buffers: %w", err)
	}
	defer rows.Close()

	counts := make(map[lifecycle.Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		st, err := lifecycle.ParseStatus(status)
		if err != nil {
			continue
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

// ListStuckBuffers returns entries parked in Error with at least
// minAttempts failed attempts. They are surfaced, never auto-deleted.
func (s *Store) ListStuckBuffers(ctx context.Context, minAttempts int) ([]*BufferEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bufferColumns+` FROM buffers
		WHERE status = ? AND attempts >= ? ORDER BY id ASC
	`, lifecycle.StatusError.String(), minAttempts)
	if err != nil {
		return nil, fmt.Errorf("query stuck buffers: %w", err)
	}
	defer rows.Close()

	var entries []*BufferEntry
	for rows.Next() {
		e, err := scanBuffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan buffer: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// Status Transitions
// =============================================================================

// AdvanceBuffer commits the status move from -> to for one entry.
//
// The edge must be legal (ErrInvalidTransition otherwise; status is
// left untouched). The commit is a single UPDATE conditioned on the
// current status: when two workers race the same move, exactly one
// wins and the loser gets ErrStaleState.
//
// Moving to Delete removes the row. Re-applying Delete on an entry
// that is already gone succeeds without side effects.
func (s *Store) AdvanceBuffer(ctx context.Context, id int64, from, to lifecycle.Status) error {
	if err := lifecycle.ValidateTransition(from, to); err != nil {
		return err
	}

	switch {
	case to == lifecycle.StatusDelete:
		return s.deleteBuffer(ctx, id, from)
	case to == lifecycle.StatusError:
		return s.failBuffer(ctx, id, from)
	default:
		return s.moveBuffer(ctx, id, from, to)
	}
}

// UpdateBufferPayload replaces the entry's payload bytes. Conditioned
// on the current status so a concurrent stage move invalidates the
// write instead of clobbering it.
func (s *Store) UpdateBufferPayload(ctx context.Context, id int64, status lifecycle.Status, payload []byte) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE buffers
		SET data = ?, version = version + 1, updated_at = now()
		WHERE id = ? AND status = ?
	`, payload, id, status.String())
	if err != nil {
		return s.mapUpdateRace(ctx, err, id, "update buffer payload")
	}
	return s.checkMoved(ctx, result, id)
}

// moveBuffer commits a regular forward move, clearing any retry marker.
func (s *Store) moveBuffer(ctx context.Context, id int64, from, to lifecycle.Status) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE buffers
		SET status = ?, retry_status = NULL, version = version + 1, updated_at = now()
		WHERE id = ? AND status = ?
	`, to.String(), id, from.String())
	if err != nil {
		return s.mapUpdateRace(ctx, err, id, "advance buffer")
	}
	return s.checkMoved(ctx, result, id)
}

// failBuffer parks the entry in Error, recording where it failed and
// counting the attempt.
func (s *Store) failBuffer(ctx context.Context, id int64, from lifecycle.Status) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE buffers
		SET status = ?, retry_status = ?, attempts = attempts + 1,
		    version = version + 1, updated_at = now()
		WHERE id = ? AND status = ?
	`, lifecycle.StatusError.String(), from.String(), id, from.String())
	if err != nil {
		return s.mapUpdateRace(ctx, err, id, "fail buffer")
	}
	return s.checkMoved(ctx, result, id)
}

// deleteBuffer commits the terminal move. Idempotent: deleting an entry
// that no longer exists is a success, so the transition can run twice
// after a crash without new side effects.
func (s *Store) deleteBuffer(ctx context.Context, id int64, from lifecycle.Status) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM buffers WHERE id = ? AND status = ?
	`, id, from.String())
	if isConstraintErr(err) {
		// A concurrent writer touched the row mid-delete. Already gone
		// keeps the idempotency contract; a different live status is a
		// lost race.
		var status string
		qerr := s.db.QueryRowContext(ctx, `SELECT status FROM buffers WHERE id = ?`, id).Scan(&status)
		if qerr == sql.ErrNoRows {
			return nil
		}
		if qerr != nil {
			return fmt.Errorf("check buffer: %w", qerr)
		}
		return errors.ErrStaleState
	}
	if err != nil {
		return fmt.Errorf("delete buffer: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// Nothing deleted: already gone is fine, a different live status is
	// a lost race.
	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM buffers WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check buffer: %w", err)
	}
	return errors.ErrStaleState
}

// RetryBuffer moves an entry out of Error back to the status that was
// being attempted when it failed, or to the initial status when that
// target is unknown. Returns the status the entry was moved to.
func (s *Store) RetryBuffer(ctx context.Context, id int64) (lifecycle.Status, error) {
	e, err := s.GetBuffer(ctx, id)
	if err != nil {
		return 0, err
	}
	if e.Status != lifecycle.StatusError {
		return 0, fmt.Errorf("retry from %s: %w", e.Status, errors.ErrInvalidTransition)
	}

	var recorded lifecycle.Status
	known := e.RetryStatus != nil
	if known {
		recorded = *e.RetryStatus
	}
	target := lifecycle.RetryTarget(recorded, known)

	if err := s.moveBuffer(ctx, id, lifecycle.StatusError, target); err != nil {
		return 0, err
	}
	return target, nil
}

// mapUpdateRace resolves a failed conditional UPDATE on a buffer row.
// The statement never changes the id, so the only constraint it can
// violate is the primary key index rewritten by a concurrent
// transaction on the same row: DuckDB surfaces that lost race as a
// constraint error instead of a zero-row result. The loser re-reads and
// retries exactly as if the condition had not matched.
func (s *Store) mapUpdateRace(ctx context.Context, err error, id int64, what string) error {
	if !isConstraintErr(err) {
		return fmt.Errorf("%s: %w", what, err)
	}

	var exists bool
	qerr := s.db.QueryRowContext(ctx, `SELECT count(*) > 0 FROM buffers WHERE id = ?`, id).Scan(&exists)
	if qerr != nil {
		return fmt.Errorf("check buffer: %w", qerr)
	}
	if !exists {
		return errors.ErrBufferNotFound
	}
	return errors.ErrStaleState
}

// checkMoved maps a zero-row UPDATE to not-found or stale-state.
func (s *Store) checkMoved(ctx context.Context, result sql.Result, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT count(*) > 0 FROM buffers WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check buffer: %w", err)
	}
	if !exists {
		return errors.ErrBufferNotFound
	}
	return errors.ErrStaleState
}
