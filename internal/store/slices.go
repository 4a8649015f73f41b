// LOCATION: internal/store/slices.go
//
// Slice descriptor persistence. A slice names a contiguous range of one
// (device, model) pair's samples; it never copies sample bytes, so
// deleting a slice only removes the descriptor.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xtxerr/depot/internal/errors"
	"github.com/xtxerr/depot/internal/scheme"
	"github.com/xtxerr/depot/internal/validation"
)

// Slice is a named range descriptor over one device+model's samples.
type Slice struct {
	ID          int64
	DeviceID    uuid.UUID
	ModelID     uuid.UUID
	Begin       scheme.Position
	End         scheme.Position
	Name        string
	Description string
	CreatedAt   time.Time
}

// InsertSlice persists a slice descriptor and returns its id.
// Positions must be canonical for the model's scheme.
func (s *Store) InsertSlice(ctx context.Context, sl *Slice) (int64, error) {
	tb, ib := positionCols(sl.Begin)
	te, ie := positionCols(sl.End)

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO slices (device_id, model_id, ts_begin_micros, ts_end_micros,
		                    index_begin, index_end, name, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, sl.DeviceID.String(), sl.ModelID.String(), tb, te, ib, ie,
		sl.Name, sl.Description).Scan(&id)
	if err != nil {
		return 0, mapConstraint(err, "insert slice")
	}

	sl.ID = id
	return id, nil
}

const sliceColumns = `id, device_id, model_id, ts_begin_micros, ts_end_micros,
       index_begin, index_end, name, description, created_at`

func scanSlice(row interface{ Scan(...interface{}) error }) (*Slice, error) {
	var sl Slice
	var deviceID, modelID string
	var tb, te int64
	var ib, ie int32

	if err := row.Scan(&sl.ID, &deviceID, &modelID, &tb, &te, &ib, &ie,
		&sl.Name, &sl.Description, &sl.CreatedAt); err != nil {
		return nil, err
	}

	var err error
	if sl.DeviceID, err = uuid.Parse(deviceID); err != nil {
		return nil, fmt.Errorf("parse device id: %w", err)
	}
	if sl.ModelID, err = uuid.Parse(modelID); err != nil {
		return nil, fmt.Errorf("parse model id: %w", err)
	}
	sl.Begin = colsPosition(tb, ib)
	sl.End = colsPosition(te, ie)
	return &sl, nil
}

// GetSlice retrieves a slice descriptor by id.
func (s *Store) GetSlice(ctx context.Context, id int64) (*Slice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sliceColumns+` FROM slices WHERE id = ?
	`, id)

	sl, err := scanSlice(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrSliceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query slice: %w", err)
	}
	return sl, nil
}

// ListSlicesByName returns slices whose name contains the given
// substring.
func (s *Store) ListSlicesByName(ctx context.Context, name string) ([]*Slice, error) {
	return s.listSlices(ctx, `WHERE name LIKE ?`, validation.SafeLikeContains(name))
}

// ListSlicesByDevice returns the slices referencing a device.
func (s *Store) ListSlicesByDevice(ctx context.Context, deviceID uuid.UUID) ([]*Slice, error) {
	return s.listSlices(ctx, `WHERE device_id = ?`, deviceID.String())
}

// ListSlicesByModel returns the slices referencing a model.
func (s *Store) ListSlicesByModel(ctx context.Context, modelID uuid.UUID) ([]*Slice, error) {
	return s.listSlices(ctx, `WHERE model_id = ?`, modelID.String())
}

// ListSlicesByDeviceModel returns the slices of one (device, model) pair.
func (s *Store) ListSlicesByDeviceModel(ctx context.Context, deviceID, modelID uuid.UUID) ([]*Slice, error) {
	return s.listSlices(ctx, `WHERE device_id = ? AND model_id = ?`,
		deviceID.String(), modelID.String())
}

func (s *Store) listSlices(ctx context.Context, where string, args ...interface{}) ([]*Slice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sliceColumns+` FROM slices `+where+` ORDER BY id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query slices: %w", err)
	}
	defer rows.Close()

	var slices []*Slice
	for rows.Next() {
		sl, err := scanSlice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slice: %w", err)
		}
		slices = append(slices, sl)
	}
	return slices, rows.Err()
}

// UpdateSlice updates the mutable fields of a slice descriptor. Nil
// arguments leave the stored value untouched.
func (s *Store) UpdateSlice(ctx context.Context, id int64, name, description *string, begin, end *scheme.Position) error {
	sl, err := s.GetSlice(ctx, id)
	if err != nil {
		return err
	}

	if name != nil {
		sl.Name = *name
	}
	if description != nil {
		sl.Description = *description
	}
	if begin != nil {
		sl.Begin = *begin
	}
	if end != nil {
		sl.End = *end
	}

	tb, ib := positionCols(sl.Begin)
	te, ie := positionCols(sl.End)

	_, err = s.db.ExecContext(ctx, `
		UPDATE slices
		SET name = ?, description = ?, ts_begin_micros = ?, ts_end_micros = ?,
		    index_begin = ?, index_end = ?
		WHERE id = ?
	`, sl.Name, sl.Description, tb, te, ib, ie, id)
	if err != nil {
		return fmt.Errorf("update slice: %w", err)
	}
	return nil
}

// DeleteSlice removes a slice descriptor. The underlying samples are
// never touched.
func (s *Store) DeleteSlice(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM slices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete slice: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return errors.ErrSliceNotFound
	}
	return nil
}
