// LOCATION: internal/store/sets.go
//
// Set template and set persistence. A template is an ordered list of
// (device type, model) placeholders at fixed template positions; a set
// binds concrete devices to those positions. Repeated bindings at one
// position are tracked via (set_position, set_number).

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xtxerr/depot/internal/errors"
	"github.com/xtxerr/depot/internal/validation"
)

// SetTemplate is a reusable placeholder layout.
type SetTemplate struct {
	ID          uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
	Members     []SetTemplateMember
}

// SetTemplateMember is one placeholder of a template.
type SetTemplateMember struct {
	TypeID        uuid.UUID
	ModelID       uuid.UUID
	DataIndex     []byte // encoded sub-range, empty = whole range
	TemplateIndex int
}

// Set is a concrete instantiation of a template.
type Set struct {
	ID          uuid.UUID
	TemplateID  uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
	Members     []SetMember
}

// SetMember binds one concrete (device, model) pair to a template
// position. Number disambiguates repeated bindings at one position.
type SetMember struct {
	DeviceID  uuid.UUID
	ModelID   uuid.UUID
	DataIndex []byte // encoded sub-range, empty = whole range
	Position  int
	Number    int
}

// =============================================================================
// Templates
// =============================================================================

// InsertTemplate persists a template with its members atomically.
func (s *Store) InsertTemplate(ctx context.Context, t *SetTemplate) error {
	return s.TransactionContext(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO set_templates (template_id, name, description)
			VALUES (?, ?, ?)
		`, t.ID.String(), t.Name, t.Description)
		if err != nil {
			return mapConstraint(err, "insert template")
		}

		for _, m := range t.Members {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO set_template_members (template_id, type_id, model_id, data_index, template_index)
				VALUES (?, ?, ?, ?, ?)
			`, t.ID.String(), m.TypeID.String(), m.ModelID.String(), m.DataIndex, m.TemplateIndex)
			if err != nil {
				return mapConstraint(err, "insert template member")
			}
		}
		return nil
	})
}

// GetTemplate retrieves a template and its members, ordered by
// template position.
func (s *Store) GetTemplate(ctx context.Context, id uuid.UUID) (*SetTemplate, error) {
	var t SetTemplate
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT template_id, name, description, created_at
		FROM set_templates WHERE template_id = ?
	`, id.String()).Scan(&idStr, &t.Name, &t.Description, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}
	t.ID = id

	rows, err := s.db.QueryContext(ctx, `
		SELECT type_id, model_id, data_index, template_index
		FROM set_template_members
		WHERE template_id = ?
		ORDER BY template_index ASC
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query template members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m SetTemplateMember
		var typeID, modelID string
		if err := rows.Scan(&typeID, &modelID, &m.DataIndex, &m.TemplateIndex); err != nil {
			return nil, fmt.Errorf("scan template member: %w", err)
		}
		if m.TypeID, err = uuid.Parse(typeID); err != nil {
			return nil, fmt.Errorf("parse type id: %w", err)
		}
		if m.ModelID, err = uuid.Parse(modelID); err != nil {
			return nil, fmt.Errorf("parse model id: %w", err)
		}
		t.Members = append(t.Members, m)
	}
	return &t, rows.Err()
}

// ListTemplatesByName returns templates whose name contains the given
// substring. Members are not loaded.
func (s *Store) ListTemplatesByName(ctx context.Context, name string) ([]*SetTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT template_id, name, description, created_at
		FROM set_templates WHERE name LIKE ? ORDER BY name
	`, validation.SafeLikeContains(name))
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []*SetTemplate
	for rows.Next() {
		var t SetTemplate
		var idStr string
		if err := rows.Scan(&idStr, &t.Name, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		if t.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parse template id: %w", err)
		}
		templates = append(templates, &t)
	}
	return templates, rows.Err()
}

// DeleteTemplate removes a template and its members.
func (s *Store) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	return s.TransactionContext(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM set_template_members WHERE template_id = ?
		`, id.String()); err != nil {
			return fmt.Errorf("delete template members: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			DELETE FROM set_templates WHERE template_id = ?
		`, id.String())
		if err != nil {
			return fmt.Errorf("delete template: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return errors.ErrTemplateNotFound
		}
		return nil
	})
}

// =============================================================================
// Sets
// =============================================================================

// InsertSet persists a set with its members atomically.
func (s *Store) InsertSet(ctx context.Context, set *Set) error {
	return s.TransactionContext(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sets (set_id, template_id, name, description)
			VALUES (?, ?, ?, ?)
		`, set.ID.String(), set.TemplateID.String(), set.Name, set.Description)
		if err != nil {
			return mapConstraint(err, "insert set")
		}

		for _, m := range set.Members {
			if err := insertSetMember(ctx, tx, set.ID, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertSetMember(ctx context.Context, tx *sql.Tx, setID uuid.UUID, m SetMember) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO set_members (set_id, device_id, model_id, data_index, set_position, set_number)
		VALUES (?, ?, ?, ?, ?, ?)
	`, setID.String(), m.DeviceID.String(), m.ModelID.String(), m.DataIndex, m.Position, m.Number)
	return mapConstraint(err, "insert set member")
}

// GetSet retrieves a set and its members, ordered by (position, number).
func (s *Store) GetSet(ctx context.Context, id uuid.UUID) (*Set, error) {
	var set Set
	var idStr, templateID string
	err := s.db.QueryRowContext(ctx, `
		SELECT set_id, template_id, name, description, created_at
		FROM sets WHERE set_id = ?
	`, id.String()).Scan(&idStr, &templateID, &set.Name, &set.Description, &set.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.ErrSetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query set: %w", err)
	}
	set.ID = id
	if set.TemplateID, err = uuid.Parse(templateID); err != nil {
		return nil, fmt.Errorf("parse template id: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, model_id, data_index, set_position, set_number
		FROM set_members
		WHERE set_id = ?
		ORDER BY set_position ASC, set_number ASC
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query set members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m SetMember
		var deviceID, modelID string
		if err := rows.Scan(&deviceID, &modelID, &m.DataIndex, &m.Position, &m.Number); err != nil {
			return nil, fmt.Errorf("scan set member: %w", err)
		}
		if m.DeviceID, err = uuid.Parse(deviceID); err != nil {
			return nil, fmt.Errorf("parse device id: %w", err)
		}
		if m.ModelID, err = uuid.Parse(modelID); err != nil {
			return nil, fmt.Errorf("parse model id: %w", err)
		}
		set.Members = append(set.Members, m)
	}
	return &set, rows.Err()
}

// ListSetsByName returns sets whose name contains the given substring.
// Members are not loaded.
func (s *Store) ListSetsByName(ctx context.Context, name string) ([]*Set, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT set_id, template_id, name, description, created_at
		FROM sets WHERE name LIKE ? ORDER BY name
	`, validation.SafeLikeContains(name))
	if err != nil {
		return nil, fmt.Errorf("query sets: %w", err)
	}
	defer rows.Close()

	var sets []*Set
	for rows.Next() {
		var set Set
		var idStr, templateID string
		if err := rows.Scan(&idStr, &templateID, &set.Name, &set.Description, &set.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan set: %w", err)
		}
		if set.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parse set id: %w", err)
		}
		if set.TemplateID, err = uuid.Parse(templateID); err != nil {
			return nil, fmt.Errorf("parse template id: %w", err)
		}
		sets = append(sets, &set)
	}
	return sets, rows.Err()
}

// AddSetMember appends one binding to an existing set.
func (s *Store) AddSetMember(ctx context.Context, setID uuid.UUID, m SetMember) error {
	return s.TransactionContext(ctx, func(tx *sql.Tx) error {
		return insertSetMember(ctx, tx, setID, m)
	})
}

// RemoveSetMember removes one binding from a set.
func (s *Store) RemoveSetMember(ctx context.Context, setID uuid.UUID, position, number int) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM set_members WHERE set_id = ? AND set_position = ? AND set_number = ?
	`, setID.String(), position, number)
	if err != nil {
		return fmt.Errorf("remove set member: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// DeleteSet removes a set and its members.
func (s *Store) DeleteSet(ctx context.Context, id uuid.UUID) error {
	return s.TransactionContext(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM set_members WHERE set_id = ?
		`, id.String()); err != nil {
			return fmt.Errorf("delete set members: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM sets WHERE set_id = ?`, id.String())
		if err != nil {
			return fmt.Errorf("delete set: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return errors.ErrSetNotFound
		}
		return nil
	})
}
