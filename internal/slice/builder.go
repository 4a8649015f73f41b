// LOCATION: internal/slice/builder.go
//
// Slice creation and resolution. The builder validates a requested range
// against the owning model's indexing scheme before anything touches the
// store, and resolution hands back a streaming cursor over the samples
// the descriptor covers at read time.

package slice

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/xtxerr/depot/internal/catalog"
	"github.com/xtxerr/depot/internal/errors"
	"github.com/xtxerr/depot/internal/logging"
	"github.com/xtxerr/depot/internal/scheme"
	"github.com/xtxerr/depot/internal/store"
	"github.com/xtxerr/depot/internal/validation"
)

var log = logging.Component("slice")

// Builder creates, resolves, and maintains slice descriptors.
type Builder struct {
	store   *store.Store
	catalog catalog.Catalog
}

// NewBuilder creates a slice builder on top of the given store and catalog.
func NewBuilder(s *store.Store, c catalog.Catalog) *Builder {
	return &Builder{store: s, catalog: c}
}

// Request describes a slice to create. Begin and End are positions in
// the model's indexing scheme; build them with scheme.At, scheme.AtIndex,
// or scheme.AtBoth to match the model's mode.
type Request struct {
	DeviceID    uuid.UUID
	ModelID     uuid.UUID
	Begin       scheme.Position
	End         scheme.Position
	Name        string
	Description string
}

// Update is a partial slice update. Nil fields keep the stored value.
type Update struct {
	Name        *string
	Description *string
	Begin       *scheme.Position
	End         *scheme.Position
}

// Create validates the request against the model's scheme and persists
// the descriptor. Positions are stored canonicalized, so two requests
// naming the same instant with different sub-second precision produce
// identical descriptors.
func (b *Builder) Create(ctx context.Context, req Request) (*store.Slice, error) {
	if err := validation.ValidateEntityName(req.Name); err != nil {
		return nil, errors.NewValidation("name", err.Error())
	}
	if err := validation.ValidateDescription(req.Description); err != nil {
		return nil, errors.NewValidation("description", err.Error())
	}

	model, err := b.catalog.GetModel(ctx, req.ModelID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.Wrapf(errors.ErrUnknownReference, "model %s", req.ModelID)
		}
		return nil, err
	}
	if _, err := b.catalog.GetDevice(ctx, req.DeviceID); err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.Wrapf(errors.ErrUnknownReference, "device %s", req.DeviceID)
		}
		return nil, err
	}

	sc := model.Scheme()
	if err := sc.Validate(req.Begin); err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	if err := sc.Validate(req.End); err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}
	if err := sc.ValidateRange(req.Begin, req.End); err != nil {
		return nil, err
	}

	sl := &store.Slice{
		DeviceID:    req.DeviceID,
		ModelID:     req.ModelID,
		Begin:       sc.Canonical(req.Begin),
		End:         sc.Canonical(req.End),
		Name:        req.Name,
		Description: req.Description,
	}
	id, err := b.store.InsertSlice(ctx, sl)
	if err != nil {
		return nil, err
	}
	sl.ID = id

	log.Debug("slice created",
		"id", id,
		"device", req.DeviceID,
		"model", req.ModelID,
		"name", req.Name)
	return sl, nil
}

// Get returns the slice descriptor by id.
func (b *Builder) Get(ctx context.Context, id int64) (*store.Slice, error) {
	return b.store.GetSlice(ctx, id)
}

// Resolve looks up the descriptor and opens a cursor over the samples it
// covers. Samples arrive in the model's canonical order. The caller owns
// the cursor and must close it.
func (b *Builder) Resolve(ctx context.Context, id int64) (*store.SampleCursor, error) {
	sl, err := b.store.GetSlice(ctx, id)
	if err != nil {
		return nil, err
	}
	return b.store.ScanRange(ctx, sl.DeviceID, sl.ModelID, sl.Begin, sl.End)
}

// Update applies a partial update to the descriptor. Nil fields are left
// untouched. When either bound changes, the pair is re-validated against
// the model's scheme.
func (b *Builder) Update(ctx context.Context, id int64, upd Update) error {
	if upd.Name != nil {
		if err := validation.ValidateEntityName(*upd.Name); err != nil {
			return errors.NewValidation("name", err.Error())
		}
	}
	if upd.Description != nil {
		if err := validation.ValidateDescription(*upd.Description); err != nil {
			return errors.NewValidation("description", err.Error())
		}
	}

	var begin, end *scheme.Position
	if upd.Begin != nil || upd.End != nil {
		sl, err := b.store.GetSlice(ctx, id)
		if err != nil {
			return err
		}
		model, err := b.catalog.GetModel(ctx, sl.ModelID)
		if err != nil {
			return err
		}
		sc := model.Scheme()

		nb, ne := sl.Begin, sl.End
		if upd.Begin != nil {
			if err := sc.Validate(*upd.Begin); err != nil {
				return fmt.Errorf("begin: %w", err)
			}
			nb = sc.Canonical(*upd.Begin)
			begin = &nb
		}
		if upd.End != nil {
			if err := sc.Validate(*upd.End); err != nil {
				return fmt.Errorf("end: %w", err)
			}
			ne = sc.Canonical(*upd.End)
			end = &ne
		}
		if err := sc.ValidateRange(nb, ne); err != nil {
			return err
		}
	}

	return b.store.UpdateSlice(ctx, id, upd.Name, upd.Description, begin, end)
}

// Delete removes the slice descriptor. Sample data is untouched.
func (b *Builder) Delete(ctx context.Context, id int64) error {
	if err := b.store.DeleteSlice(ctx, id); err != nil {
		return err
	}
	log.Debug("slice deleted", "id", id)
	return nil
}

// FindByName lists slices whose name contains the given fragment.
func (b *Builder) FindByName(ctx context.Context, name string) ([]*store.Slice, error) {
	return b.store.ListSlicesByName(ctx, name)
}

// FindByDevice lists slices over the given device, optionally narrowed
// to one model.
func (b *Builder) FindByDevice(ctx context.Context, deviceID uuid.UUID, modelID *uuid.UUID) ([]*store.Slice, error) {
	if modelID != nil {
		return b.store.ListSlicesByDeviceModel(ctx, deviceID, *modelID)
	}
	return b.store.ListSlicesByDevice(ctx, deviceID)
}

// FindByModel lists slices over the given model across all devices.
func (b *Builder) FindByModel(ctx context.Context, modelID uuid.UUID) ([]*store.Slice, error) {
	return b.store.ListSlicesByModel(ctx, modelID)
}
