// LOCATION: internal/set/composer.go
//
// Set templates and their instantiation. A template fixes an ordered
// list of (device type, model) placeholders; a set binds concrete
// devices into those placeholder positions. Members may narrow a
// placeholder to a sub-range of the model's samples; the sub-range is
// persisted as a pair of sortable position keys.

package set

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

var log = logging.Component("set")

// =============================================================================
// Sub-range encoding
// =============================================================================

// SubRange narrows a placeholder or member to [Begin, End] of the
// model's samples. A nil *SubRange means the whole range.
type SubRange struct {
	Begin scheme.Position
	End   scheme.Position
}

// encodeSubRange packs a sub-range as begin key followed by end key.
func encodeSubRange(sc scheme.Scheme, r *SubRange) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	if err := sc.ValidateRange(r.Begin, r.End); err != nil {
		return nil, err
	}
	bk := sc.EncodeKey(sc.Canonical(r.Begin))
	ek := sc.EncodeKey(sc.Canonical(r.End))
	out := make([]byte, 0, 2*scheme.KeySize)
	out = append(out, bk[:]...)
	return append(out, ek[:]...), nil
}

// decodeSubRange unpacks a persisted sub-range blob. Empty means the
// whole range.
func decodeSubRange(sc scheme.Scheme, data []byte) (*SubRange, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) != 2*scheme.KeySize {
		return nil, fmt.Errorf("%w: sub-range blob is %d bytes, want %d",
			errors.ErrInternal, len(data), 2*scheme.KeySize)
	}
	var bk, ek scheme.Key
	copy(bk[:], data[:scheme.KeySize])
	copy(ek[:], data[scheme.KeySize:])
	return &SubRange{Begin: sc.DecodeKey(bk), End: sc.DecodeKey(ek)}, nil
}

// =============================================================================
// Composer
// =============================================================================

// Composer defines set templates and instantiates sets from them.
type Composer struct {
	store   *store.Store
	catalog catalog.Catalog
}

// NewComposer creates a set composer on top of the given store and catalog.
func NewComposer(s *store.Store, c catalog.Catalog) *Composer {
	return &Composer{store: s, catalog: c}
}

// Placeholder describes one slot of a template before persistence.
type Placeholder struct {
	TemplateIndex int
	TypeID        uuid.UUID
	ModelID       uuid.UUID
	SubRange      *SubRange
}

// Binding assigns one concrete device to a template position.
type Binding struct {
	Position int
	DeviceID uuid.UUID
}

// DefineTemplate validates the placeholders and persists a new template.
// Template positions must be unique; every referenced device type and
// model must exist; a sub-range must fit the model's indexing scheme.
func (c *Composer) DefineTemplate(ctx context.Context, name, description string, placeholders []Placeholder) (*store.SetTemplate, error) {
	if err := validation.ValidateEntityName(name); err != nil {
		return nil, errors.NewValidation("name", err.Error())
	}
	if err := validation.ValidateDescription(description); err != nil {
		return nil, errors.NewValidation("description", err.Error())
	}
	if len(placeholders) == 0 {
		return nil, errors.NewValidation("placeholders", "template needs at least one placeholder")
	}

	seen := make(map[int]bool, len(placeholders))
	members := make([]store.SetTemplateMember, 0, len(placeholders))
	for _, p := range placeholders {
		if seen[p.TemplateIndex] {
			return nil, errors.Wrapf(errors.ErrDuplicatePosition, "template index %d", p.TemplateIndex)
		}
		seen[p.TemplateIndex] = true

		if _, err := c.catalog.GetDeviceType(ctx, p.TypeID); err != nil {
			if errors.IsNotFound(err) {
				return nil, errors.Wrapf(errors.ErrUnknownReference, "device type %s", p.TypeID)
			}
			return nil, err
		}
		model, err := c.catalog.GetModel(ctx, p.ModelID)
		if err != nil {
			if errors.IsNotFound(err) {
				return nil, errors.Wrapf(errors.ErrUnknownReference, "model %s", p.ModelID)
			}
			return nil, err
		}

		data, err := encodeSubRange(model.Scheme(), p.SubRange)
		if err != nil {
			return nil, fmt.Errorf("placeholder %d: %w", p.TemplateIndex, err)
		}
		members = append(members, store.SetTemplateMember{
			TypeID:        p.TypeID,
			ModelID:       p.ModelID,
			DataIndex:     data,
			TemplateIndex: p.TemplateIndex,
		})
	}

	tmpl := &store.SetTemplate{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		Members:     members,
	}
	if err := c.store.InsertTemplate(ctx, tmpl); err != nil {
		return nil, err
	}

	log.Debug("template defined", "id", tmpl.ID, "name", name, "placeholders", len(members))
	return tmpl, nil
}

// GetTemplate returns a template with its placeholders.
func (c *Composer) GetTemplate(ctx context.Context, id uuid.UUID) (*store.SetTemplate, error) {
	return c.store.GetTemplate(ctx, id)
}

// FindTemplatesByName lists templates whose name contains the fragment.
func (c *Composer) FindTemplatesByName(ctx context.Context, name string) ([]*store.SetTemplate, error) {
	return c.store.ListTemplatesByName(ctx, name)
}

// DeleteTemplate removes a template and its placeholders.
func (c *Composer) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	return c.store.DeleteTemplate(ctx, id)
}

// Instantiate creates a set from a template by binding devices to
// template positions. Each bound device's type must match the
// placeholder's device type. Multiple bindings at one position get
// consecutive member numbers in binding order.
func (c *Composer) Instantiate(ctx context.Context, templateID uuid.UUID, name, description string, bindings []Binding) (*store.Set, error) {
	if err := validation.ValidateEntityName(name); err != nil {
		return nil, errors.NewValidation("name", err.Error())
	}
	if err := validation.ValidateDescription(description); err != nil {
		return nil, errors.NewValidation("description", err.Error())
	}

	tmpl, err := c.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	slots := make(map[int]store.SetTemplateMember, len(tmpl.Members))
	for _, m := range tmpl.Members {
		slots[m.TemplateIndex] = m
	}

	nextNumber := make(map[int]int)
	members := make([]store.SetMember, 0, len(bindings))
	for _, b := range bindings {
		slot, ok := slots[b.Position]
		if !ok {
			return nil, errors.NewInvalidValue("position", b.Position, "template has no such placeholder")
		}
		member, err := c.bind(ctx, slot, b.DeviceID)
		if err != nil {
			return nil, err
		}
		member.Number = nextNumber[b.Position]
		nextNumber[b.Position]++
		members = append(members, member)
	}

	set := &store.Set{
		ID:          uuid.New(),
		TemplateID:  templateID,
		Name:        name,
		Description: description,
		Members:     members,
	}
	if err := c.store.InsertSet(ctx, set); err != nil {
		return nil, err
	}

	log.Debug("set instantiated",
		"id", set.ID,
		"template", templateID,
		"name", name,
		"members", len(members))
	return set, nil
}

// bind checks one device against a placeholder and produces the member
// row. The member inherits the placeholder's model and sub-range.
func (c *Composer) bind(ctx context.Context, slot store.SetTemplateMember, deviceID uuid.UUID) (store.SetMember, error) {
	device, err := c.catalog.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.IsNotFound(err) {
			return store.SetMember{}, errors.Wrapf(errors.ErrUnknownReference, "device %s", deviceID)
		}
		return store.SetMember{}, err
	}
	if device.TypeID != slot.TypeID {
		return store.SetMember{}, errors.Wrapf(errors.ErrTypeMismatch,
			"device %s has type %s, placeholder %d wants %s",
			deviceID, device.TypeID, slot.TemplateIndex, slot.TypeID)
	}
	if _, err := c.catalog.GetModel(ctx, slot.ModelID); err != nil {
		if errors.IsNotFound(err) {
			return store.SetMember{}, errors.Wrapf(errors.ErrModelMismatch,
				"placeholder %d references missing model %s", slot.TemplateIndex, slot.ModelID)
		}
		return store.SetMember{}, err
	}
	return store.SetMember{
		DeviceID:  deviceID,
		ModelID:   slot.ModelID,
		DataIndex: slot.DataIndex,
		Position:  slot.TemplateIndex,
	}, nil
}

// Get returns a set with its members.
func (c *Composer) Get(ctx context.Context, id uuid.UUID) (*store.Set, error) {
	return c.store.GetSet(ctx, id)
}

// FindByName lists sets whose name contains the fragment.
func (c *Composer) FindByName(ctx context.Context, name string) ([]*store.Set, error) {
	return c.store.ListSetsByName(ctx, name)
}

// AddMember binds one more device into an existing set. The member
// number continues the sequence at its position.
func (c *Composer) AddMember(ctx context.Context, setID uuid.UUID, position int, deviceID uuid.UUID) (store.SetMember, error) {
	set, err := c.store.GetSet(ctx, setID)
	if err != nil {
		return store.SetMember{}, err
	}
	tmpl, err := c.store.GetTemplate(ctx, set.TemplateID)
	if err != nil {
		return store.SetMember{}, err
	}

	var slot *store.SetTemplateMember
	for i := range tmpl.Members {
		if tmpl.Members[i].TemplateIndex == position {
			slot = &tmpl.Members[i]
			break
		}
	}
	if slot == nil {
		return store.SetMember{}, errors.NewInvalidValue("position", position, "template has no such placeholder")
	}

	member, err := c.bind(ctx, *slot, deviceID)
	if err != nil {
		return store.SetMember{}, err
	}
	for _, m := range set.Members {
		if m.Position == position && m.Number >= member.Number {
			member.Number = m.Number + 1
		}
	}

	if err := c.store.AddSetMember(ctx, setID, member); err != nil {
		return store.SetMember{}, err
	}
	return member, nil
}

// RemoveMember removes one binding from a set.
func (c *Composer) RemoveMember(ctx context.Context, setID uuid.UUID, position, number int) error {
	return c.store.RemoveSetMember(ctx, setID, position, number)
}

// Delete removes a set and its members. Sample data is untouched.
func (c *Composer) Delete(ctx context.Context, id uuid.UUID) error {
	return c.store.DeleteSet(ctx, id)
}

// =============================================================================
// Resolution
// =============================================================================

// ResolvedMember is one member with its sub-range decoded against the
// model's scheme. Begin and End are meaningful only when Whole is false.
type ResolvedMember struct {
	Member store.SetMember
	Whole  bool
	Begin  scheme.Position
	End    scheme.Position
}

// Resolver answers member lookups for one set without further store
// round-trips. Build it once per set; lookups are map hits afterwards.
type Resolver struct {
	set      *store.Set
	byKey    map[memberKey]ResolvedMember
	byDevice map[uuid.UUID][]ResolvedMember
}

type memberKey struct {
	position int
	number   int
}

// NewResolver decodes every member of the set against its model's
// scheme and indexes them by (position, number) and by device.
func (c *Composer) NewResolver(ctx context.Context, setID uuid.UUID) (*Resolver, error) {
	set, err := c.store.GetSet(ctx, setID)
	if err != nil {
		return nil, err
	}

	r := &Resolver{
		set:      set,
		byKey:    make(map[memberKey]ResolvedMember, len(set.Members)),
		byDevice: make(map[uuid.UUID][]ResolvedMember),
	}
	for _, m := range set.Members {
		model, err := c.catalog.GetModel(ctx, m.ModelID)
		if err != nil {
			return nil, err
		}
		sub, err := decodeSubRange(model.Scheme(), m.DataIndex)
		if err != nil {
			return nil, fmt.Errorf("member %d/%d: %w", m.Position, m.Number, err)
		}
		rm := ResolvedMember{Member: m, Whole: sub == nil}
		if sub != nil {
			rm.Begin, rm.End = sub.Begin, sub.End
		}
		r.byKey[memberKey{m.Position, m.Number}] = rm
		r.byDevice[m.DeviceID] = append(r.byDevice[m.DeviceID], rm)
	}
	return r, nil
}

// Member returns the resolved member at (position, number).
func (r *Resolver) Member(position, number int) (ResolvedMember, bool) {
	rm, ok := r.byKey[memberKey{position, number}]
	return rm, ok
}

// MembersOf returns every resolved member bound to the given device.
func (r *Resolver) MembersOf(deviceID uuid.UUID) []ResolvedMember {
	return r.byDevice[deviceID]
}

// Set returns the underlying set.
func (r *Resolver) Set() *store.Set {
	return r.set
}

// ResolveMember opens a cursor over the samples one member covers: its
// sub-range when it has one, otherwise everything the (device, model)
// pair holds. The caller owns the cursor.
func (c *Composer) ResolveMember(ctx context.Context, setID uuid.UUID, position, number int) (*store.SampleCursor, error) {
	r, err := c.NewResolver(ctx, setID)
	if err != nil {
		return nil, err
	}
	rm, ok := r.Member(position, number)
	if !ok {
		return nil, errors.NewNotFound("set member", fmt.Sprintf("%s[%d/%d]", setID, position, number))
	}
	if rm.Whole {
		return c.store.ScanAll(ctx, rm.Member.DeviceID, rm.Member.ModelID)
	}
	return c.store.ScanRange(ctx, rm.Member.DeviceID, rm.Member.ModelID, rm.Begin, rm.End)
}
