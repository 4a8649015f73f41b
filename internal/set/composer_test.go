package set_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/xtxerr/depot/internal/catalog"
	"github.com/xtxerr/depot/internal/codec"
	"github.com/xtxerr/depot/internal/errors"
	"github.com/xtxerr/depot/internal/scheme"
	"github.com/xtxerr/depot/internal/set"
	"github.com/xtxerr/depot/internal/store"
	depottest "github.com/xtxerr/depot/internal/testing"
)

func newComposer(t *testing.T) (*set.Composer, *store.Store) {
	t.Helper()

	s := depottest.NewStore(t)
	depottest.SeedStoreCatalog(t, s)
	return set.NewComposer(s, depottest.SeedCatalog()), s
}

func pairPlaceholders() []set.Placeholder {
	return []set.Placeholder{
		{TemplateIndex: 0, TypeID: depottest.TypeID, ModelID: depottest.TimestampModelID},
		{TemplateIndex: 1, TypeID: depottest.TypeID, ModelID: depottest.IndexModelID},
	}
}

func TestDefineTemplate(t *testing.T) {
	c, _ := newComposer(t)
	ctx := t.Context()

	tmpl, err := c.DefineTemplate(ctx, "rig", "", pairPlaceholders())
	if err != nil {
		t.Fatalf("define: %v", err)
	}

	got, err := c.GetTemplate(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "rig" || len(got.Members) != 2 {
		t.Fatalf("template = %+v", got)
	}
	for _, m := range got.Members {
		if len(m.DataIndex) != 0 {
			t.Errorf("placeholder %d carries a sub-range, want whole", m.TemplateIndex)
		}
	}
}

func TestDefineTemplateValidation(t *testing.T) {
	c, _ := newComposer(t)
	ctx := t.Context()

	cases := []struct {
		name         string
		tmplName     string
		placeholders []set.Placeholder
		want         error
	}{
		{"empty name", "", pairPlaceholders(), errors.ErrInvalidConfig},
		{"no placeholders", "rig", nil, errors.ErrInvalidConfig},
		{
			"duplicate position", "rig",
			[]set.Placeholder{
				{TemplateIndex: 0, TypeID: depottest.TypeID, ModelID: depottest.TimestampModelID},
				{TemplateIndex: 0, TypeID: depottest.TypeID, ModelID: depottest.IndexModelID},
			},
			errors.ErrDuplicatePosition,
		},
		{
			"unknown type", "rig",
			[]set.Placeholder{{TemplateIndex: 0, TypeID: uuid.New(), ModelID: depottest.TimestampModelID}},
			errors.ErrUnknownReference,
		},
		{
			"unknown model", "rig",
			[]set.Placeholder{{TemplateIndex: 0, TypeID: depottest.TypeID, ModelID: uuid.New()}},
			errors.ErrUnknownReference,
		},
		{
			"sub-range wrong shape", "rig",
			[]set.Placeholder{{
				TemplateIndex: 0, TypeID: depottest.TypeID, ModelID: depottest.TimestampModelID,
				SubRange: &set.SubRange{Begin: scheme.AtIndex(1), End: scheme.AtIndex(2)},
			}},
			errors.ErrSchemeMismatch,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := c.DefineTemplate(ctx, tc.tmplName, "", tc.placeholders); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestInstantiate(t *testing.T) {
	c, _ := newComposer(t)
	ctx := t.Context()

	tmpl, err := c.DefineTemplate(ctx, "rig", "", pairPlaceholders())
	if err != nil {
		t.Fatalf("define: %v", err)
	}

	// Two bindings at position 1 get consecutive numbers.
	st, err := c.Instantiate(ctx, tmpl.ID, "rig-1", "", []set.Binding{
		{Position: 0, DeviceID: depottest.DeviceID},
		{Position: 1, DeviceID: depottest.DeviceID},
		{Position: 1, DeviceID: depottest.DeviceID},
	})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	got, err := c.Get(ctx, st.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Members) != 3 {
		t.Fatalf("members = %+v", got.Members)
	}
	numbers := map[int][]int{}
	for _, m := range got.Members {
		numbers[m.Position] = append(numbers[m.Position], m.Number)
		// Members inherit the placeholder's model.
		want := depottest.TimestampModelID
		if m.Position == 1 {
			want = depottest.IndexModelID
		}
		if m.ModelID != want {
			t.Errorf("member %d/%d model = %s", m.Position, m.Number, m.ModelID)
		}
	}
	if len(numbers[1]) != 2 || numbers[1][0] != 0 || numbers[1][1] != 1 {
		t.Errorf("position 1 numbers = %v, want [0 1]", numbers[1])
	}
}

func TestInstantiateBindingChecks(t *testing.T) {
	s := depottest.NewStore(t)
	depottest.SeedStoreCatalog(t, s)
	ctx := t.Context()

	// A second device type that no placeholder accepts.
	mem := depottest.SeedCatalog()
	otherType := uuid.New()
	otherDevice := uuid.New()
	mem.PutDeviceType(&catalog.DeviceType{ID: otherType, Name: "actuator"})
	mem.PutDevice(&catalog.Device{
		ID:           otherDevice,
		GatewayID:    depottest.GatewayID,
		TypeID:       otherType,
		SerialNumber: "SN-0002",
		Name:         "actuator-1",
	})
	c := set.NewComposer(s, mem)

	tmpl, err := c.DefineTemplate(ctx, "rig", "", pairPlaceholders())
	if err != nil {
		t.Fatalf("define: %v", err)
	}

	if _, err := c.Instantiate(ctx, tmpl.ID, "rig-1", "", []set.Binding{
		{Position: 0, DeviceID: uuid.New()},
	}); !errors.Is(err, errors.ErrUnknownReference) {
		t.Errorf("unknown device: got %v", err)
	}

	if _, err := c.Instantiate(ctx, tmpl.ID, "rig-1", "", []set.Binding{
		{Position: 0, DeviceID: otherDevice},
	}); !errors.Is(err, errors.ErrTypeMismatch) {
		t.Errorf("mismatched device type: got %v", err)
	}

	if _, err := c.Instantiate(ctx, tmpl.ID, "rig-1", "", []set.Binding{
		{Position: 9, DeviceID: depottest.DeviceID},
	}); !errors.Is(err, errors.ErrInvalidConfig) {
		t.Errorf("unknown position: got %v", err)
	}
}

func TestAddAndRemoveMember(t *testing.T) {
	c, _ := newComposer(t)
	ctx := t.Context()

	tmpl, err := c.DefineTemplate(ctx, "rig", "", pairPlaceholders())
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	st, err := c.Instantiate(ctx, tmpl.ID, "rig-1", "", []set.Binding{
		{Position: 0, DeviceID: depottest.DeviceID},
	})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	// Numbers continue the per-position sequence.
	m, err := c.AddMember(ctx, st.ID, 0, depottest.DeviceID)
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if m.Number != 1 {
		t.Errorf("number = %d, want 1", m.Number)
	}

	if err := c.RemoveMember(ctx, st.ID, 0, 1); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	got, err := c.Get(ctx, st.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Members) != 1 {
		t.Errorf("members = %+v", got.Members)
	}
}

func TestResolverSubRange(t *testing.T) {
	c, s := newComposer(t)
	ctx := t.Context()

	for i := int32(0); i < 10; i++ {
		err := s.InsertSample(ctx, &store.Sample{
			DeviceID: depottest.DeviceID,
			ModelID:  depottest.IndexModelID,
			Position: scheme.AtIndex(i),
			Payload:  codec.Pack([]codec.Value{codec.U32(uint32(i)), codec.F64(0)}),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	tmpl, err := c.DefineTemplate(ctx, "rig", "", []set.Placeholder{
		{
			TemplateIndex: 0, TypeID: depottest.TypeID, ModelID: depottest.IndexModelID,
			SubRange: &set.SubRange{Begin: scheme.AtIndex(3), End: scheme.AtIndex(6)},
		},
		{TemplateIndex: 1, TypeID: depottest.TypeID, ModelID: depottest.IndexModelID},
	})
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	st, err := c.Instantiate(ctx, tmpl.ID, "rig-1", "", []set.Binding{
		{Position: 0, DeviceID: depottest.DeviceID},
		{Position: 1, DeviceID: depottest.DeviceID},
	})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	r, err := c.NewResolver(ctx, st.ID)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}

	narrowed, ok := r.Member(0, 0)
	if !ok {
		t.Fatal("member 0/0 missing")
	}
	if narrowed.Whole {
		t.Error("member 0/0 must carry a sub-range")
	}
	if narrowed.Begin.Index != 3 || narrowed.End.Index != 6 {
		t.Errorf("sub-range = %d..%d, want 3..6", narrowed.Begin.Index, narrowed.End.Index)
	}

	whole, ok := r.Member(1, 0)
	if !ok {
		t.Fatal("member 1/0 missing")
	}
	if !whole.Whole {
		t.Error("member 1/0 must cover the whole range")
	}

	if got := r.MembersOf(depottest.DeviceID); len(got) != 2 {
		t.Errorf("MembersOf = %d members, want 2", len(got))
	}

	// Member resolution honors the sub-range.
	count := func(position, number, want int) {
		t.Helper()
		cur, err := c.ResolveMember(ctx, st.ID, position, number)
		if err != nil {
			t.Fatalf("resolve %d/%d: %v", position, number, err)
		}
		defer cur.Close()
		n := 0
		for cur.Next() {
			n++
		}
		if err := cur.Err(); err != nil {
			t.Fatalf("cursor: %v", err)
		}
		if n != want {
			t.Errorf("member %d/%d resolved %d samples, want %d", position, number, n, want)
		}
	}
	count(0, 0, 4)
	count(1, 0, 10)

	if _, err := c.ResolveMember(ctx, st.ID, 5, 0); !errors.IsNotFound(err) {
		t.Errorf("missing member: got %v", err)
	}
}

func TestResolverTimestampSubRange(t *testing.T) {
	c, _ := newComposer(t)
	ctx := t.Context()

	begin := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	end := begin.Add(time.Hour)
	tmpl, err := c.DefineTemplate(ctx, "rig", "", []set.Placeholder{
		{
			TemplateIndex: 0, TypeID: depottest.TypeID, ModelID: depottest.TimestampModelID,
			SubRange: &set.SubRange{Begin: scheme.At(begin), End: scheme.At(end)},
		},
	})
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	st, err := c.Instantiate(ctx, tmpl.ID, "rig-1", "", []set.Binding{
		{Position: 0, DeviceID: depottest.DeviceID},
	})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	// The persisted key pair decodes back to the same instants.
	r, err := c.NewResolver(ctx, st.ID)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	m, ok := r.Member(0, 0)
	if !ok {
		t.Fatal("member missing")
	}
	if !m.Begin.Timestamp.Equal(begin) || !m.End.Timestamp.Equal(end) {
		t.Errorf("sub-range = %v..%v, want %v..%v", m.Begin.Timestamp, m.End.Timestamp, begin, end)
	}
}
