package slice_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/xtxerr/depot/internal/codec"
	"github.com/xtxerr/depot/internal/errors"
	"github.com/xtxerr/depot/internal/scheme"
	"github.com/xtxerr/depot/internal/slice"
	"github.com/xtxerr/depot/internal/store"
	depottest "github.com/xtxerr/depot/internal/testing"
)

func newBuilder(t *testing.T) (*slice.Builder, *store.Store) {
	t.Helper()

	s := depottest.NewStore(t)
	depottest.SeedStoreCatalog(t, s)
	return slice.NewBuilder(s, depottest.SeedCatalog()), s
}

func TestCreate(t *testing.T) {
	b, _ := newBuilder(t)

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	sl, err := b.Create(t.Context(), slice.Request{
		DeviceID: depottest.DeviceID,
		ModelID:  depottest.TimestampModelID,
		Begin:    scheme.At(ts),
		End:      scheme.At(ts.Add(time.Hour)),
		Name:     "noon-hour",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sl.ID == 0 {
		t.Error("id not assigned")
	}

	got, err := b.Get(t.Context(), sl.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "noon-hour" {
		t.Errorf("name = %q", got.Name)
	}
}

func TestCreateCanonicalizesBounds(t *testing.T) {
	b, _ := newBuilder(t)

	// Sub-second precision collapses for second-resolution models.
	ts := time.Date(2024, 6, 1, 12, 0, 0, 750_000_000, time.UTC)
	sl, err := b.Create(t.Context(), slice.Request{
		DeviceID: depottest.DeviceID,
		ModelID:  depottest.TimestampModelID,
		Begin:    scheme.At(ts),
		End:      scheme.At(ts.Add(time.Minute)),
		Name:     "window",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sl.Begin.Timestamp.Nanosecond() != 0 {
		t.Errorf("begin not canonical: %v", sl.Begin.Timestamp)
	}
}

func TestCreateValidation(t *testing.T) {
	b, _ := newBuilder(t)
	ctx := t.Context()
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		req  slice.Request
		want error
	}{
		{
			name: "empty name",
			req: slice.Request{
				DeviceID: depottest.DeviceID, ModelID: depottest.TimestampModelID,
				Begin: scheme.At(ts), End: scheme.At(ts),
			},
			want: errors.ErrInvalidConfig,
		},
		{
			name: "unknown device",
			req: slice.Request{
				DeviceID: uuid.New(), ModelID: depottest.TimestampModelID,
				Begin: scheme.At(ts), End: scheme.At(ts), Name: "w",
			},
			want: errors.ErrUnknownReference,
		},
		{
			name: "unknown model",
			req: slice.Request{
				DeviceID: depottest.DeviceID, ModelID: uuid.New(),
				Begin: scheme.At(ts), End: scheme.At(ts), Name: "w",
			},
			want: errors.ErrUnknownReference,
		},
		{
			name: "wrong position shape",
			req: slice.Request{
				DeviceID: depottest.DeviceID, ModelID: depottest.TimestampModelID,
				Begin: scheme.AtIndex(1), End: scheme.AtIndex(2), Name: "w",
			},
			want: errors.ErrSchemeMismatch,
		},
		{
			name: "inverted range",
			req: slice.Request{
				DeviceID: depottest.DeviceID, ModelID: depottest.TimestampModelID,
				Begin: scheme.At(ts.Add(time.Hour)), End: scheme.At(ts), Name: "w",
			},
			want: errors.ErrInvalidRange,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := b.Create(ctx, c.req); !errors.Is(err, c.want) {
				t.Errorf("got %v, want %v", err, c.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	b, s := newBuilder(t)
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

	sl, err := b.Create(ctx, slice.Request{
		DeviceID: depottest.DeviceID,
		ModelID:  depottest.IndexModelID,
		Begin:    scheme.AtIndex(2),
		End:      scheme.AtIndex(5),
		Name:     "middle",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cur, err := b.Resolve(ctx, sl.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer cur.Close()

	var indices []int32
	for cur.Next() {
		indices = append(indices, cur.Sample().Position.Index)
	}
	if err := cur.Err(); err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if len(indices) != 4 || indices[0] != 2 || indices[3] != 5 {
		t.Errorf("resolved indices = %v, want 2..5", indices)
	}

	if _, err := b.Resolve(ctx, 99999); !errors.Is(err, errors.ErrSliceNotFound) {
		t.Errorf("missing slice: expected ErrSliceNotFound, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	b, _ := newBuilder(t)
	ctx := t.Context()

	sl, err := b.Create(ctx, slice.Request{
		DeviceID: depottest.DeviceID,
		ModelID:  depottest.IndexModelID,
		Begin:    scheme.AtIndex(10),
		End:      scheme.AtIndex(20),
		Name:     "window",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "renamed"
	end := scheme.AtIndex(30)
	if err := b.Update(ctx, sl.ID, slice.Update{Name: &name, End: &end}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := b.Get(ctx, sl.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "renamed" || got.End.Index != 30 {
		t.Errorf("slice = %+v", got)
	}

	// Moving one bound past the other fails, leaving the row untouched.
	bad := scheme.AtIndex(5)
	if err := b.Update(ctx, sl.ID, slice.Update{End: &bad}); !errors.Is(err, errors.ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
	got, _ = b.Get(ctx, sl.ID)
	if got.End.Index != 30 {
		t.Errorf("end changed by rejected update: %d", got.End.Index)
	}
}

func TestFind(t *testing.T) {
	b, _ := newBuilder(t)
	ctx := t.Context()

	mk := func(model uuid.UUID, name string) {
		t.Helper()
		_, err := b.Create(ctx, slice.Request{
			DeviceID: depottest.DeviceID,
			ModelID:  model,
			Begin:    scheme.AtIndex(0),
			End:      scheme.AtIndex(10),
			Name:     name,
		})
		if err != nil {
			t.Fatalf("create %q: %v", name, err)
		}
	}
	mk(depottest.IndexModelID, "events-early")
	mk(depottest.IndexModelID, "events-late")

	byName, err := b.FindByName(ctx, "events")
	if err != nil {
		t.Fatalf("find by name: %v", err)
	}
	if len(byName) != 2 {
		t.Errorf("by name: got %d, want 2", len(byName))
	}

	model := depottest.IndexModelID
	byPair, err := b.FindByDevice(ctx, depottest.DeviceID, &model)
	if err != nil {
		t.Fatalf("find by pair: %v", err)
	}
	if len(byPair) != 2 {
		t.Errorf("by pair: got %d, want 2", len(byPair))
	}

	other := depottest.TimestampModelID
	none, err := b.FindByDevice(ctx, depottest.DeviceID, &other)
	if err != nil {
		t.Fatalf("find by other model: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("other model matched %d slices", len(none))
	}
}

func TestDelete(t *testing.T) {
	b, s := newBuilder(t)
	ctx := t.Context()

	// Delete removes only the descriptor.
	err := s.InsertSample(ctx, &store.Sample{
		DeviceID: depottest.DeviceID,
		ModelID:  depottest.IndexModelID,
		Position: scheme.AtIndex(1),
		Payload:  codec.Pack([]codec.Value{codec.U32(1), codec.F64(0)}),
	})
	if err != nil {
		t.Fatalf("insert sample: %v", err)
	}

	sl, err := b.Create(ctx, slice.Request{
		DeviceID: depottest.DeviceID,
		ModelID:  depottest.IndexModelID,
		Begin:    scheme.AtIndex(0),
		End:      scheme.AtIndex(10),
		Name:     "window",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := b.Delete(ctx, sl.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	n, err := s.CountSamples(ctx, depottest.DeviceID, depottest.IndexModelID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("samples touched by slice delete: %d left", n)
	}
}
