package store_test

import (
	"testing"

	"github.com/xtxerr/depot/internal/errors"
	"github.com/xtxerr/depot/internal/scheme"
	"github.com/xtxerr/depot/internal/store"
	depottest "github.com/xtxerr/depot/internal/testing"
)

func insertSlice(t *testing.T, s *store.Store, name string, begin, end int32) *store.Slice {
	t.Helper()

	sl := &store.Slice{
		DeviceID: depottest.DeviceID,
		ModelID:  depottest.IndexModelID,
		Begin:    scheme.AtIndex(begin),
		End:      scheme.AtIndex(end),
		Name:     name,
	}
	if _, err := s.InsertSlice(t.Context(), sl); err != nil {
		t.Fatalf("insert slice %q: %v", name, err)
	}
	return sl
}

func TestSliceRoundTrip(t *testing.T) {
	s := depottest.NewStore(t)
	depottest.SeedStoreCatalog(t, s)
	sl := insertSlice(t, s, "startup-window", 10, 20)

	got, err := s.GetSlice(t.Context(), sl.ID)
	if err != nil {
		t.Fatalf("get slice: %v", err)
	}
	if got.Name != "startup-window" || got.DeviceID != depottest.DeviceID {
		t.Errorf("slice = %+v", got)
	}
	if got.Begin.Index != 10 || got.End.Index != 20 {
		t.Errorf("range = %d..%d, want 10..20", got.Begin.Index, got.End.Index)
	}

	if _, err := s.GetSlice(t.Context(), 99999); !errors.Is(err, errors.ErrSliceNotFound) {
		t.Errorf("expected ErrSliceNotFound, got %v", err)
	}
}

func TestSliceListing(t *testing.T) {
	s := depottest.NewStore(t)
	depottest.SeedStoreCatalog(t, s)
	ctx := t.Context()

	insertSlice(t, s, "window-a", 0, 10)
	insertSlice(t, s, "window-b", 10, 20)
	insertSlice(t, s, "other", 20, 30)

	byName, err := s.ListSlicesByName(ctx, "window")
	if err != nil {
		t.Fatalf("list by name: %v", err)
	}
	if len(byName) != 2 {
		t.Errorf("got %d slices matching \"window\", want 2", len(byName))
	}

	// LIKE wildcards in the query are literals, not patterns.
	byWildcard, err := s.ListSlicesByName(ctx, "%")
	if err != nil {
		t.Fatalf("list by wildcard: %v", err)
	}
	if len(byWildcard) != 0 {
		t.Errorf("literal %% matched %d slices, want 0", len(byWildcard))
	}

	byDevice, err := s.ListSlicesByDevice(ctx, depottest.DeviceID)
	if err != nil {
		t.Fatalf("list by device: %v", err)
	}
	if len(byDevice) != 3 {
		t.Errorf("got %d device slices, want 3", len(byDevice))
	}

	byPair, err := s.ListSlicesByDeviceModel(ctx, depottest.DeviceID, depottest.IndexModelID)
	if err != nil {
		t.Fatalf("list by pair: %v", err)
	}
	if len(byPair) != 3 {
		t.Errorf("got %d pair slices, want 3", len(byPair))
	}
}

func TestSliceUpdate(t *testing.T) {
	s := depottest.NewStore(t)
	depottest.SeedStoreCatalog(t, s)
	sl := insertSlice(t, s, "window", 10, 20)
	ctx := t.Context()

	name := "renamed"
	end := scheme.AtIndex(30)
	if err := s.UpdateSlice(ctx, sl.ID, &name, nil, nil, &end); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetSlice(ctx, sl.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "renamed" {
		t.Errorf("name = %q", got.Name)
	}
	if got.Begin.Index != 10 || got.End.Index != 30 {
		t.Errorf("range = %d..%d, want 10..30", got.Begin.Index, got.End.Index)
	}
}

func TestSliceDelete(t *testing.T) {
	s := depottest.NewStore(t)
	depottest.SeedStoreCatalog(t, s)
	sl := insertSlice(t, s, "window", 10, 20)
	ctx := t.Context()

	if err := s.DeleteSlice(ctx, sl.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteSlice(ctx, sl.ID); !errors.Is(err, errors.ErrSliceNotFound) {
		t.Errorf("second delete: expected ErrSliceNotFound, got %v", err)
	}
}
