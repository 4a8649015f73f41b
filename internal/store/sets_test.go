package store_test

import (
	"testing"

	"github.com/google/uuid"

	"github.com/xtxerr/depot/internal/errors"
	"github.com/xtxerr/depot/internal/store"
	depottest "github.com/xtxerr/depot/internal/testing"
)

func insertTemplate(t *testing.T, s *store.Store) *store.SetTemplate {
	t.Helper()

	tpl := &store.SetTemplate{
		ID:   uuid.New(),
		Name: "pair",
		Members: []store.SetTemplateMember{
			{TypeID: depottest.TypeID, ModelID: depottest.TimestampModelID, TemplateIndex: 0},
			{TypeID: depottest.TypeID, ModelID: depottest.IndexModelID, TemplateIndex: 1},
		},
	}
	if err := s.InsertTemplate(t.Context(), tpl); err != nil {
		t.Fatalf("insert template: %v", err)
	}
	return tpl
}

func TestTemplateRoundTrip(t *testing.T) {
	s := depottest.NewStore(t)
	depottest.SeedStoreCatalog(t, s)
	tpl := insertTemplate(t, s)

	got, err := s.GetTemplate(t.Context(), tpl.ID)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if got.Name != "pair" || len(got.Members) != 2 {
		t.Fatalf("template = %+v", got)
	}
	for i, m := range got.Members {
		if m.TemplateIndex != i {
			t.Errorf("member %d at template index %d", i, m.TemplateIndex)
		}
	}

	if _, err := s.GetTemplate(t.Context(), uuid.New()); !errors.Is(err, errors.ErrTemplateNotFound) {
		t.Errorf("expected ErrTemplateNotFound, got %v", err)
	}

	byName, err := s.ListTemplatesByName(t.Context(), "pai")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(byName) != 1 || byName[0].ID != tpl.ID {
		t.Errorf("listed = %+v", byName)
	}
}

func TestTemplateDelete(t *testing.T) {
	s := depottest.NewStore(t)
	depottest.SeedStoreCatalog(t, s)
	tpl := insertTemplate(t, s)
	ctx := t.Context()

	if err := s.DeleteTemplate(ctx, tpl.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetTemplate(ctx, tpl.ID); !errors.Is(err, errors.ErrTemplateNotFound) {
		t.Errorf("template survived delete: %v", err)
	}
	if err := s.DeleteTemplate(ctx, tpl.ID); !errors.Is(err, errors.ErrTemplateNotFound) {
		t.Errorf("second delete: expected ErrTemplateNotFound, got %v", err)
	}
}

func TestSetRoundTrip(t *testing.T) {
	s := depottest.NewStore(t)
	depottest.SeedStoreCatalog(t, s)
	tpl := insertTemplate(t, s)
	ctx := t.Context()

	set := &store.Set{
		ID:         uuid.New(),
		TemplateID: tpl.ID,
		Name:       "rig-1",
		Members: []store.SetMember{
			{DeviceID: depottest.DeviceID, ModelID: depottest.TimestampModelID, Position: 0, Number: 0},
			{DeviceID: depottest.DeviceID, ModelID: depottest.IndexModelID, Position: 1, Number: 0},
			{DeviceID: depottest.DeviceID, ModelID: depottest.IndexModelID, Position: 1, Number: 1},
		},
	}
	if err := s.InsertSet(ctx, set); err != nil {
		t.Fatalf("insert set: %v", err)
	}

	got, err := s.GetSet(ctx, set.ID)
	if err != nil {
		t.Fatalf("get set: %v", err)
	}
	if got.TemplateID != tpl.ID || len(got.Members) != 3 {
		t.Fatalf("set = %+v", got)
	}
	// Members come back ordered by (position, number).
	prev := got.Members[0]
	for _, m := range got.Members[1:] {
		if m.Position < prev.Position ||
			(m.Position == prev.Position && m.Number <= prev.Number) {
			t.Errorf("member order broken: %+v after %+v", m, prev)
		}
		prev = m
	}

	if _, err := s.GetSet(ctx, uuid.New()); !errors.Is(err, errors.ErrSetNotFound) {
		t.Errorf("expected ErrSetNotFound, got %v", err)
	}
}

func TestSetMemberConflict(t *testing.T) {
	s := depottest.NewStore(t)
	depottest.SeedStoreCatalog(t, s)
	tpl := insertTemplate(t, s)
	ctx := t.Context()

	set := &store.Set{
		ID:         uuid.New(),
		TemplateID: tpl.ID,
		Name:       "rig-1",
		Members: []store.SetMember{
			{DeviceID: depottest.DeviceID, ModelID: depottest.TimestampModelID, Position: 0, Number: 0},
		},
	}
	if err := s.InsertSet(ctx, set); err != nil {
		t.Fatalf("insert set: %v", err)
	}

	// (position, number) is unique per set.
	dup := store.SetMember{DeviceID: depottest.DeviceID, ModelID: depottest.TimestampModelID, Position: 0, Number: 0}
	if err := s.AddSetMember(ctx, set.ID, dup); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("duplicate member: expected ErrConflict, got %v", err)
	}

	next := store.SetMember{DeviceID: depottest.DeviceID, ModelID: depottest.TimestampModelID, Position: 0, Number: 1}
	if err := s.AddSetMember(ctx, set.ID, next); err != nil {
		t.Fatalf("add member: %v", err)
	}

	if err := s.RemoveSetMember(ctx, set.ID, 0, 1); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if err := s.RemoveSetMember(ctx, set.ID, 0, 1); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second remove: expected ErrNotFound, got %v", err)
	}
}

func TestSetDelete(t *testing.T) {
	s := depottest.NewStore(t)
	depottest.SeedStoreCatalog(t, s)
	tpl := insertTemplate(t, s)
	ctx := t.Context()

	set := &store.Set{
		ID:         uuid.New(),
		TemplateID: tpl.ID,
		Name:       "rig-1",
		Members: []store.SetMember{
			{DeviceID: depottest.DeviceID, ModelID: depottest.TimestampModelID, Position: 0, Number: 0},
		},
	}
	if err := s.InsertSet(ctx, set); err != nil {
		t.Fatalf("insert set: %v", err)
	}

	if err := s.DeleteSet(ctx, set.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetSet(ctx, set.ID); !errors.Is(err, errors.ErrSetNotFound) {
		t.Errorf("set survived delete: %v", err)
	}
	if err := s.DeleteSet(ctx, set.ID); !errors.Is(err, errors.ErrSetNotFound) {
		t.Errorf("second delete: expected ErrSetNotFound, got %v", err)
	}
}
