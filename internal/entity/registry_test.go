package entity

import (
	"context"
	"errors"
	"testing"
)

func stockRegistration(entryID, name string) Registration {
	return Registration{
		Domain:            "number",
		Platform:          "medication_tracker",
		UniqueID:          entryID + "_stock",
		ConfigEntryID:     entryID,
		SuggestedObjectID: name + " current stock",
		OriginalName:      name + " Current Stock",
	}
}

func mustRegister(t *testing.T, reg *Registry, r Registration) Entry {
	t.Helper()
	e, err := reg.GetOrCreate(context.Background(), r)
	if err != nil {
		t.Fatalf("GetOrCreate(%s) error = %v", r.UniqueID, err)
	}
	return e
}

func TestRegistry_GetOrCreate(t *testing.T) {
	db := openTestDB(t)
	insertConfigEntry(t, db, "entry1")
	reg := NewRegistry(NewSQLiteRepository(db.DB))
	ctx := context.Background()

	e, err := reg.GetOrCreate(ctx, stockRegistration("entry1", "Aspirin"))
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if e.EntityID != "number.aspirin_current_stock" {
		t.Errorf("EntityID = %q, want number.aspirin_current_stock", e.EntityID)
	}

	again, err := reg.GetOrCreate(ctx, stockRegistration("entry1", "Renamed"))
	if err != nil {
		t.Fatalf("second GetOrCreate() error = %v", err)
	}
	if again.EntityID != e.EntityID {
		t.Errorf("EntityID changed on re-register: %q", again.EntityID)
	}

	id, ok := reg.Resolve("number", "medication_tracker", "entry1_stock")
	if !ok || id != e.EntityID {
		t.Errorf("Resolve() = %q, %v", id, ok)
	}
	if _, ok := reg.Resolve("number", "medication_tracker", "missing"); ok {
		t.Error("Resolve() ok for unknown unique id")
	}
}

func TestRegistry_CollisionSuffix(t *testing.T) {
	db := openTestDB(t)
	insertConfigEntry(t, db, "entry1")
	insertConfigEntry(t, db, "entry2")
	insertConfigEntry(t, db, "entry3")
	reg := NewRegistry(NewSQLiteRepository(db.DB))
	ctx := context.Background()

	want := []string{
		"number.aspirin_current_stock",
		"number.aspirin_current_stock_2",
		"number.aspirin_current_stock_3",
	}
	for i, entryID := range []string{"entry1", "entry2", "entry3"} {
		e, err := reg.GetOrCreate(ctx, stockRegistration(entryID, "Aspirin"))
		if err != nil {
			t.Fatalf("GetOrCreate(%s) error = %v", entryID, err)
		}
		if e.EntityID != want[i] {
			t.Errorf("EntityID = %q, want %q", e.EntityID, want[i])
		}
	}
}

func TestRegistry_SurvivesRestart(t *testing.T) {
	db := openTestDB(t)
	insertConfigEntry(t, db, "entry1")
	ctx := context.Background()

	first := NewRegistry(NewSQLiteRepository(db.DB))
	created, err := first.GetOrCreate(ctx, stockRegistration("entry1", "Vitamin D"))
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	second := NewRegistry(NewSQLiteRepository(db.DB))
	if err := second.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	got, err := second.Get(created.EntityID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UniqueID != "entry1_stock" || got.ConfigEntryID != "entry1" {
		t.Errorf("reloaded entry = %+v", got)
	}
}

func TestRegistry_RemoveConfigEntry(t *testing.T) {
	db := openTestDB(t)
	insertConfigEntry(t, db, "entry1")
	insertConfigEntry(t, db, "entry2")
	reg := NewRegistry(NewSQLiteRepository(db.DB))
	ctx := context.Background()

	mustRegister(t, reg, stockRegistration("entry1", "Aspirin"))
	mustRegister(t, reg, Registration{
		Domain: "sensor", Platform: "medication_tracker", UniqueID: "entry1_days_remaining",
		ConfigEntryID: "entry1", SuggestedObjectID: "Aspirin days remaining",
	})
	mustRegister(t, reg, stockRegistration("entry2", "Ibuprofen"))

	removed, err := reg.RemoveConfigEntry(ctx, "entry1")
	if err != nil {
		t.Fatalf("RemoveConfigEntry() error = %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("removed = %v, want 2 entities", removed)
	}
	if len(reg.List()) != 1 {
		t.Errorf("List() len = %d, want 1", len(reg.List()))
	}

	// The freed entity id is reusable.
	insertConfigEntry(t, db, "entry3")
	e, err := reg.GetOrCreate(ctx, stockRegistration("entry3", "Aspirin"))
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if e.EntityID != "number.aspirin_current_stock" {
		t.Errorf("EntityID = %q, want reuse of freed id", e.EntityID)
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	reg := NewRegistry(NewSQLiteRepository(openTestDB(t).DB))
	if _, err := reg.Get("number.nope"); !errors.Is(err, ErrEntityNotFound) {
		t.Errorf("Get() error = %v, want ErrEntityNotFound", err)
	}
	if err := reg.Remove(context.Background(), "number.nope"); !errors.Is(err, ErrEntityNotFound) {
		t.Errorf("Remove() error = %v, want ErrEntityNotFound", err)
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Aspirin current stock": "aspirin_current_stock",
		"  Vitamin D3 (1000IU) ": "vitamin_d3_1000iu",
		"already_slugged":        "already_slugged",
		"!!!":                    "",
		"Ibuprofen--200mg":       "ibuprofen_200mg",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitEntityID(t *testing.T) {
	domain, object, err := SplitEntityID("number.aspirin_current_stock")
	if err != nil || domain != "number" || object != "aspirin_current_stock" {
		t.Errorf("SplitEntityID() = %q, %q, %v", domain, object, err)
	}

	for _, bad := range []string{"", "number", ".x", "number.", "Number.X", "number.a b"} {
		if _, _, err := SplitEntityID(bad); !errors.Is(err, ErrInvalidEntityID) {
			t.Errorf("SplitEntityID(%q) error = %v, want ErrInvalidEntityID", bad, err)
		}
	}
}
