package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore opens a Store on a temp-dir database file.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "state.db"), testLogger(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	t.Cleanup(func() { s.Close() })

	return s
}

func strp(s string) *string { return &s }

func intp(n int) *int { return &n }

func TestUpsertItems_InsertThenUpdate(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	items := []Item{
		{FundCode: "000001", FundName: "Alpha", SortIndex: 0, UpdatedAt: time.Now()},
		{FundCode: "110022", FundName: "Beta", GroupID: strp("g-1"), SortIndex: 1, UpdatedAt: time.Now()},
	}

	if err := s.UpsertItems(ctx, items); err != nil {
		t.Fatalf("UpsertItems: %v", err)
	}

	// Update touches name, group, sort index, deletion flag.
	items[0].FundName = "Alpha Renamed"
	items[0].SortIndex = 5
	items[0].IsDeleted = true

	if err := s.UpsertItems(ctx, items[:1]); err != nil {
		t.Fatalf("UpsertItems update: %v", err)
	}

	got, err := s.GetItem(ctx, "000001")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}

	if got.FundName != "Alpha Renamed" || got.SortIndex != 5 || !got.IsDeleted {
		t.Errorf("updated item = %+v", got)
	}

	// activeOnly excludes the soft-deleted row.
	active, err := s.AllItems(ctx, true)
	if err != nil {
		t.Fatalf("AllItems: %v", err)
	}

	if len(active) != 1 || active[0].FundCode != "110022" {
		t.Errorf("active items = %+v", active)
	}

	all, err := s.AllItems(ctx, false)
	if err != nil {
		t.Fatalf("AllItems all: %v", err)
	}

	if len(all) != 2 {
		t.Errorf("got %d items, want 2", len(all))
	}
}

func TestItemsInGroup(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	items := []Item{
		{FundCode: "a", FundName: "A", GroupID: strp("g-1"), SortIndex: 2},
		{FundCode: "b", FundName: "B", GroupID: strp("g-1"), SortIndex: 1},
		{FundCode: "c", FundName: "C", SortIndex: 0},
	}

	if err := s.UpsertItems(ctx, items); err != nil {
		t.Fatalf("UpsertItems: %v", err)
	}

	grouped, err := s.ItemsInGroup(ctx, strp("g-1"))
	if err != nil {
		t.Fatalf("ItemsInGroup: %v", err)
	}

	// Sorted by sort index.
	if len(grouped) != 2 || grouped[0].FundCode != "b" || grouped[1].FundCode != "a" {
		t.Errorf("grouped = %+v", grouped)
	}

	ungrouped, err := s.ItemsInGroup(ctx, nil)
	if err != nil {
		t.Fatalf("ItemsInGroup nil: %v", err)
	}

	if len(ungrouped) != 1 || ungrouped[0].FundCode != "c" {
		t.Errorf("ungrouped = %+v", ungrouped)
	}
}

func TestDeleteGroup_DetachesItems(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertGroups(ctx, []Group{{ID: "g-1", Name: "Tech"}}); err != nil {
		t.Fatalf("UpsertGroups: %v", err)
	}

	if err := s.UpsertItems(ctx, []Item{{FundCode: "a", FundName: "A", GroupID: strp("g-1")}}); err != nil {
		t.Fatalf("UpsertItems: %v", err)
	}

	if err := s.DeleteGroup(ctx, "g-1"); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}

	groups, err := s.AllGroups(ctx)
	if err != nil {
		t.Fatalf("AllGroups: %v", err)
	}

	if len(groups) != 0 {
		t.Errorf("groups = %+v, want none", groups)
	}

	item, err := s.GetItem(ctx, "a")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}

	if item.GroupID != nil {
		t.Errorf("item group = %v, want detached", *item.GroupID)
	}
}

func TestWatermark_Lifecycle(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	wm, err := s.Watermark(ctx)
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}

	if !wm.IsZero() {
		t.Errorf("initial watermark = %v, want zero", wm)
	}

	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.SetWatermark(ctx, stamp); err != nil {
		t.Fatalf("SetWatermark: %v", err)
	}

	wm, err = s.Watermark(ctx)
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}

	if !wm.Equal(stamp) {
		t.Errorf("watermark = %v, want %v", wm, stamp)
	}

	if err := s.ClearWatermark(ctx); err != nil {
		t.Fatalf("ClearWatermark: %v", err)
	}

	wm, err = s.Watermark(ctx)
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}

	if !wm.IsZero() {
		t.Errorf("cleared watermark = %v, want zero", wm)
	}
}

func TestApplyChanges_MergesItemsAndGroups(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	// Pre-existing row gets overwritten by the batch.
	if err := s.UpsertItems(ctx, []Item{{FundCode: "a", FundName: "Old", SortIndex: 9}}); err != nil {
		t.Fatalf("UpsertItems: %v", err)
	}

	err := s.ApplyChanges(ctx,
		[]Item{
			{FundCode: "a", FundName: "New", SortIndex: 0},
			{FundCode: "b", FundName: "B", GroupID: strp("g-1"), SortIndex: 1},
		},
		[]Group{{ID: "g-1", Name: "Tech"}},
	)
	if err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}

	item, err := s.GetItem(ctx, "a")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}

	if item.FundName != "New" || item.SortIndex != 0 {
		t.Errorf("item = %+v, want batch values", item)
	}

	groups, err := s.AllGroups(ctx)
	if err != nil {
		t.Fatalf("AllGroups: %v", err)
	}

	if len(groups) != 1 || groups[0].Name != "Tech" {
		t.Errorf("groups = %+v", groups)
	}

	// Empty batch is a no-op, not an error.
	if err := s.ApplyChanges(ctx, nil, nil); err != nil {
		t.Errorf("empty ApplyChanges: %v", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := Open(path, testLogger(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.UpsertItems(ctx, []Item{{FundCode: "persist", FundName: "P"}}); err != nil {
		t.Fatalf("UpsertItems: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Re-open: migrations are idempotent, data survives.
	s2, err := Open(path, testLogger(t))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	item, err := s2.GetItem(ctx, "persist")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}

	if item == nil || item.FundName != "P" {
		t.Errorf("item after reopen = %+v", item)
	}
}
