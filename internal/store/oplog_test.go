package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

// queueOp appends an operation with the given kind, code, and timestamp.
func queueOp(t *testing.T, s *Store, kind, code string, ts time.Time) {
	t.Helper()

	op := Operation{
		ID:              uuid.NewString(),
		Kind:            kind,
		FundCode:        code,
		ClientTimestamp: ts,
		DeviceID:        "test-device",
	}

	if kind == OpAdd {
		name := "Fund " + code
		op.FundName = &name
	}

	if err := s.AppendOperation(context.Background(), op); err != nil {
		t.Fatalf("AppendOperation(%s, %s): %v", kind, code, err)
	}
}

func TestPendingOperations_TimestampOrder(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// Insert out of timestamp order across disjoint codes.
	queueOp(t, s, OpAdd, "ccc", base.Add(3*time.Second))
	queueOp(t, s, OpAdd, "aaa", base.Add(1*time.Second))
	queueOp(t, s, "REORDER", "bbb", base.Add(2*time.Second))

	ops, err := s.PendingOperations(context.Background())
	if err != nil {
		t.Fatalf("PendingOperations: %v", err)
	}

	if len(ops) != 3 {
		t.Fatalf("got %d ops, want 3", len(ops))
	}

	for i := 1; i < len(ops); i++ {
		if ops[i].ClientTimestamp.Before(ops[i-1].ClientTimestamp) {
			t.Errorf("ops out of order at %d: %v before %v", i,
				ops[i].ClientTimestamp, ops[i-1].ClientTimestamp)
		}
	}

	if ops[0].FundCode != "aaa" || ops[1].FundCode != "bbb" || ops[2].FundCode != "ccc" {
		t.Errorf("order = %s %s %s", ops[0].FundCode, ops[1].FundCode, ops[2].FundCode)
	}
}

func TestPendingOperations_EqualTimestampsStable(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	queueOp(t, s, OpAdd, "first", ts)
	queueOp(t, s, OpAdd, "second", ts)

	ops, err := s.PendingOperations(context.Background())
	if err != nil {
		t.Fatalf("PendingOperations: %v", err)
	}

	if len(ops) != 2 || ops[0].FundCode != "first" || ops[1].FundCode != "second" {
		t.Errorf("equal-timestamp order not insertion order: %+v", ops)
	}
}

func TestAcknowledge_RemovesOnlyThatCode(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// Interleave operations for multiple codes.
	queueOp(t, s, OpAdd, "keep", base)
	queueOp(t, s, OpAdd, "gone", base.Add(time.Second))
	queueOp(t, s, "REORDER", "keep", base.Add(2*time.Second))
	queueOp(t, s, "MOVE_GROUP", "gone", base.Add(3*time.Second))

	if err := s.Acknowledge(ctx, "gone"); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}

	ops, err := s.PendingOperations(ctx)
	if err != nil {
		t.Fatalf("PendingOperations: %v", err)
	}

	if len(ops) != 2 {
		t.Fatalf("got %d ops, want 2", len(ops))
	}

	for _, op := range ops {
		if op.FundCode != "keep" {
			t.Errorf("unexpected surviving op for %s", op.FundCode)
		}
	}
}

func TestAppendOperation_AddCreatesPlaceholder(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	name := "Test Fund"
	op := Operation{
		ID:              uuid.NewString(),
		Kind:            OpAdd,
		FundCode:        "000001",
		FundName:        &name,
		ClientTimestamp: time.Now(),
		DeviceID:        "dev",
	}

	if err := s.AppendOperation(ctx, op); err != nil {
		t.Fatalf("AppendOperation: %v", err)
	}

	item, err := s.GetItem(ctx, "000001")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}

	if item == nil {
		t.Fatal("expected placeholder item for optimistic ADD")
	}

	if item.FundName != "Test Fund" || item.IsDeleted {
		t.Errorf("placeholder = %+v", item)
	}
}

func TestAppendOperation_NonAddNoPlaceholder(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	queueOp(t, s, "REMOVE", "phantom", time.Now())

	item, err := s.GetItem(ctx, "phantom")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}

	if item != nil {
		t.Errorf("REMOVE should not create a mirror row, got %+v", item)
	}
}

func TestAppendOperation_AddKeepsExistingRow(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertItems(ctx, []Item{{FundCode: "x", FundName: "Original", SortIndex: 7}}); err != nil {
		t.Fatalf("UpsertItems: %v", err)
	}

	queueOp(t, s, OpAdd, "x", time.Now())

	item, err := s.GetItem(ctx, "x")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}

	// Placeholder insertion must not clobber an existing row.
	if item.FundName != "Original" || item.SortIndex != 7 {
		t.Errorf("existing row modified: %+v", item)
	}
}

func TestClearOperations(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	queueOp(t, s, OpAdd, "a", time.Now())
	queueOp(t, s, OpAdd, "b", time.Now())

	if err := s.ClearOperations(ctx); err != nil {
		t.Fatalf("ClearOperations: %v", err)
	}

	count, err := s.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}

	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestPendingCodes(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now()

	queueOp(t, s, OpAdd, "b", base)
	queueOp(t, s, OpAdd, "a", base.Add(time.Second))
	queueOp(t, s, "REORDER", "b", base.Add(2*time.Second))

	codes, err := s.PendingCodes(ctx)
	if err != nil {
		t.Fatalf("PendingCodes: %v", err)
	}

	if len(codes) != 2 || codes[0] != "a" || codes[1] != "b" {
		t.Errorf("codes = %v", codes)
	}

	has, err := s.HasPending(ctx, "a")
	if err != nil {
		t.Fatalf("HasPending: %v", err)
	}

	if !has {
		t.Error("HasPending(a) = false")
	}
}

func TestOperationPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	name := "名称"
	group := "g-9"
	op := Operation{
		ID:              uuid.NewString(),
		Kind:            "MOVE_GROUP",
		FundCode:        "123456",
		FundName:        &name,
		GroupID:         &group,
		SortIndex:       intp(42),
		ClientTimestamp: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		DeviceID:        "pixel-9",
	}

	if err := s.AppendOperation(ctx, op); err != nil {
		t.Fatalf("AppendOperation: %v", err)
	}

	ops, err := s.PendingOperations(ctx)
	if err != nil {
		t.Fatalf("PendingOperations: %v", err)
	}

	if len(ops) != 1 {
		t.Fatalf("got %d ops", len(ops))
	}

	got := ops[0]
	if got.ID != op.ID || got.Kind != op.Kind || got.FundCode != op.FundCode ||
		*got.FundName != name || *got.GroupID != group || *got.SortIndex != 42 ||
		!got.ClientTimestamp.Equal(op.ClientTimestamp) || got.DeviceID != "pixel-9" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}
