package schedule

import (
	"testing"
	"time"
)

func TestCheckConflicts_EmptyStore(t *testing.T) {
	st := NewStore()
	candidate := mustSlot(t, NewDate(2024, time.June, 1), "09:00", "10:00", time.UTC)

	res := CheckConflicts(st, "coach-7", candidate)
	if res.HasConflict || len(res.Conflicting) != 0 {
		t.Fatalf("expected no conflict against empty store, got %+v", res)
	}
}

func TestCheckConflicts_OverlapAndBoundary(t *testing.T) {
	date := NewDate(2024, time.June, 1)
	st := NewStore(Entry{
		ID:         "shift-1",
		ResourceID: "coach-7",
		Slot:       mustSlot(t, date, "14:00", "15:00", time.UTC),
		Status:     StatusConfirmed,
	})

	res := CheckConflicts(st, "coach-7", mustSlot(t, date, "14:30", "15:30", time.UTC))
	if !res.HasConflict || len(res.Conflicting) != 1 || res.Conflicting[0].ID != "shift-1" {
		t.Fatalf("expected one conflicting entry, got %+v", res)
	}

	// Touching boundary is adjacency, not a conflict.
	res = CheckConflicts(st, "coach-7", mustSlot(t, date, "15:00", "16:00", time.UTC))
	if res.HasConflict {
		t.Fatalf("expected adjacent slot to pass, got %+v", res)
	}
}

func TestCheckConflicts_IdenticalSlotConflicts(t *testing.T) {
	date := NewDate(2024, time.June, 1)
	slot := mustSlot(t, date, "14:00", "15:00", time.UTC)
	st := NewStore(Entry{ID: "shift-1", ResourceID: "coach-7", Slot: slot, Status: StatusConfirmed})

	res := CheckConflicts(st, "coach-7", slot)
	if !res.HasConflict {
		t.Fatalf("identical slot must be reported as conflicting")
	}
}

func TestCheckConflicts_IgnoresOtherResourcesAndStatuses(t *testing.T) {
	date := NewDate(2024, time.June, 1)
	st := NewStore(
		Entry{ID: "other-coach", ResourceID: "coach-9", Slot: mustSlot(t, date, "14:00", "15:00", time.UTC), Status: StatusConfirmed},
		Entry{ID: "canceled", ResourceID: "coach-7", Slot: mustSlot(t, date, "14:00", "15:00", time.UTC), Status: StatusCanceled},
		Entry{ID: "pending", ResourceID: "coach-7", Slot: mustSlot(t, date, "14:00", "15:00", time.UTC), Status: StatusPending},
	)

	res := CheckConflicts(st, "coach-7", mustSlot(t, date, "14:00", "15:00", time.UTC))
	if res.HasConflict {
		t.Fatalf("expected no conflict from other resources or non-confirmed entries, got %+v", res)
	}
}

func TestCheckConflicts_CollectsAllConflicts(t *testing.T) {
	date := NewDate(2024, time.June, 1)
	st := NewStore(
		Entry{ID: "s1", ResourceID: "coach-7", Slot: mustSlot(t, date, "09:00", "10:00", time.UTC), Status: StatusConfirmed},
		Entry{ID: "s2", ResourceID: "coach-7", Slot: mustSlot(t, date, "10:30", "11:30", time.UTC), Status: StatusConfirmed},
		Entry{ID: "s3", ResourceID: "coach-7", Slot: mustSlot(t, date, "12:00", "13:00", time.UTC), Status: StatusConfirmed},
	)

	res := CheckConflicts(st, "coach-7", mustSlot(t, date, "09:30", "11:00", time.UTC))
	if len(res.Conflicting) != 2 {
		t.Fatalf("expected 2 conflicting entries, got %d", len(res.Conflicting))
	}
}
