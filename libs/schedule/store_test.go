package schedule

import (
	"testing"
	"time"
)

func TestStore_EntriesOnFiltersDateAndStatus(t *testing.T) {
	date := NewDate(2024, time.June, 1)
	other := NewDate(2024, time.June, 2)

	st := NewStore(
		Entry{ID: "a", ResourceID: "coach-7", Slot: mustSlot(t, date, "09:00", "10:00", time.UTC), Status: StatusConfirmed},
		Entry{ID: "b", ResourceID: "coach-7", Slot: mustSlot(t, date, "10:00", "11:00", time.UTC), Status: StatusCanceled},
		Entry{ID: "c", ResourceID: "coach-7", Slot: mustSlot(t, other, "09:00", "10:00", time.UTC), Status: StatusConfirmed},
	)

	got := st.EntriesOn(date)
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("expected only entry a, got %v", got)
	}
	if len(st.EntriesOn(NewDate(2024, time.June, 3))) != 0 {
		t.Fatalf("expected no entries on empty date")
	}
}

func TestStore_UpsertReplacesById(t *testing.T) {
	date := NewDate(2024, time.June, 1)
	st := NewStore(Entry{ID: "a", ResourceID: "coach-7", Slot: mustSlot(t, date, "09:00", "10:00", time.UTC), Status: StatusConfirmed})

	st.Upsert(Entry{ID: "a", ResourceID: "coach-7", Slot: mustSlot(t, date, "09:00", "10:00", time.UTC), Status: StatusCanceled})
	if st.Len() != 1 {
		t.Fatalf("expected replacement, got %d entries", st.Len())
	}
	if len(st.EntriesOn(date)) != 0 {
		t.Fatalf("expected canceled entry to be excluded")
	}

	st.Upsert(Entry{ID: "b", ResourceID: "coach-7", Slot: mustSlot(t, date, "11:00", "12:00", time.UTC), Status: StatusConfirmed})
	if st.Len() != 2 {
		t.Fatalf("expected append of new id, got %d entries", st.Len())
	}
}

func TestStore_RemoveAndReplace(t *testing.T) {
	date := NewDate(2024, time.June, 1)
	st := NewStore(
		Entry{ID: "a", ResourceID: "coach-7", Slot: mustSlot(t, date, "09:00", "10:00", time.UTC), Status: StatusConfirmed},
		Entry{ID: "b", ResourceID: "coach-7", Slot: mustSlot(t, date, "10:00", "11:00", time.UTC), Status: StatusConfirmed},
	)

	if !st.Remove("a") {
		t.Fatalf("expected removal of a")
	}
	if st.Remove("a") {
		t.Fatalf("expected second removal to report absence")
	}
	if st.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", st.Len())
	}

	st.Replace(nil)
	if st.Len() != 0 {
		t.Fatalf("expected empty store after Replace(nil)")
	}
}
