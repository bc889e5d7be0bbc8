package schedule

// Store is an in-memory projection of schedule entries for one open view.
// It performs no network calls: callers populate it from fetch results and
// reconcile it only after the remote store has confirmed a write.
type Store struct {
	entries []Entry
}

func NewStore(entries ...Entry) *Store {
	st := &Store{}
	st.Replace(entries)
	return st
}

// EntriesOn returns the confirmed entries on the given calendar date.
func (st *Store) EntriesOn(date Date) []Entry {
	var out []Entry
	for _, e := range st.entries {
		if e.Status != StatusConfirmed {
			continue
		}
		if e.Slot.Date == date {
			out = append(out, e)
		}
	}
	return out
}

// Upsert replaces the entry with the same ID, or appends when the ID is new.
func (st *Store) Upsert(e Entry) {
	if e.ID != "" {
		for i := range st.entries {
			if st.entries[i].ID == e.ID {
				st.entries[i] = e
				return
			}
		}
	}
	st.entries = append(st.entries, e)
}

// Remove drops the entry with the given ID and reports whether it was present.
func (st *Store) Remove(id string) bool {
	for i := range st.entries {
		if st.entries[i].ID == id {
			st.entries = append(st.entries[:i], st.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Replace swaps the store's contents for a freshly fetched snapshot.
func (st *Store) Replace(entries []Entry) {
	st.entries = append(st.entries[:0], entries...)
}

// Snapshot returns a copy of all entries, regardless of status.
func (st *Store) Snapshot() []Entry {
	out := make([]Entry, len(st.entries))
	copy(out, st.entries)
	return out
}

func (st *Store) Len() int {
	return len(st.entries)
}
