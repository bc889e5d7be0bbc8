package schedule

// ConflictResult lists every confirmed entry a candidate slot collides with,
// so callers can report full detail rather than just the first hit.
type ConflictResult struct {
	HasConflict bool
	Conflicting []Entry
}

// CheckConflicts decides whether candidate may be added to the store for the
// given resource. A candidate identical to an existing entry is a conflict
// (full overlap), not a no-op. The result is advisory: the remote store makes
// the authoritative call at write time, and two clients can both pass this
// check before one of them loses the race.
func CheckConflicts(st *Store, resourceID string, candidate TimeSlot) ConflictResult {
	var res ConflictResult
	for _, e := range st.EntriesOn(candidate.Date) {
		if e.ResourceID != resourceID {
			continue
		}
		if candidate.Overlaps(e.Slot) {
			res.Conflicting = append(res.Conflicting, e)
		}
	}
	res.HasConflict = len(res.Conflicting) > 0
	return res
}
