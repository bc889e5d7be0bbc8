package schedule

type EntryStatus string

const (
	StatusConfirmed EntryStatus = "confirmed"
	StatusPending   EntryStatus = "pending"
	StatusCanceled  EntryStatus = "canceled"
)

// Entry is one coach shift or course occurrence on a resource's calendar.
// ID is empty until the remote store has persisted the entry.
type Entry struct {
	ID         string
	ResourceID string
	Slot       TimeSlot
	Status     EntryStatus
}
