package engine

import "sync"

const lockStripes = 64

// pairLocks serializes operations on the same (reminder, offset) pair while
// letting unrelated pairs proceed concurrently, so a boot-restore pass over
// many reminders is not funneled through one global lock. Striping means an
// occasional unrelated pair shares a stripe; that only costs a little
// parallelism, never correctness.
type pairLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *pairLocks) lockFor(reminderID string, offsetMs int64) *sync.Mutex {
	return &l.stripes[uint32(NotifyID(reminderID, offsetMs))%lockStripes]
}
