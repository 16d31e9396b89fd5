package engine

import (
	"hash/fnv"
	"math"
)

// NotifyID derives the stable int32 callback id for a (reminder, offset)
// pair. It is the only handle used to register and cancel wake callbacks;
// no mapping table is persisted, so the derivation must never change
// without a compatibility migration (a changed derivation orphans every
// already-registered callback).
func NotifyID(reminderID string, offsetMs int64) int32 {
	h := fnv.New32a()
	h.Write([]byte(reminderID))
	return normalizeID(int32(h.Sum32()) ^ foldOffset(offsetMs))
}

// normalizeID remaps math.MinInt32, which has no positive counterpart, so
// callers may take absolute values without overflowing.
func normalizeID(id int32) int32 {
	if id == math.MinInt32 {
		return math.MaxInt32
	}
	return id
}

// foldOffset collapses the 64-bit offset into 32 bits, high word XOR low.
func foldOffset(offsetMs int64) int32 {
	return int32(uint32(uint64(offsetMs)>>32)) ^ int32(uint32(uint64(offsetMs)))
}
