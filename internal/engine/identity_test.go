package engine

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifyID_Deterministic(t *testing.T) {
	a := NotifyID("2b1e6a4c-1111-4e9a-9c59-8e0d6a2f0b7d", 86_400_000)
	b := NotifyID("2b1e6a4c-1111-4e9a-9c59-8e0d6a2f0b7d", 86_400_000)
	assert.Equal(t, a, b, "same pair, same id, always")
}

func TestNotifyID_DistinguishesPairs(t *testing.T) {
	seen := make(map[int32]string)
	reminders := []string{"r1", "r2", "a-much-longer-reminder-id", "2b1e6a4c-1111-4e9a-9c59-8e0d6a2f0b7d"}
	offsets := []int64{0, 60_000, 3_600_000, 86_400_000}

	for _, r := range reminders {
		for _, off := range offsets {
			id := NotifyID(r, off)
			key := r + "/" + strconv.FormatInt(off, 10)
			prev, dup := seen[id]
			assert.False(t, dup, "collision between %q and %q", prev, key)
			seen[id] = key
		}
	}
}

func TestNotifyID_MinInt32Remapped(t *testing.T) {
	// The XOR combination can in principle produce math.MinInt32, whose
	// negation does not exist; the deriver promises to never hand that
	// value out.
	assert.Equal(t, int32(math.MaxInt32), normalizeID(math.MinInt32))
	assert.Equal(t, int32(7), normalizeID(7))
	assert.Equal(t, int32(-7), normalizeID(-7))
}

func TestFoldOffset(t *testing.T) {
	assert.Equal(t, int32(0), foldOffset(0))
	assert.Equal(t, int32(5), foldOffset(5))
	// High and low words both contribute.
	assert.NotEqual(t, foldOffset(1), foldOffset(1<<32|1))
}
