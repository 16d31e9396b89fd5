package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chimeapp/chime/internal/models"
)

const dayMs = int64(86_400_000)

func fixedNow(e *Engine, nowMs int64) {
	e.nowMs = func() int64 { return nowMs }
}

func utcMs(year int, month time.Month, day, hour, min int) int64 {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC).UnixMilli()
}

func dailyReminder(id string, anchorMs int64, offsets ...int64) *models.Reminder {
	return &models.Reminder{
		ID:         id,
		ChatID:     1,
		Title:      "water the plants",
		Message:    "water the plants",
		AnchorAtMs: anchorMs,
		TimeZone:   "UTC",
		Repeat:     models.RepeatDaily,
		OffsetsMs:  offsets,
		Enabled:    true,
	}
}

func oneShotReminder(id string, anchorMs int64, offsets ...int64) *models.Reminder {
	r := dailyReminder(id, anchorMs, offsets...)
	r.Repeat = models.RepeatNone
	return r
}

func TestScheduleCancelRoundTrip(t *testing.T) {
	now := utcMs(2024, 6, 1, 8, 0)
	r := dailyReminder("r1", utcMs(2024, 6, 1, 9, 0))
	eng, _, _, alarms, _ := newTestEngine(r)
	fixedNow(eng, now)

	require.NoError(t, eng.Schedule(context.Background(), r))
	assert.Equal(t, 1, alarms.count())

	eng.CancelReminder(context.Background(), r)
	assert.Equal(t, 0, alarms.count(), "schedule then cancel leaves nothing registered")

	// Cancelling again is a safe no-op.
	eng.CancelReminder(context.Background(), r)
	assert.Equal(t, 0, alarms.count())
}

func TestScheduleOffsetExpansion(t *testing.T) {
	now := utcMs(2024, 6, 1, 8, 0)
	anchor := utcMs(2024, 6, 3, 9, 0)
	r := oneShotReminder("r1", anchor, 0, dayMs)
	eng, _, _, alarms, _ := newTestEngine(r)
	fixedNow(eng, now)

	require.NoError(t, eng.Schedule(context.Background(), r))
	require.Equal(t, 2, alarms.count(), "two offsets produce two distinct triggers")

	idAt := NotifyID("r1", 0)
	idBefore := NotifyID("r1", dayMs)
	assert.NotEqual(t, idAt, idBefore)

	at, ok := alarms.get(idAt)
	require.True(t, ok)
	before, ok := alarms.get(idBefore)
	require.True(t, ok)
	assert.Equal(t, anchor, at.triggerAtMs)
	assert.Equal(t, anchor-dayMs, before.triggerAtMs)
}

func TestScheduleSkipsInactive(t *testing.T) {
	now := utcMs(2024, 6, 1, 8, 0)

	disabled := dailyReminder("r1", utcMs(2024, 6, 1, 9, 0))
	disabled.Enabled = false
	tombstoned := dailyReminder("r2", utcMs(2024, 6, 1, 9, 0))
	tombstoned.Deleted = true

	eng, _, _, alarms, _ := newTestEngine(disabled, tombstoned)
	fixedNow(eng, now)

	require.NoError(t, eng.Schedule(context.Background(), disabled))
	require.NoError(t, eng.Schedule(context.Background(), tombstoned))
	assert.Equal(t, 0, alarms.count())
}

func TestScheduleExhaustedOneShot(t *testing.T) {
	now := utcMs(2024, 6, 1, 8, 0)
	r := oneShotReminder("r1", now-dayMs)
	eng, _, _, alarms, _ := newTestEngine(r)
	fixedNow(eng, now)

	require.NoError(t, eng.Schedule(context.Background(), r))
	assert.Equal(t, 0, alarms.count(), "an exhausted one-shot registers nothing")
}

func TestScheduleComputationErrorPausesPair(t *testing.T) {
	now := utcMs(2024, 6, 1, 8, 0)
	r := dailyReminder("r1", utcMs(2024, 6, 1, 9, 0))
	r.TimeZone = "Not/AZone"
	eng, _, _, alarms, _ := newTestEngine(r)
	fixedNow(eng, now)

	// Unusable zone pauses the pair, it does not fail the call.
	require.NoError(t, eng.Schedule(context.Background(), r))
	assert.Equal(t, 0, alarms.count())
}

func TestScheduleRegistrationFailureSurfaces(t *testing.T) {
	now := utcMs(2024, 6, 1, 8, 0)
	r := dailyReminder("r1", utcMs(2024, 6, 1, 9, 0))
	eng, _, _, alarms, _ := newTestEngine(r)
	fixedNow(eng, now)
	alarms.failNext = true

	err := eng.Schedule(context.Background(), r)
	require.Error(t, err)
	assert.True(t, IsRegistrationError(err))
}

func TestOnTriggerFired_DeliversRecordsReschedules(t *testing.T) {
	anchor := utcMs(2024, 6, 1, 9, 0)
	r := dailyReminder("r1", anchor)
	eng, _, ledger, alarms, notifier := newTestEngine(r)

	firedAt := anchor + 250 // the backend fires a touch late
	require.NoError(t, eng.OnTriggerFired(context.Background(), "r1", 0, firedAt))

	require.Equal(t, 1, notifier.count())
	assert.Equal(t, NotifyID("r1", 0), notifier.deliveries[0].id)

	last, ok, err := ledger.Get(context.Background(), "r1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, firedAt, last)

	reg, ok := alarms.get(NotifyID("r1", 0))
	require.True(t, ok, "recurring reminder re-registers the fired offset")
	assert.Equal(t, anchor+dayMs, reg.triggerAtMs)
}

func TestOnTriggerFired_OneShotIsTerminal(t *testing.T) {
	anchor := utcMs(2024, 6, 1, 9, 0)
	r := oneShotReminder("r1", anchor)
	eng, _, _, alarms, notifier := newTestEngine(r)

	require.NoError(t, eng.OnTriggerFired(context.Background(), "r1", 0, anchor+10))
	assert.Equal(t, 1, notifier.count())
	assert.Equal(t, 0, alarms.count(), "one-shot pair is not rescheduled")
}

func TestOnTriggerFired_DuplicateFireSkipped(t *testing.T) {
	anchor := utcMs(2024, 6, 1, 9, 0)
	r := dailyReminder("r1", anchor)
	eng, _, _, _, notifier := newTestEngine(r)

	require.NoError(t, eng.OnTriggerFired(context.Background(), "r1", 0, anchor+10))
	require.NoError(t, eng.OnTriggerFired(context.Background(), "r1", 0, anchor+20))

	assert.Equal(t, 1, notifier.count(), "the second fire of the same occurrence delivers nothing")
}

func TestOnTriggerFired_StaleRegistrationCancelled(t *testing.T) {
	anchor := utcMs(2024, 6, 1, 9, 0)
	r := dailyReminder("r1", anchor)
	r.Enabled = false
	eng, _, _, alarms, notifier := newTestEngine(r)

	id := NotifyID("r1", 0)
	require.NoError(t, alarms.ScheduleExactAt(id, anchor, Payload{ReminderID: "r1"}))

	require.NoError(t, eng.OnTriggerFired(context.Background(), "r1", 0, anchor+10))
	assert.Equal(t, 0, notifier.count())
	assert.Equal(t, 0, alarms.count(), "stale registration is dropped")
}

func TestOnTriggerFired_UnknownReminder(t *testing.T) {
	eng, _, _, alarms, notifier := newTestEngine()

	require.NoError(t, eng.OnTriggerFired(context.Background(), "ghost", 0, utcMs(2024, 6, 1, 9, 0)))
	assert.Equal(t, 0, notifier.count())
	assert.Equal(t, 0, alarms.count())
}

func TestBootRestore_MissedDailyFiresExactlyOnce(t *testing.T) {
	// Anchored three days before the restore: three occurrences came due
	// while the process was down, but only the most recent one fires.
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	anchor := time.Date(2024, 3, 7, 9, 0, 0, 0, ny)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, ny) // past the DST transition

	r := dailyReminder("r1", anchor.UnixMilli())
	r.TimeZone = "America/New_York"
	eng, _, ledger, alarms, notifier := newTestEngine(r)

	eng.ProcessBootRestore(context.Background(), r, now.UnixMilli())

	assert.Equal(t, 1, notifier.count(), "three missed days collapse into one fire")

	last, ok, err := ledger.Get(context.Background(), "r1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, now.UnixMilli(), last)

	reg, ok := alarms.get(NotifyID("r1", 0))
	require.True(t, ok, "callback re-registered after the restore")
	want := time.Date(2024, 3, 11, 9, 0, 0, 0, ny)
	assert.Equal(t, want.UnixMilli(), reg.triggerAtMs,
		"next trigger keeps the local wall-clock time across the DST boundary")
}

func TestBootRestore_Idempotent(t *testing.T) {
	anchor := utcMs(2024, 6, 1, 9, 0)
	now := anchor + 3*dayMs + 7_200_000
	r := dailyReminder("r1", anchor)
	eng, _, _, alarms, notifier := newTestEngine(r)

	eng.ProcessBootRestore(context.Background(), r, now)
	require.Equal(t, 1, notifier.count())

	// Registrations are lost again, no trigger fired in between.
	alarms.clear()
	eng.ProcessBootRestore(context.Background(), r, now)
	assert.Equal(t, 1, notifier.count(), "a second pass with no progress fires nothing")
	assert.Equal(t, 1, alarms.count(), "but still re-registers")
}

func TestBootRestore_FutureTriggerNotFired(t *testing.T) {
	now := utcMs(2024, 6, 1, 8, 0)
	anchor := utcMs(2024, 6, 1, 9, 0)
	r := dailyReminder("r1", anchor)
	eng, _, _, alarms, notifier := newTestEngine(r)

	eng.ProcessBootRestore(context.Background(), r, now)
	assert.Equal(t, 0, notifier.count())

	reg, ok := alarms.get(NotifyID("r1", 0))
	require.True(t, ok)
	assert.Equal(t, anchor, reg.triggerAtMs)
}

func TestBootRestore_DeliveredBeforeRestartSkipped(t *testing.T) {
	anchor := utcMs(2024, 6, 1, 9, 0)
	now := anchor + 3_600_000
	r := dailyReminder("r1", anchor)
	eng, _, ledger, alarms, notifier := newTestEngine(r)

	// The live timer fired and was recorded before the process died.
	require.NoError(t, ledger.Upsert(context.Background(), "r1", 0, anchor+5))

	eng.ProcessBootRestore(context.Background(), r, now)
	assert.Equal(t, 0, notifier.count(), "already-delivered occurrence is skipped")

	reg, ok := alarms.get(NotifyID("r1", 0))
	require.True(t, ok)
	assert.Equal(t, anchor+dayMs, reg.triggerAtMs)
}

func TestBootRestore_OffsetOnlyMissed(t *testing.T) {
	// The occurrence is still ahead, but the day-before trigger came due
	// while the process was down.
	anchor := utcMs(2024, 6, 10, 9, 0)
	now := anchor - dayMs + 3_600_000
	r := oneShotReminder("r1", anchor, dayMs)
	eng, _, _, alarms, notifier := newTestEngine(r)

	eng.ProcessBootRestore(context.Background(), r, now)
	assert.Equal(t, 1, notifier.count(), "the lead-time trigger fires once")
	assert.Equal(t, 0, alarms.count(), "a one-shot pair has nothing further to register")
}

func TestBootRestore_MissedOneShotThenExhausted(t *testing.T) {
	anchor := utcMs(2024, 6, 1, 9, 0)
	now := anchor + 2*dayMs
	r := oneShotReminder("r1", anchor)
	eng, _, _, alarms, notifier := newTestEngine(r)

	eng.ProcessBootRestore(context.Background(), r, now)
	assert.Equal(t, 1, notifier.count())
	assert.Equal(t, 0, alarms.count())

	// Idempotent once the ledger holds the delivery.
	eng.ProcessBootRestore(context.Background(), r, now)
	assert.Equal(t, 1, notifier.count())
}

func TestBootRestore_LedgerDegradedModeAtLeastOnce(t *testing.T) {
	anchor := utcMs(2024, 6, 1, 9, 0)
	now := anchor + 3_600_000
	r := dailyReminder("r1", anchor)
	eng, _, ledger, alarms, notifier := newTestEngine(r)
	ledger.failWrites = true

	// Delivery succeeds, the ledger write does not: degraded to
	// at-least-once for this occurrence.
	eng.ProcessBootRestore(context.Background(), r, now)
	require.Equal(t, 1, notifier.count(), "a ledger outage never drops the delivery")

	alarms.clear()
	eng.ProcessBootRestore(context.Background(), r, now)
	assert.Equal(t, 2, notifier.count(), "the occurrence is delivered once more, not zero times")

	// Ledger heals: the next pass records the delivery and the one after
	// that is quiet again.
	ledger.failWrites = false
	alarms.clear()
	eng.ProcessBootRestore(context.Background(), r, now)
	assert.Equal(t, 3, notifier.count())

	alarms.clear()
	eng.ProcessBootRestore(context.Background(), r, now)
	assert.Equal(t, 3, notifier.count(), "exactly-once resumes after the outage")
}

func TestBootRestore_NotifierFailureStillRecorded(t *testing.T) {
	anchor := utcMs(2024, 6, 1, 9, 0)
	now := anchor + 3_600_000
	r := dailyReminder("r1", anchor)
	eng, _, ledger, _, notifier := newTestEngine(r)
	notifier.fail = true

	eng.ProcessBootRestore(context.Background(), r, now)

	// Fire-and-forget: the failed delivery does not roll back the write.
	_, ok, err := ledger.Get(context.Background(), "r1", 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRestoreAll_IsolatesBrokenReminders(t *testing.T) {
	now := utcMs(2024, 6, 1, 8, 0)

	broken := dailyReminder("bad", utcMs(2024, 6, 1, 9, 0))
	broken.TimeZone = "Not/AZone"
	good := dailyReminder("good", utcMs(2024, 6, 1, 9, 0))

	eng, _, _, alarms, _ := newTestEngine(broken, good)
	fixedNow(eng, now)

	require.NoError(t, eng.RestoreAll(context.Background(), now))
	_, ok := alarms.get(NotifyID("good", 0))
	assert.True(t, ok, "one broken reminder never aborts the pass")
	_, ok = alarms.get(NotifyID("bad", 0))
	assert.False(t, ok)
}

func TestReschedule_ReplacesRegistration(t *testing.T) {
	now := utcMs(2024, 6, 1, 8, 0)
	r := dailyReminder("r1", utcMs(2024, 6, 1, 9, 0))
	eng, _, _, alarms, _ := newTestEngine(r)
	fixedNow(eng, now)

	require.NoError(t, eng.Schedule(context.Background(), r))

	// User moves the reminder an hour later.
	r.AnchorAtMs = utcMs(2024, 6, 1, 10, 0)
	require.NoError(t, eng.Reschedule(context.Background(), r))

	require.Equal(t, 1, alarms.count(), "exactly one registration survives an update")
	reg, ok := alarms.get(NotifyID("r1", 0))
	require.True(t, ok)
	assert.Equal(t, utcMs(2024, 6, 1, 10, 0), reg.triggerAtMs)
}

func TestReschedule_DisabledCancelsOnly(t *testing.T) {
	now := utcMs(2024, 6, 1, 8, 0)
	r := dailyReminder("r1", utcMs(2024, 6, 1, 9, 0))
	eng, _, _, alarms, _ := newTestEngine(r)
	fixedNow(eng, now)

	require.NoError(t, eng.Schedule(context.Background(), r))
	r.Enabled = false
	require.NoError(t, eng.Reschedule(context.Background(), r))
	assert.Equal(t, 0, alarms.count())
}
