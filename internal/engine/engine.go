// Package engine turns stored reminder definitions into exact-time wake
// callbacks and guarantees each (reminder, offset) pair delivers at most
// once per occurrence, even across restarts and races between a live
// trigger and a concurrent boot-restore pass. The fire-state ledger is the
// idempotency source of truth; callback registrations are ephemeral and
// reconstructed from scratch after every restart.
package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/chimeapp/chime/internal/models"
	"github.com/chimeapp/chime/internal/recurrence"
)

// Payload rides along with a registered callback and comes back verbatim
// when it fires. It is reconstructible at any time from the reminder and
// the clock, so losing registrations on restart is not data loss.
type Payload struct {
	ReminderID string
	OffsetMs   int64
}

// AlarmScheduler is the wake-callback primitive. ScheduleExactAt replaces
// any registration already held under the same id; Cancel is a no-op when
// nothing is registered.
type AlarmScheduler interface {
	ScheduleExactAt(id int32, triggerAtMs int64, p Payload) error
	Cancel(id int32)
}

// Notifier delivers the user-facing notification. Delivery is
// fire-and-forget: a failed delivery never rolls back the ledger write.
type Notifier interface {
	Deliver(id int32, title, message string, p Payload) error
}

// Ledger is the durable fire-state store, keyed by (reminder, offset).
type Ledger interface {
	Get(ctx context.Context, reminderID string, offsetMs int64) (int64, bool, error)
	Upsert(ctx context.Context, reminderID string, offsetMs, firedAtMs int64) error
}

// ReminderSource reads reminder definitions. The reminder store itself is
// owned elsewhere; the engine only ever reads it.
type ReminderSource interface {
	GetByID(ctx context.Context, id string) (*models.Reminder, error)
	GetAllActive(ctx context.Context) ([]*models.Reminder, error)
}

type Engine struct {
	store    ReminderSource
	ledger   Ledger
	alarms   AlarmScheduler
	notifier Notifier
	locks    pairLocks
	nowMs    func() int64
}

func New(store ReminderSource, ledger Ledger, alarms AlarmScheduler, notifier Notifier) *Engine {
	return &Engine{
		store:    store,
		ledger:   ledger,
		alarms:   alarms,
		notifier: notifier,
		nowMs:    func() int64 { return time.Now().UnixMilli() },
	}
}

// Schedule registers one wake callback per offset at the next future
// trigger. Disabled and soft-deleted reminders are never scheduled.
// Computation errors (bad zone, bad rule) pause the affected pair and are
// only logged; registration failures are collected and returned.
func (e *Engine) Schedule(ctx context.Context, r *models.Reminder) error {
	if !r.Active() {
		return nil
	}
	now := e.nowMs()

	var errs []error
	for _, offset := range r.Offsets() {
		mu := e.locks.lockFor(r.ID, offset)
		mu.Lock()
		err := e.scheduleOffsetLocked(r, offset, now)
		mu.Unlock()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) scheduleOffsetLocked(r *models.Reminder, offsetMs, nowMs int64) error {
	base, ok, err := recurrence.Next(r.AnchorAtMs, r.TimeZone, r.Repeat, nowMs)
	if err != nil {
		log.Printf("Reminder %s offset %dms paused: %v", r.ID, offsetMs, err)
		return nil
	}
	if !ok {
		// Exhausted one-shot, nothing left to register.
		return nil
	}

	trigger := base - offsetMs
	id := NotifyID(r.ID, offsetMs)
	if err := e.alarms.ScheduleExactAt(id, trigger, Payload{ReminderID: r.ID, OffsetMs: offsetMs}); err != nil {
		return &RegistrationError{ReminderID: r.ID, OffsetMs: offsetMs, Err: err}
	}
	return nil
}

// CancelReminder removes the wake callbacks for every offset. Safe to call
// when nothing is registered (already fired, already cancelled, never
// scheduled); cancellation is best-effort and always succeeds logically.
func (e *Engine) CancelReminder(ctx context.Context, r *models.Reminder) {
	for _, offset := range r.Offsets() {
		mu := e.locks.lockFor(r.ID, offset)
		mu.Lock()
		e.alarms.Cancel(NotifyID(r.ID, offset))
		mu.Unlock()
	}
}

// Reschedule replaces a reminder's registrations after an update. The
// cancel+schedule per pair happens under that pair's lock, so a concurrent
// observer never sees a stale registration survive the update.
func (e *Engine) Reschedule(ctx context.Context, r *models.Reminder) error {
	now := e.nowMs()

	var errs []error
	for _, offset := range r.Offsets() {
		mu := e.locks.lockFor(r.ID, offset)
		mu.Lock()
		e.alarms.Cancel(NotifyID(r.ID, offset))
		var err error
		if r.Active() {
			err = e.scheduleOffsetLocked(r, offset, now)
		}
		mu.Unlock()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnTriggerFired handles a wake callback for one (reminder, offset) pair.
// The ledger check defends against duplicate fires: the same occurrence is
// skipped when a delivery at or after its trigger is already recorded.
func (e *Engine) OnTriggerFired(ctx context.Context, reminderID string, offsetMs, firedAtMs int64) error {
	mu := e.locks.lockFor(reminderID, offsetMs)
	mu.Lock()
	defer mu.Unlock()

	r, err := e.store.GetByID(ctx, reminderID)
	if err != nil {
		if errors.Is(err, models.ErrReminderNotFound) {
			e.alarms.Cancel(NotifyID(reminderID, offsetMs))
			return nil
		}
		return err
	}
	if !r.Active() {
		// Stale registration for a disabled or tombstoned reminder.
		e.alarms.Cancel(NotifyID(reminderID, offsetMs))
		return nil
	}

	// Resolve which occurrence this callback belongs to: the most recent
	// one whose trigger is not after the fire time.
	occ, ok, err := recurrence.Latest(r.AnchorAtMs, r.TimeZone, r.Repeat, firedAtMs+offsetMs)
	if err != nil {
		log.Printf("Reminder %s offset %dms paused: %v", r.ID, offsetMs, err)
		return nil
	}
	if !ok {
		// Fired before the first trigger window, spurious.
		return nil
	}
	trigger := occ - offsetMs

	last, has, err := e.ledger.Get(ctx, r.ID, offsetMs)
	if err != nil {
		log.Printf("Ledger read failed for reminder %s offset %dms, delivering anyway: %v", r.ID, offsetMs, err)
	} else if has && last >= trigger {
		// Already delivered, duplicate fire.
		return nil
	}

	return e.fireLocked(ctx, r, offsetMs, occ, firedAtMs)
}

// fireLocked delivers and records one occurrence, then re-registers only
// the offset that fired. Delivery comes before the ledger write on
// purpose: a ledger outage degrades the pair to at-least-once instead of
// silently dropping a user-facing reminder.
func (e *Engine) fireLocked(ctx context.Context, r *models.Reminder, offsetMs, occMs, firedAtMs int64) error {
	id := NotifyID(r.ID, offsetMs)

	if err := e.notifier.Deliver(id, r.Title, notificationText(r), Payload{ReminderID: r.ID, OffsetMs: offsetMs}); err != nil {
		log.Printf("Failed to deliver reminder %s offset %dms: %v", r.ID, offsetMs, err)
	}

	if err := e.ledger.Upsert(ctx, r.ID, offsetMs, firedAtMs); err != nil {
		// Accepted degraded mode: the next boot-restore pass may deliver
		// this occurrence once more.
		log.Printf("Ledger write failed for reminder %s offset %dms (at-least-once for this occurrence): %v", r.ID, offsetMs, err)
	}

	if !r.IsRecurring() {
		// Terminal: a one-shot pair is never rescheduled.
		return nil
	}

	// The next period is anchored on the occurrence that fired, not on the
	// wall clock, so late fires stay on the series.
	next, ok, err := recurrence.Next(r.AnchorAtMs, r.TimeZone, r.Repeat, occMs)
	if err != nil || !ok {
		if err != nil {
			log.Printf("Reminder %s offset %dms paused: %v", r.ID, offsetMs, err)
		}
		return nil
	}
	if err := e.alarms.ScheduleExactAt(id, next-offsetMs, Payload{ReminderID: r.ID, OffsetMs: offsetMs}); err != nil {
		return &RegistrationError{ReminderID: r.ID, OffsetMs: offsetMs, Err: err}
	}
	return nil
}

// ProcessBootRestore reconciles one reminder after a restart. Callback
// registrations are assumed lost, so every offset is re-registered
// regardless of branch; a trigger that came due while the process was down
// is delivered once, unless the ledger shows it was already delivered
// before the restart. Errors on one offset never abort the others.
func (e *Engine) ProcessBootRestore(ctx context.Context, r *models.Reminder, nowMs int64) {
	if !r.Active() {
		return
	}

	for _, offset := range r.Offsets() {
		mu := e.locks.lockFor(r.ID, offset)
		mu.Lock()
		e.restoreOffsetLocked(ctx, r, offset, nowMs)
		mu.Unlock()
	}
}

func (e *Engine) restoreOffsetLocked(ctx context.Context, r *models.Reminder, offsetMs, nowMs int64) {
	// Most recent occurrence whose trigger is already due. Comparing
	// occurrences against now+offset is the same as comparing triggers
	// against now.
	occ, ok, err := recurrence.Latest(r.AnchorAtMs, r.TimeZone, r.Repeat, nowMs+offsetMs)
	if err != nil {
		log.Printf("Boot restore: reminder %s offset %dms paused: %v", r.ID, offsetMs, err)
		return
	}

	if ok {
		trigger := occ - offsetMs
		last, has, err := e.ledger.Get(ctx, r.ID, offsetMs)
		if err != nil {
			log.Printf("Boot restore: ledger read failed for reminder %s offset %dms, delivering anyway: %v", r.ID, offsetMs, err)
			has = false
		}
		if !has || last < trigger {
			// Missed while down. However many periods were missed, only
			// the most recent one fires; fireLocked also re-registers the
			// next trigger.
			if err := e.fireLocked(ctx, r, offsetMs, occ, nowMs); err != nil {
				log.Printf("Boot restore: %v", err)
			}
			return
		}
		// Delivered before the restart, fall through to re-register only.
	}

	// Re-register the first strictly-future trigger. For an exhausted
	// one-shot this is a no-op.
	next, ok, err := recurrence.Next(r.AnchorAtMs, r.TimeZone, r.Repeat, nowMs+offsetMs)
	if err != nil || !ok {
		return
	}
	id := NotifyID(r.ID, offsetMs)
	if err := e.alarms.ScheduleExactAt(id, next-offsetMs, Payload{ReminderID: r.ID, OffsetMs: offsetMs}); err != nil {
		log.Printf("Boot restore: failed to re-register reminder %s offset %dms: %v", r.ID, offsetMs, err)
	}
}

// RestoreAll runs the boot-restore pass over every active reminder.
// Reminders are processed concurrently; the per-pair locks are the only
// ordering constraint. Best effort for all, never all or nothing.
func (e *Engine) RestoreAll(ctx context.Context, nowMs int64) error {
	reminders, err := e.store.GetAllActive(ctx)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, r := range reminders {
		wg.Add(1)
		go func(r *models.Reminder) {
			defer wg.Done()
			e.ProcessBootRestore(ctx, r, nowMs)
		}(r)
	}
	wg.Wait()

	log.Printf("Boot restore processed %d reminders", len(reminders))
	return nil
}

func notificationText(r *models.Reminder) string {
	text := r.Message
	if text == "" {
		text = r.Title
	}
	if r.IsRecurring() {
		text += "\n\nRepeats " + recurrence.Describe(r.Repeat)
	}
	return text
}
