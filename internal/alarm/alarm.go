// Package alarm is the in-process wake-callback backend: one timer per
// int32 callback id, firing a typed trigger event into exactly one handler.
// Registrations live only in memory; the boot-restore pass rebuilds them
// after every process start.
package alarm

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/chimeapp/chime/internal/engine"
)

// TriggerHandler consumes a fired trigger. There is exactly one handler;
// it is the engine's OnTriggerFired.
type TriggerHandler func(ctx context.Context, reminderID string, offsetMs, firedAtMs int64) error

type Timers struct {
	mu      sync.Mutex
	timers  map[int32]*time.Timer
	handler TriggerHandler
	closed  bool
}

func New() *Timers {
	return &Timers{timers: make(map[int32]*time.Timer)}
}

// SetHandler binds the single trigger consumer. Must be called before any
// timer can fire; the engine and the timer backend reference each other, so
// binding happens after both are constructed.
func (t *Timers) SetHandler(h TriggerHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// ScheduleExactAt registers the callback, replacing any registration
// already held under the same id. A trigger already in the past fires
// immediately.
func (t *Timers) ScheduleExactAt(id int32, triggerAtMs int64, p engine.Payload) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}

	if old, ok := t.timers[id]; ok {
		old.Stop()
	}

	d := time.Until(time.UnixMilli(triggerAtMs))
	if d < 0 {
		d = 0
	}
	t.timers[id] = time.AfterFunc(d, func() {
		t.fire(id, p)
	})
	return nil
}

// Cancel removes a registration. No-op when nothing is registered.
func (t *Timers) Cancel(id int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[id]; ok {
		timer.Stop()
		delete(t.timers, id)
	}
}

// Pending returns the number of live registrations.
func (t *Timers) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Stop cancels everything and refuses further registrations. Used on
// shutdown.
func (t *Timers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

func (t *Timers) fire(id int32, p engine.Payload) {
	t.mu.Lock()
	delete(t.timers, id)
	handler := t.handler
	closed := t.closed
	t.mu.Unlock()

	if closed || handler == nil {
		return
	}
	if err := handler(context.Background(), p.ReminderID, p.OffsetMs, time.Now().UnixMilli()); err != nil {
		log.Printf("Trigger %d for reminder %s failed: %v", id, p.ReminderID, err)
	}
}
