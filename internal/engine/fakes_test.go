package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chimeapp/chime/internal/models"
)

// Hand-written fakes for the engine's collaborators. The engine is wired
// through constructor-injected interfaces precisely so these can stand in
// for Postgres, Telegram and the timer backend.

type fakeStore struct {
	mu        sync.Mutex
	reminders map[string]*models.Reminder
}

func newFakeStore(reminders ...*models.Reminder) *fakeStore {
	s := &fakeStore{reminders: make(map[string]*models.Reminder)}
	for _, r := range reminders {
		s.reminders[r.ID] = r
	}
	return s
}

func (s *fakeStore) GetByID(ctx context.Context, id string) (*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return nil, models.ErrReminderNotFound
	}
	return r, nil
}

func (s *fakeStore) GetAllActive(ctx context.Context) ([]*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Reminder
	for _, r := range s.reminders {
		if r.Active() {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeLedger struct {
	mu         sync.Mutex
	records    map[string]int64
	failWrites bool
	failReads  bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string]int64)}
}

func ledgerKey(reminderID string, offsetMs int64) string {
	return fmt.Sprintf("%s/%d", reminderID, offsetMs)
}

func (l *fakeLedger) Get(ctx context.Context, reminderID string, offsetMs int64) (int64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failReads {
		return 0, false, errors.New("ledger read refused")
	}
	v, ok := l.records[ledgerKey(reminderID, offsetMs)]
	return v, ok, nil
}

func (l *fakeLedger) Upsert(ctx context.Context, reminderID string, offsetMs, firedAtMs int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWrites {
		return errors.New("ledger write refused")
	}
	l.records[ledgerKey(reminderID, offsetMs)] = firedAtMs
	return nil
}

type registration struct {
	triggerAtMs int64
	payload     Payload
}

type fakeAlarms struct {
	mu            sync.Mutex
	registrations map[int32]registration
	failNext      bool
}

func newFakeAlarms() *fakeAlarms {
	return &fakeAlarms{registrations: make(map[int32]registration)}
}

func (a *fakeAlarms) ScheduleExactAt(id int32, triggerAtMs int64, p Payload) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failNext {
		a.failNext = false
		return errors.New("registration quota exceeded")
	}
	a.registrations[id] = registration{triggerAtMs: triggerAtMs, payload: p}
	return nil
}

func (a *fakeAlarms) Cancel(id int32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.registrations, id)
}

func (a *fakeAlarms) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.registrations)
}

func (a *fakeAlarms) get(id int32) (registration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	reg, ok := a.registrations[id]
	return reg, ok
}

// clear drops all registrations, simulating the restart that loses them.
func (a *fakeAlarms) clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registrations = make(map[int32]registration)
}

type delivery struct {
	id      int32
	title   string
	message string
	payload Payload
}

type fakeNotifier struct {
	mu         sync.Mutex
	deliveries []delivery
	fail       bool
}

func (n *fakeNotifier) Deliver(id int32, title, message string, p Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("notification surface down")
	}
	n.deliveries = append(n.deliveries, delivery{id: id, title: title, message: message, payload: p})
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.deliveries)
}

func newTestEngine(reminders ...*models.Reminder) (*Engine, *fakeStore, *fakeLedger, *fakeAlarms, *fakeNotifier) {
	store := newFakeStore(reminders...)
	ledger := newFakeLedger()
	alarms := newFakeAlarms()
	notifier := &fakeNotifier{}
	return New(store, ledger, alarms, notifier), store, ledger, alarms, notifier
}
