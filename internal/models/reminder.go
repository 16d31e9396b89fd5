package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrReminderNotFound is returned by reminder lookups that match nothing.
var ErrReminderNotFound = errors.New("reminder not found")

// RepeatRule names how a reminder recurs. The empty string means one-shot.
type RepeatRule string

const (
	RepeatNone        RepeatRule = ""
	RepeatEveryMinute RepeatRule = "every_minute" // debug rule
	RepeatDaily       RepeatRule = "daily"
	RepeatWeekly      RepeatRule = "weekly"
	RepeatMonthly     RepeatRule = "monthly"
	RepeatYearly      RepeatRule = "yearly"
)

// ParseRepeatRule validates a stored repeat rule value.
func ParseRepeatRule(s string) (RepeatRule, error) {
	switch RepeatRule(s) {
	case RepeatNone, RepeatEveryMinute, RepeatDaily, RepeatWeekly, RepeatMonthly, RepeatYearly:
		return RepeatRule(s), nil
	}
	return RepeatNone, fmt.Errorf("unknown repeat rule %q", s)
}

type Reminder struct {
	ID         string     `json:"id"`
	ChatID     int64      `json:"chat_id"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	AnchorAtMs int64      `json:"anchor_at_ms"` // event instant; its wall-clock fields in TimeZone define the series
	TimeZone   string     `json:"time_zone"`
	Repeat     RepeatRule `json:"repeat"`
	OffsetsMs  []int64    `json:"offsets_ms"` // lead times subtracted from an occurrence
	Enabled    bool       `json:"enabled"`
	Deleted    bool       `json:"deleted"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsRecurring returns true if this reminder has a repeat rule.
func (r *Reminder) IsRecurring() bool {
	return r.Repeat != RepeatNone
}

// Active reports whether the reminder participates in scheduling.
// Soft-deleted reminders behave exactly like disabled ones.
func (r *Reminder) Active() bool {
	return r.Enabled && !r.Deleted
}

// Offsets returns the offset list, defaulting to a single zero offset.
// The scheduling core relies on this never being empty.
func (r *Reminder) Offsets() []int64 {
	if len(r.OffsetsMs) == 0 {
		return []int64{0}
	}
	return r.OffsetsMs
}

// FireRecord is the durable last-delivery mark for one (reminder, offset)
// pair. It is the idempotency source of truth across restarts.
type FireRecord struct {
	ReminderID    string `json:"reminder_id"`
	OffsetMs      int64  `json:"offset_ms"`
	LastFiredAtMs int64  `json:"last_fired_at_ms"`
}
