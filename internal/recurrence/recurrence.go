// Package recurrence computes concrete occurrence instants for a reminder's
// repeat rule. All arithmetic is calendar arithmetic on the anchor's
// wall-clock fields in the reminder's time zone, so a daily reminder keeps
// its local time of day across daylight-saving transitions (a fixed 24h add
// would not).
package recurrence

import (
	"fmt"
	"time"

	"github.com/chimeapp/chime/internal/models"
)

// Next returns the first occurrence strictly after nowMs, as epoch millis.
// ok is false when the reminder has no further occurrences (a one-shot
// whose anchor has passed). Errors mean the rule or zone is unusable; the
// caller treats the pair as paused.
func Next(anchorMs int64, tz string, rule models.RepeatRule, nowMs int64) (int64, bool, error) {
	anchor, err := anchorIn(anchorMs, tz)
	if err != nil {
		return 0, false, err
	}

	if rule == models.RepeatNone {
		if anchorMs > nowMs {
			return anchorMs, true, nil
		}
		return 0, false, nil // exhausted, terminal
	}

	n, err := firstAfter(anchor, rule, nowMs)
	if err != nil {
		return 0, false, err
	}
	return occurrence(anchor, rule, n).UnixMilli(), true, nil
}

// Latest returns the most recent occurrence at or before nowMs. ok is false
// when even the first occurrence is still in the future.
func Latest(anchorMs int64, tz string, rule models.RepeatRule, nowMs int64) (int64, bool, error) {
	anchor, err := anchorIn(anchorMs, tz)
	if err != nil {
		return 0, false, err
	}

	if rule == models.RepeatNone {
		if anchorMs <= nowMs {
			return anchorMs, true, nil
		}
		return 0, false, nil
	}

	n, err := firstAfter(anchor, rule, nowMs)
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	return occurrence(anchor, rule, n-1).UnixMilli(), true, nil
}

// Preview returns up to count occurrences strictly after fromMs, for list
// views. The slice may be shorter when a one-shot reminder is exhausted.
func Preview(anchorMs int64, tz string, rule models.RepeatRule, fromMs int64, count int) ([]time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", tz, err)
	}

	var out []time.Time
	cursor := fromMs
	for len(out) < count {
		next, ok, err := Next(anchorMs, tz, rule, cursor)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, time.UnixMilli(next).In(loc))
		cursor = next
	}
	return out, nil
}

func anchorIn(anchorMs int64, tz string) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time zone %q: %w", tz, err)
	}
	return time.UnixMilli(anchorMs).In(loc), nil
}

// occurrence builds occurrence n (0 = the anchor itself) as a pure function
// of the anchor, so repeated calls can never drift. Month and year advances
// keep the anchor's original day-of-month and clamp it to the target
// month's length on every advance (Jan 31 -> Feb 28 -> Mar 31), which is
// why this does not use time.AddDate (AddDate normalizes Jan 31 + 1 month
// into March).
func occurrence(anchor time.Time, rule models.RepeatRule, n int64) time.Time {
	if n == 0 {
		return anchor
	}
	y, m, d := anchor.Date()
	hh, mm, ss := anchor.Clock()
	ns := anchor.Nanosecond()
	loc := anchor.Location()

	switch rule {
	case models.RepeatEveryMinute:
		return anchor.Add(time.Duration(n) * time.Minute)
	case models.RepeatDaily:
		return time.Date(y, m, d+int(n), hh, mm, ss, ns, loc)
	case models.RepeatWeekly:
		return time.Date(y, m, d+int(7*n), hh, mm, ss, ns, loc)
	case models.RepeatMonthly:
		months := int64(m) - 1 + n
		ty := y + int(months/12)
		tm := time.Month(months%12 + 1)
		return time.Date(ty, tm, clampDay(d, ty, tm), hh, mm, ss, ns, loc)
	case models.RepeatYearly:
		ty := y + int(n)
		return time.Date(ty, m, clampDay(d, ty, m), hh, mm, ss, ns, loc)
	}
	return anchor
}

// firstAfter finds the smallest n >= 0 with occurrence(n) strictly after
// nowMs. Starts from an elapsed-time underestimate so anchors far in the
// past do not walk one period at a time.
func firstAfter(anchor time.Time, rule models.RepeatRule, nowMs int64) (int64, error) {
	maxPeriod, err := maxPeriodMs(rule)
	if err != nil {
		return 0, err
	}

	var n int64
	if elapsed := nowMs - anchor.UnixMilli(); elapsed > 0 {
		n = elapsed / maxPeriod
	}
	for n > 0 && occurrence(anchor, rule, n-1).UnixMilli() > nowMs {
		n--
	}
	for occurrence(anchor, rule, n).UnixMilli() <= nowMs {
		n++
	}
	return n, nil
}

// maxPeriodMs is an upper bound on one period's real duration, used only to
// seed the search; the extra hour absorbs daylight-saving stretch.
func maxPeriodMs(rule models.RepeatRule) (int64, error) {
	const hour = 3_600_000
	switch rule {
	case models.RepeatEveryMinute:
		return 60_000, nil
	case models.RepeatDaily:
		return 24*hour + hour, nil
	case models.RepeatWeekly:
		return 7*24*hour + hour, nil
	case models.RepeatMonthly:
		return 31*24*hour + hour, nil
	case models.RepeatYearly:
		return 366*24*hour + hour, nil
	}
	return 0, fmt.Errorf("unknown repeat rule %q", rule)
}

func clampDay(d, year int, month time.Month) int {
	if last := daysIn(year, month); d > last {
		return last
	}
	return d
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
