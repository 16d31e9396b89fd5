package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/chimeapp/chime/internal/models"
)

// FromRRule maps an RFC 5545 RRULE string onto the repeat rules the
// scheduling core supports. The AI parser emits RRULE text; anything
// richer than a plain single-interval frequency is rejected rather than
// silently approximated.
func FromRRule(ruleStr string) (models.RepeatRule, error) {
	ruleStr = strings.TrimSpace(strings.TrimPrefix(ruleStr, "RRULE:"))
	if ruleStr == "" {
		return models.RepeatNone, nil
	}

	opt, err := rrule.StrToROption(ruleStr)
	if err != nil {
		return models.RepeatNone, fmt.Errorf("failed to parse RRULE: %w", err)
	}
	if opt.Interval > 1 {
		return models.RepeatNone, fmt.Errorf("unsupported RRULE interval %d", opt.Interval)
	}

	switch opt.Freq {
	case rrule.MINUTELY:
		return models.RepeatEveryMinute, nil
	case rrule.DAILY:
		return models.RepeatDaily, nil
	case rrule.WEEKLY:
		return models.RepeatWeekly, nil
	case rrule.MONTHLY:
		return models.RepeatMonthly, nil
	case rrule.YEARLY:
		return models.RepeatYearly, nil
	}
	return models.RepeatNone, fmt.Errorf("unsupported RRULE frequency %v", opt.Freq)
}

// RRuleString renders a repeat rule back into canonical RRULE text via the
// rrule library. Returns "" for one-shot reminders.
func RRuleString(rule models.RepeatRule, anchorMs int64, tz string) (string, error) {
	if rule == models.RepeatNone {
		return "", nil
	}

	anchor, err := anchorIn(anchorMs, tz)
	if err != nil {
		return "", err
	}

	freq, err := freqOf(rule)
	if err != nil {
		return "", err
	}

	r, err := rrule.NewRRule(rrule.ROption{Freq: freq, Dtstart: anchor})
	if err != nil {
		return "", fmt.Errorf("failed to build RRULE: %w", err)
	}
	return r.String(), nil
}

func freqOf(rule models.RepeatRule) (rrule.Frequency, error) {
	switch rule {
	case models.RepeatEveryMinute:
		return rrule.MINUTELY, nil
	case models.RepeatDaily:
		return rrule.DAILY, nil
	case models.RepeatWeekly:
		return rrule.WEEKLY, nil
	case models.RepeatMonthly:
		return rrule.MONTHLY, nil
	case models.RepeatYearly:
		return rrule.YEARLY, nil
	}
	return 0, fmt.Errorf("no RRULE frequency for rule %q", rule)
}

// Describe returns a short human-readable description for list views and
// notification footers.
func Describe(rule models.RepeatRule) string {
	switch rule {
	case models.RepeatEveryMinute:
		return "every minute"
	case models.RepeatDaily:
		return "every day"
	case models.RepeatWeekly:
		return "every week"
	case models.RepeatMonthly:
		return "every month"
	case models.RepeatYearly:
		return "every year"
	}
	return "one-time"
}

// DescribeOffset renders a lead-time offset for display.
func DescribeOffset(offsetMs int64) string {
	if offsetMs <= 0 {
		return "at the time"
	}
	d := time.Duration(offsetMs) * time.Millisecond
	switch {
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%d day(s) before", d/(24*time.Hour))
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hour(s) before", d/time.Hour)
	default:
		return fmt.Sprintf("%d minute(s) before", int(d.Minutes()))
	}
}
